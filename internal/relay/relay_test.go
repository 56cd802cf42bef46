package relay_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/migrate"
	"taskline/internal/relay"
	"taskline/internal/repo"
)

type recordingSink struct {
	mu    sync.Mutex
	got   []domain.BehavioralEvent
	fail  bool
	close int
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(_ context.Context, ev domain.BehavioralEvent, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink down")
	}
	var decoded domain.BehavioralEvent
	if err := json.Unmarshal(body, &decoded); err != nil {
		return err
	}
	s.got = append(s.got, decoded)
	return nil
}

func (s *recordingSink) Close() error {
	s.close++
	return nil
}

func (s *recordingSink) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.got {
		out = append(out, ev.Kind)
	}
	return out
}

func newStore(t *testing.T) *repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))
	r := repo.New(conn)
	t.Cleanup(func() { r.Close() })
	return r
}

func emit(t *testing.T, store *repo.Repo, kinds ...string) {
	t.Helper()
	var fx domain.Effects
	for _, k := range kinds {
		fx.Emit(domain.BehavioralEvent{ActorID: "dan", Kind: k})
	}
	w := events.Writer{Now: func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) }}
	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, tx repo.Tx) error {
		return w.Append(ctx, tx, fx)
	}))
}

func TestDispatcherSkipsHistoryAndFilters(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	emit(t, store, domain.EventTaskCreated)

	all := &recordingSink{}
	timers := &recordingSink{}
	d := relay.New(store,
		relay.Route{Sink: all},
		relay.Route{Sink: timers, Kinds: []string{domain.EventStartedTimer, domain.EventStoppedTimer}},
	)
	d.DispatchAll(ctx)
	assert.Empty(t, all.kinds())
	assert.Equal(t, int64(1), d.Cursor(0))

	emit(t, store, domain.EventTaskOpened, domain.EventStartedTimer, domain.EventStoppedTimer)
	d.DispatchAll(ctx)
	assert.Equal(t, []string{domain.EventTaskOpened, domain.EventStartedTimer, domain.EventStoppedTimer}, all.kinds())
	assert.Equal(t, []string{domain.EventStartedTimer, domain.EventStoppedTimer}, timers.kinds())
	assert.Equal(t, int64(4), d.Cursor(0))
	assert.Equal(t, int64(4), d.Cursor(1))

	d.DispatchAll(ctx)
	assert.Len(t, all.kinds(), 3, "delivered events are not resent")
}

func TestDispatcherRetriesAfterFailure(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	sink := &recordingSink{}
	d := relay.New(store, relay.Route{Sink: sink})
	d.DispatchAll(ctx)
	assert.Equal(t, int64(0), d.Cursor(0))

	sink.fail = true
	emit(t, store, domain.EventTaskOpened, domain.EventTaskClosedView)
	d.DispatchAll(ctx)
	assert.Equal(t, int64(0), d.Cursor(0))

	sink.fail = false
	d.DispatchAll(ctx)
	assert.Equal(t, []string{domain.EventTaskOpened, domain.EventTaskClosedView}, sink.kinds())
	assert.Equal(t, int64(2), d.Cursor(0))
}

func TestRunClosesSinksOnShutdown(t *testing.T) {
	store := newStore(t)
	sink := &recordingSink{}
	d := relay.New(store, relay.Route{Sink: sink})
	d.Interval = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return d.Cursor(0) == 0 }, time.Second, 5*time.Millisecond)
	emit(t, store, domain.EventTaskOpened)
	require.Eventually(t, func() bool { return len(sink.kinds()) == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, sink.close)
}

func TestWebhookSinkHeaders(t *testing.T) {
	type delivery struct {
		header http.Header
		body   []byte
	}
	got := make(chan delivery, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- delivery{header: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := relay.NewWebhookSink(srv.URL, "s3cret", time.Second)
	ev := domain.BehavioralEvent{Seq: 7, ID: "01HX", ActorID: "dan", Kind: domain.EventTaskCompleted}
	require.NoError(t, sink.Deliver(context.Background(), ev, []byte(`{"seq":7}`)))

	d := <-got
	assert.Equal(t, "task_completed", d.header.Get("X-Taskline-Event"))
	assert.Equal(t, "7", d.header.Get("X-Taskline-Delivery"))
	assert.Equal(t, "s3cret", d.header.Get("X-Taskline-Secret"))
	assert.Equal(t, "application/json", d.header.Get("Content-Type"))
	assert.JSONEq(t, `{"seq":7}`, string(d.body))
}

func TestWebhookSinkRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := relay.NewWebhookSink(srv.URL, "", time.Second)
	err := sink.Deliver(context.Background(), domain.BehavioralEvent{Kind: domain.EventTaskOpened}, []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestNewKafkaSinkValidates(t *testing.T) {
	_, err := relay.NewKafkaSink(nil, "events")
	require.Error(t, err)
	_, err = relay.NewKafkaSink([]string{"localhost:9092"}, "")
	require.Error(t, err)
	sink, err := relay.NewKafkaSink([]string{"localhost:9092"}, "taskline.events")
	require.NoError(t, err)
	assert.Equal(t, "kafka taskline.events", sink.Name())
	require.NoError(t, sink.Close())
}
