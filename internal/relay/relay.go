package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"taskline/internal/domain"
	"taskline/internal/repo"
)

const (
	DefaultInterval = 2 * time.Second
	defaultBatch    = 100
)

// Sink delivers one encoded behavioral event to an external system.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev domain.BehavioralEvent, body []byte) error
	Close() error
}

// Route binds a sink to the event kinds it wants. An empty Kinds list
// forwards everything.
type Route struct {
	Sink  Sink
	Kinds []string
}

// Dispatcher polls the event log and forwards new events to each route.
// Every route keeps its own cursor, advanced only after a successful delivery.
type Dispatcher struct {
	Events   repo.Reader
	Routes   []Route
	Interval time.Duration
	Batch    int
	Logger   *slog.Logger

	mu      sync.Mutex
	cursors map[int]int64
}

func New(events repo.Reader, routes ...Route) *Dispatcher {
	return &Dispatcher{Events: events, Routes: routes, Interval: DefaultInterval, Batch: defaultBatch}
}

// Run dispatches until ctx is done, then closes the sinks.
func (d *Dispatcher) Run(ctx context.Context) error {
	if len(d.Routes) == 0 {
		return nil
	}
	defer d.Close()
	interval := d.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		d.DispatchAll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// DispatchAll runs one delivery round over every route.
func (d *Dispatcher) DispatchAll(ctx context.Context) {
	for i, r := range d.Routes {
		if ctx.Err() != nil {
			return
		}
		if err := d.dispatch(ctx, i, r); err != nil {
			d.log().Warn("relay delivery failed", "sink", r.Sink.Name(), "error", err)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, idx int, r Route) error {
	cursor, err := d.cursorFor(ctx, idx)
	if err != nil {
		return err
	}
	batch := d.Batch
	if batch <= 0 {
		batch = defaultBatch
	}
	events, err := d.Events.ListEvents(ctx, repo.EventFilter{AfterSeq: cursor, Ascending: true, Limit: batch})
	if err != nil {
		return fmt.Errorf("fetch events: %w", err)
	}
	filter := newKindFilter(r.Kinds)
	for _, ev := range events {
		if !filter.match(ev.Kind) {
			d.setCursor(idx, ev.Seq)
			continue
		}
		body, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if err := r.Sink.Deliver(ctx, ev, body); err != nil {
			return fmt.Errorf("event %d: %w", ev.Seq, err)
		}
		d.setCursor(idx, ev.Seq)
	}
	return nil
}

// cursorFor starts a route at the newest stored event so history is not replayed.
func (d *Dispatcher) cursorFor(ctx context.Context, idx int) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cursors == nil {
		d.cursors = make(map[int]int64)
	}
	if cur, ok := d.cursors[idx]; ok {
		return cur, nil
	}
	cur, err := d.Events.LatestEventSeq(ctx)
	if err != nil {
		return 0, fmt.Errorf("init cursor: %w", err)
	}
	d.cursors[idx] = cur
	return cur, nil
}

func (d *Dispatcher) setCursor(idx int, seq int64) {
	d.mu.Lock()
	d.cursors[idx] = seq
	d.mu.Unlock()
}

// Cursor reports the last delivered sequence of a route, or -1 before its first round.
func (d *Dispatcher) Cursor(idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	return -1
}

func (d *Dispatcher) Close() {
	for _, r := range d.Routes {
		if err := r.Sink.Close(); err != nil {
			d.log().Warn("relay sink close failed", "sink", r.Sink.Name(), "error", err)
		}
	}
}

func (d *Dispatcher) log() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

type kindFilter struct {
	all bool
	set map[string]struct{}
}

func newKindFilter(kinds []string) kindFilter {
	set := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		set[k] = struct{}{}
	}
	if len(set) == 0 {
		return kindFilter{all: true}
	}
	return kindFilter{set: set}
}

func (f kindFilter) match(kind string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[kind]
	return ok
}
