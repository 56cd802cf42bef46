package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/engine"
	"taskline/internal/lock"
	"taskline/internal/migrate"
	"taskline/internal/relay"
	"taskline/internal/repo"
)

// Runtime is everything a command needs to talk to one workspace.
type Runtime struct {
	Workspace string
	Config    *config.Config
	Store     *repo.Repo
	Engine    engine.Engine
	Logger    *slog.Logger

	redis *redis.Client
}

// Open prepares the workspace, migrates the database and builds the engine.
func Open(ctx context.Context, workspace string, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	rt := &Runtime{Workspace: workspace, Config: cfg, Store: repo.New(conn), Logger: logger}
	locks, err := rt.newLocker(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Engine = engine.New(rt.Store, locks)
	rt.Engine.Logger = logger
	return rt, nil
}

func (rt *Runtime) newLocker(ctx context.Context) (lock.Locker, error) {
	lc := rt.Config.Locks
	if lc.Backend != config.LockRedis {
		return lock.NewMemory(lc.Wait), nil
	}
	client, err := lock.Connect(ctx, lc.RedisURL)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	rt.redis = client
	l := lock.NewRedis(client, lc.TTL, lc.Wait)
	l.Logger = rt.Logger
	rt.Logger.Info("using redis locks", "url", lc.RedisURL)
	return l, nil
}

// Relay builds the event relay for the configured sinks. It returns nil when
// no sink is configured.
func (rt *Runtime) Relay() (*relay.Dispatcher, error) {
	rc := rt.Config.Relay
	var routes []relay.Route
	for _, hook := range rc.Webhooks {
		if !hook.Active() {
			continue
		}
		routes = append(routes, relay.Route{
			Sink:  relay.NewWebhookSink(hook.URL, hook.Secret, hook.Timeout),
			Kinds: hook.Events,
		})
	}
	if rc.Kafka.Active() {
		sink, err := relay.NewKafkaSink(rc.Kafka.Brokers, rc.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		routes = append(routes, relay.Route{Sink: sink, Kinds: rc.Kafka.Events})
	}
	if len(routes) == 0 {
		return nil, nil
	}
	d := relay.New(rt.Store, routes...)
	if rc.Interval > 0 {
		d.Interval = rc.Interval
	}
	d.Logger = rt.Logger
	return d, nil
}

func (rt *Runtime) Close() error {
	if rt.redis != nil {
		rt.redis.Close()
	}
	if rt.Store != nil {
		return rt.Store.Close()
	}
	return nil
}

// NewLogger returns a text logger at the named level.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
