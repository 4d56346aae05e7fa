package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tOgg1/spark/internal/backend"
	"github.com/tOgg1/spark/internal/config"
	"github.com/tOgg1/spark/internal/db"
	"github.com/tOgg1/spark/internal/events"
	"github.com/tOgg1/spark/internal/feed"
	"github.com/tOgg1/spark/internal/logging"
	"github.com/tOgg1/spark/internal/notify"
)

const appName = "spark"

// app is the state shared by every command of one invocation.
type app struct {
	loader     *config.Loader
	configFile string
	cfg        *config.Config
	closers    []func() error
}

func newApp() *app {
	return &app{loader: config.NewLoader()}
}

// runtime is an opened database, broker and backend.
type runtime struct {
	cfg      *config.Config
	db       *db.DB
	broker   events.Broker
	backend  *backend.Backend
	contexts *config.ContextStore
	closers  []func() error
}

// open connects everything a command needs. The caller must Close it.
func (a *app) open(ctx context.Context) (*runtime, error) {
	cfg := a.cfg
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, contexts: contextStore(cfg)}

	database, err := db.Open(db.Config{
		Path:          cfg.DatabasePath(),
		BusyTimeoutMs: cfg.Database.BusyTimeoutMs,
	})
	if err != nil {
		return nil, err
	}
	rt.db = database
	rt.closers = append(rt.closers, database.Close)

	if _, err := database.MigrateUp(ctx); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	switch cfg.Realtime.Backend {
	case config.RealtimeRedis:
		broker, err := events.NewRedisBroker(ctx, cfg.Realtime.RedisURL,
			events.WithRedisPrefix(cfg.Realtime.ChannelPrefix),
			events.WithRedisBuffer(cfg.Realtime.Buffer),
		)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("connect realtime backend %s: %w", logging.RedactURL(cfg.Realtime.RedisURL), err)
		}
		rt.broker = broker
		rt.closers = append(rt.closers, broker.Close)
	default:
		broker := events.NewMemoryBroker(events.WithBuffer(cfg.Realtime.Buffer))
		rt.broker = broker
		rt.closers = append(rt.closers, broker.Close)
	}

	rt.backend = backend.New(database, rt.broker, cfg.Identity.UserID,
		backend.WithPageSize(cfg.Feed.PageSize),
	)
	return rt, nil
}

// Close releases the runtime, newest resource first.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// notifier returns the configured notification backend.
func (rt *runtime) notifier() notify.Notifier {
	switch rt.cfg.Notify.Backend {
	case config.NotifyDesktop:
		return notify.NewDesktop(appName)
	case config.NotifyExpo:
		opts := []notify.ExpoOption{
			notify.WithHTTPClient(&http.Client{Timeout: rt.cfg.Notify.Timeout}),
		}
		if rt.cfg.Notify.ExpoURL != "" {
			opts = append(opts, notify.WithExpoURL(rt.cfg.Notify.ExpoURL))
		}
		if rt.cfg.Notify.ExpoAccessToken != "" {
			opts = append(opts, notify.WithAccessToken(rt.cfg.Notify.ExpoAccessToken))
		}
		return notify.NewExpo(rt.backend, opts...)
	default:
		return notify.Noop{}
	}
}

// conversation builds a feed controller over the backend.
func (rt *runtime) conversation(withNotifications bool) *feed.Conversation {
	deps := feed.Deps{
		Pager:    rt.backend,
		Writer:   rt.backend,
		Realtime: rt.backend,
		Identity: rt.backend,
	}
	if withNotifications {
		deps.Notifier = rt.notifier()
	}
	return feed.NewConversation(feed.Config{
		PageSize:     rt.cfg.Feed.PageSize,
		OrphanPolicy: rt.cfg.OrphanPolicy(),
	}, deps)
}

// resolveConversation returns the explicit id or the remembered one.
func (rt *runtime) resolveConversation(explicit string) (string, error) {
	if id := strings.TrimSpace(explicit); id != "" {
		return id, nil
	}
	current, err := rt.contexts.Load()
	if err != nil {
		return "", err
	}
	if current.IsEmpty() {
		return "", feed.ErrNoConversation
	}
	return current.ConversationID, nil
}

// remember stores conversationID as the default for later commands.
func (rt *runtime) remember(conversationID string) error {
	current, err := rt.contexts.Load()
	if err != nil {
		return err
	}
	if current.ConversationID == conversationID && current.UserID == rt.cfg.Identity.UserID {
		return nil
	}
	current.SetConversation(conversationID, rt.cfg.Identity.UserID)
	return rt.contexts.Save(current)
}
