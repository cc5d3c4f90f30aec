// Package app wires the WalletFit front-end together.
//
// An App is built once at process start and passed explicitly to the web
// handlers and the CLI. It owns the session manager, the API client and the
// subscriber that turns an expired session into a navigation to the login
// screen.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/AneeshNi47/walletfit-ui/internal/apiclient"
	"github.com/AneeshNi47/walletfit-ui/internal/config"
	"github.com/AneeshNi47/walletfit-ui/internal/models"
	"github.com/AneeshNi47/walletfit-ui/internal/session"
	"github.com/AneeshNi47/walletfit-ui/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
)

// Locations the front-end navigates to.
const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

// App is the scoped context object shared by every screen.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    storage.CredentialStore
	Client   *apiclient.Client
	Session  *session.Manager
	Registry *prometheus.Registry

	navigator Navigator
	present   prometheus.Gauge
	closers   []io.Closer
	cancel    context.CancelFunc
	watching  <-chan struct{}
}

// Option customizes New.
type Option func(*options)

type options struct {
	store      storage.CredentialStore
	navigator  Navigator
	logger     *slog.Logger
	httpClient *http.Client
}

// WithStore uses store instead of the configured backend.
func WithStore(store storage.CredentialStore) Option {
	return func(o *options) { o.store = store }
}

// WithNavigator sets the fallback navigator used when a request carries none.
func WithNavigator(n Navigator) Option {
	return func(o *options) { o.navigator = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHTTPClient sets the http.Client the API client uses.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// New builds the App and reads the stored session once.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = cfg.NewLogger()
	}

	a := &App{
		Config:    cfg,
		Logger:    logger,
		Registry:  prometheus.NewRegistry(),
		navigator: o.navigator,
	}
	if a.navigator == nil {
		a.navigator = NavigatorFunc(func(_ context.Context, location string) {
			logger.Debug("no navigator for request", "location", location)
		})
	}

	a.Store = o.store
	if a.Store == nil {
		store, closer, err := OpenStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.Store = store
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}

	// The client and the manager refer to each other through closures.
	var mgr *session.Manager
	clientOpts := []apiclient.Option{
		apiclient.WithTimeout(cfg.API.Timeout),
		apiclient.WithLogger(logger),
		apiclient.WithMetrics(apiclient.NewMetrics(a.Registry)),
		apiclient.WithTokenSource(apiclient.TokenSourceFunc(func() string { return mgr.AccessToken() })),
		apiclient.WithNotifier(apiclient.NotifierFunc(a.authExpired)),
	}
	if o.httpClient != nil {
		clientOpts = append([]apiclient.Option{apiclient.WithHTTPClient(o.httpClient)}, clientOpts...)
	}
	client, err := apiclient.New(cfg.API.BaseURL, clientOpts...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("api client: %w", err)
	}
	a.Client = client
	mgr = session.NewManager(client, a.Store, logger)
	a.Session = mgr

	a.present = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "walletfit",
		Name:      "session_present",
		Help:      "1 while a session is signed in.",
	})
	a.Registry.MustRegister(a.present)
	mgr.Subscribe(a.observe)

	if err := mgr.Init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if _, ok := mgr.Current(); ok {
		a.present.Set(1)
	}
	logger.Debug("session loaded", "state", mgr.State().String(), "backend", cfg.Store.Backend)

	if cfg.Store.Watch && cfg.Store.Backend == config.BackendSQLite && o.store == nil {
		watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a.cancel = cancel
		done, err := storage.Watch(watchCtx, cfg.Store.Path, storage.DefaultWatchDebounce, logger, func() {
			if err := mgr.Reload(watchCtx); err != nil {
				logger.Warn("reload session failed", "error", err)
			}
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		a.watching = done
	}
	return a, nil
}

// OpenStore opens the configured credential store. The closer is nil for
// backends without resources.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.CredentialStore, io.Closer, error) {
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		db, err := storage.NewDB(cfg.Store.Path, cfg.Store.Key)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store %s: %w", cfg.Store.Path, err)
		}
		return db, db, nil
	case config.BackendRedis:
		rs, err := storage.NewRedisStore(ctx, storage.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Store.Key,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open redis store %s: %w", cfg.Redis.Addr, err)
		}
		return rs, rs, nil
	case config.BackendMemory:
		return storage.NewMemoryStore(), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// authExpired runs for every 401/403 received with a session. Only the call
// that actually ends the session navigates, so concurrent rejections lead to
// a single trip to the login screen.
func (a *App) authExpired(ctx context.Context, ev apiclient.AuthExpiredEvent) {
	if !a.Session.Expire(ctx) {
		return
	}
	a.Logger.Info("session expired", "method", ev.Method, "path", ev.Path, "status", ev.Status)
	a.navigatorFor(ctx).Navigate(ctx, LoginPath)
}

func (a *App) navigatorFor(ctx context.Context) Navigator {
	if n := NavigatorFrom(ctx); n != nil {
		return n
	}
	return a.navigator
}

func (a *App) observe(ev session.Event) {
	if ev.Present {
		a.present.Set(1)
	} else {
		a.present.Set(0)
	}
	a.Logger.Info("session "+string(ev.Kind), "user", ev.Session.User.Username, "present", ev.Present)
}

// Register creates a WalletFit account and signs in with the tokens the
// registration returns.
func (a *App) Register(ctx context.Context, in models.RegisterRequest) (models.Session, error) {
	in = NormalizeRegistration(in)
	reg, err := a.Client.Register(ctx, in)
	if err != nil {
		return models.Session{}, err
	}
	identity := reg.Identity()
	if identity.Username == "" {
		identity = models.User{Username: in.Username, Email: in.Email}
	}
	return a.Session.Adopt(ctx, reg.Tokens(), identity)
}

// NormalizeRegistration fills the defaults the register form applies.
func NormalizeRegistration(in models.RegisterRequest) models.RegisterRequest {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.HouseholdName = strings.TrimSpace(in.HouseholdName)
	if in.HouseholdName == "" && in.FirstName != "" {
		in.HouseholdName = in.FirstName + "'s Household"
	}
	if in.Profile.Currency == "" {
		in.Profile.Currency = "AED"
	}
	if in.Profile.Theme == "" {
		in.Profile.Theme = "light"
	}
	return in
}

// Close stops the store watcher and releases the store.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	// The store stays open until no reload can run against it.
	if a.watching != nil {
		<-a.watching
		a.watching = nil
	}
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
