package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/golang/glog"

	"sharing/internal/api"
	"sharing/internal/auth"
	"sharing/internal/config"
	"sharing/internal/docstore"
	"sharing/internal/storeserver"
	pkgdatabase "sharing/pkg/database"
)

// limiterCleanupInterval is how often idle rate limit windows are dropped
const limiterCleanupInterval = 5 * time.Minute

// Application coordinates the document store server components
type Application struct {
	config     *config.Config
	backend    docstore.Backend
	authn      *auth.Authenticator
	registry   *storeserver.Registry
	wsHandler  *storeserver.Handler
	apiServer  *api.Server
	httpServer *http.Server
	listener   net.Listener

	stopCleanup chan struct{}
}

// NewApplication builds every component in dependency order:
// Backend → Authenticator → Registry → Handler → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	backend, err := openBackend(cfg.Store)
	if err != nil {
		return nil, err
	}

	authn := auth.NewAuthenticator(cfg.Auth.TokenSecret)
	if !authn.Verifies() {
		glog.Warningf("[app] allow_unverified is set; custom tokens are accepted without signature checks")
	}

	registry := storeserver.NewRegistry()

	wsHandler := storeserver.NewHandler(backend, authn, registry, storeserver.HandlerConfig{
		PingInterval:     cfg.WebSocket.PingInterval,
		ReadTimeout:      cfg.WebSocket.ReadTimeout,
		WriteTimeout:     cfg.WebSocket.WriteTimeout,
		MaxMessageSize:   storeserver.DefaultHandlerConfig().MaxMessageSize,
		CommitsPerMinute: cfg.WebSocket.CommitsPerMinute,
	})

	apiServer := api.NewServer(backend, registry, authn)
	apiServer.Handle("/ws", http.HandlerFunc(wsHandler.HandleWebSocket))

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		backend:     backend,
		authn:       authn,
		registry:    registry,
		wsHandler:   wsHandler,
		apiServer:   apiServer,
		httpServer:  httpServer,
		stopCleanup: make(chan struct{}),
	}, nil
}

func openBackend(cfg *config.StoreConfig) (docstore.Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		glog.Infof("[app] using in-memory document store")
		return docstore.NewMemoryBackend(), nil
	case config.BackendSQLite:
		dbConfig := pkgdatabase.DefaultConfig()
		dbConfig.DatabasePath = cfg.Path
		dbConfig.ConnMaxLifetime = cfg.Timeout
		dbConfig.ConnMaxIdleTime = cfg.Timeout / 3
		dbConfig.WriteTimeout = cfg.Timeout
		backend, err := docstore.OpenSQLite(dbConfig, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open document store: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Start listens and serves in the background; it returns once the listener is bound
func (app *Application) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener
	glog.Infof("[app] document store listening on %s", listener.Addr())

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Errorf("[app] HTTP server error: %v", err)
		}
	}()
	go app.cleanupLoop()

	return nil
}

func (app *Application) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			app.wsHandler.Limiter().Cleanup()
		case <-app.stopCleanup:
			return
		}
	}
}

// Stop shuts down in reverse order: HTTP → connections → backend
func (app *Application) Stop(ctx context.Context) error {
	glog.Infof("[app] shutting down")

	if app.listener != nil {
		if err := app.httpServer.Shutdown(ctx); err != nil {
			glog.Warningf("[app] HTTP server shutdown error: %v", err)
		}
		close(app.stopCleanup)
	}

	// hijacked websocket connections are not closed by Shutdown
	app.registry.CloseAll()

	if err := app.backend.Close(); err != nil {
		glog.Warningf("[app] document store shutdown error: %v", err)
	}

	glog.Infof("[app] shutdown complete")
	return nil
}

// Addr returns the bound address once started, else the configured one
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Backend exposes the store for in-process clients such as the demo
func (app *Application) Backend() docstore.Backend {
	return app.backend
}

// Authenticator exposes the token verifier, e.g. to issue tokens in tests
func (app *Application) Authenticator() *auth.Authenticator {
	return app.authn
}
