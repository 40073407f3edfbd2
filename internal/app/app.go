package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unicred/unicred/internal/credential/service"
	"github.com/unicred/unicred/internal/credential/store"
	"github.com/unicred/unicred/internal/credential/store/drivers/sqlite"
	"github.com/unicred/unicred/internal/gateway/content"
	"github.com/unicred/unicred/internal/gateway/identity"
	"github.com/unicred/unicred/internal/gateway/ledger"
	"github.com/unicred/unicred/internal/obs"
	"github.com/unicred/unicred/pkg/cryptox"
	"github.com/unicred/unicred/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires the credential service together: store, gateways,
// orchestrators, housekeeping and the operational HTTP endpoints.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	authService         *service.AuthService
	portalService       *service.PortalService
	issuerService       *service.IssuerService
	verifierService     *service.VerifierService
	housekeepingService *service.HousekeepingService

	server *http.Server
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "unicred",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	cryptox.SetPepperPath(cfg.PepperFile)
	obs.Init()

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("credential service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully stops the server, the housekeeping worker and the
// database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down credential service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("credential service stopped")
	return nil
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initServices() {
	engine := identity.NewClaimsEngine(app.cfg.IssuerDID, app.cfg.SchemaRef)

	var led ledger.Gateway
	if app.cfg.LedgerURL != "" {
		led = ledger.NewClient(app.cfg.LedgerURL)
		app.logger.Info("using remote ledger", "url", app.cfg.LedgerURL)
	} else {
		led = ledger.NewInMemory()
		app.logger.Warn("no ledger configured, using in-process ledger")
	}

	contentSecret := app.cfg.ContentSecret
	if contentSecret == "" {
		contentSecret = cryptox.MustGenerateToken(cryptox.TokenSize256)
		app.logger.Warn("no content secret configured, generated an ephemeral one; stored content will be unreadable after restart")
	}
	contentStore := content.NewEncryptedStore(contentSecret, content.NewMemoryBackend())

	jwtSecret := app.cfg.JWTSecret
	if jwtSecret == "" {
		jwtSecret = cryptox.MustGenerateToken(cryptox.TokenSize256)
		app.logger.Warn("no JWT secret configured, generated an ephemeral one; portal tokens die with the process")
	}

	app.authService = &service.AuthService{
		Store:           app.db,
		IssuerDID:       app.cfg.IssuerDID,
		CallbackBaseURL: app.cfg.BaseURL,
		SessionTTL:      app.cfg.AuthSessionTTL,
	}
	app.portalService = &service.PortalService{
		Store:     app.db,
		JWTSecret: []byte(jwtSecret),
		Issuer:    "unicred",
		TokenTTL:  app.cfg.PortalTokenTTL,
	}
	app.issuerService = &service.IssuerService{
		Store:        app.db,
		Ledger:       led,
		Content:      contentStore,
		Engine:       engine,
		FetchBaseURL: app.cfg.BaseURL,
		DefaultTTL:   app.cfg.CredentialTTL,
	}
	app.verifierService = &service.VerifierService{
		Store:           app.db,
		Ledger:          led,
		Engine:          engine,
		CallbackBaseURL: app.cfg.BaseURL,
		SessionTTL:      app.cfg.VerifySessionTTL,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.portalService,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP wires the operational endpoints. The wallet/portal API surface
// lives behind the institution's gateway; this process exposes health and
// metrics only.
func (app *Application) initHTTP() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := app.db.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
