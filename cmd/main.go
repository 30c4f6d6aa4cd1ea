// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Shivanand-hulikatti/conference-registration/internal/capacity"
	"github.com/Shivanand-hulikatti/conference-registration/internal/catalog"
	"github.com/Shivanand-hulikatti/conference-registration/internal/config"
	"github.com/Shivanand-hulikatti/conference-registration/internal/database"
	"github.com/Shivanand-hulikatti/conference-registration/internal/handler"
	"github.com/Shivanand-hulikatti/conference-registration/internal/notify"
	"github.com/Shivanand-hulikatti/conference-registration/internal/payment"
	"github.com/Shivanand-hulikatti/conference-registration/internal/repository"
	"github.com/Shivanand-hulikatti/conference-registration/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:          "confreg",
		Short:        "Conference registration payment and workshop capacity service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./confreg.yaml if present)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return serve(cmd.Context(), cfg, newLogger(cfg.LogLevel))
		},
	}
	root.AddCommand(serveCmd, catalogCmd(), quoteCmd())
	return root
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func serve(parent context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Storage ───────────────────────────────────────────────────────
	var pool *pgxpool.Pool
	if cfg.Store == config.StorePostgres || cfg.SeatStore == config.StorePostgres {
		var err error
		pool, err = database.NewPool(ctx, cfg.DB.DSN(), logger)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()
		if err := database.ApplySchema(ctx, pool); err != nil {
			return err
		}
		logger.Info("connected to postgres", "host", cfg.DB.Host, "db", cfg.DB.Name)
	}

	var store service.RegistrationStore
	switch cfg.Store {
	case config.StorePostgres:
		store = repository.NewRegistrationRepository(pool)
	default:
		store = repository.NewMemoryRegistrationRepository()
	}

	var seats capacity.Store
	switch cfg.SeatStore {
	case config.StorePostgres:
		seats = repository.NewWorkshopSeatRepository(pool)
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		seats = repository.NewRedisSeatStore(client, cfg.RedisPrefix)
		logger.Info("connected to redis", "addr", cfg.RedisAddr)
	default:
		seats = capacity.NewMemoryStore()
	}

	// ── 2. Catalog and seat pools ────────────────────────────────────────
	catalogs := catalog.NewProvider(cfg.CatalogPath, cfg.CatalogTTL, logger)
	cat, err := catalogs.Current(ctx)
	if err != nil {
		return err
	}
	ledger := capacity.NewLedger(seats, logger)
	if err := ledger.Sync(ctx, cat.Workshops()); err != nil {
		return err
	}
	go reloadOnHangup(ctx, catalogs, ledger, logger)

	// ── 3. Gateway and notifications ─────────────────────────────────────
	var gateway payment.Gateway
	if cfg.Gateway.Sandbox {
		gateway = payment.NewSandboxGateway()
		logger.Warn("payment gateway in sandbox mode")
	} else {
		gateway = payment.NewHTTPGateway(cfg.Gateway.BaseURL, cfg.Gateway.KeyID, cfg.Gateway.KeySecret,
			&http.Client{Timeout: cfg.Gateway.Timeout})
	}
	broker := payment.NewBroker(gateway, cfg.Gateway.KeySecret, cfg.Gateway.Timeout, logger)

	var notifier service.Notifier = notify.LogNotifier{Logger: logger}
	if cfg.AMQPURL != "" {
		conn, ch, err := notify.SetupConn(ctx, cfg.AMQPURL, logger)
		if err != nil {
			return err
		}
		defer conn.Close()
		defer ch.Close()
		notifier = notify.NewAMQPNotifier(ch)
	}

	// ── 4. Wire up layers ────────────────────────────────────────────────
	deps := service.Deps{
		Store:    store,
		Catalogs: catalogs,
		Ledger:   ledger,
		Broker:   broker,
		Notifier: notifier,
		Logger:   logger,
	}
	h := handler.NewRegistrationHandler(service.NewRegistrations(deps), service.NewReconciler(deps), logger)

	// ── 5. Start server with graceful shutdown ───────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.NewRouter(h, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "store", cfg.Store, "seat_store", cfg.SeatStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// reloadOnHangup drops the cached catalog on SIGHUP and resizes seat pools
// from the new file.
func reloadOnHangup(ctx context.Context, catalogs *catalog.Provider, ledger *capacity.Ledger, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			catalogs.Invalidate()
			cat, err := catalogs.Current(ctx)
			if err != nil {
				logger.Error("catalog reload failed", "error", err)
				continue
			}
			if err := ledger.Sync(ctx, cat.Workshops()); err != nil {
				logger.Error("seat pool sync failed", "error", err)
				continue
			}
			logger.Info("catalog reloaded", "workshops", len(cat.Workshops()))
		}
	}
}
