package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/safar/qooldab/internal/api"
	"github.com/safar/qooldab/internal/auth"
	"github.com/safar/qooldab/internal/config"
	"github.com/safar/qooldab/internal/database"
	"github.com/safar/qooldab/internal/idempotency"
	"github.com/safar/qooldab/internal/logger"
	"github.com/safar/qooldab/internal/settlement"
	"github.com/safar/qooldab/internal/store"
	"go.uber.org/zap"
)

const purgeInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logr, err := logger.New(&cfg.Log)
	if err != nil {
		log.Fatalf("Create logger: %v", err)
	}
	defer logr.Sync()

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	logr.Info("connected to database")

	var idem *idempotency.Store
	if cfg.Idempotency.Path != "" {
		idem, err = idempotency.Open(cfg.Idempotency.Path, cfg.Idempotency.TTL)
		if err != nil {
			return err
		}
		defer idem.Close()

		go purgeLoop(ctx, idem, logr)
		logr.Info("idempotency cache enabled", zap.String("path", cfg.Idempotency.Path))
	}

	service := settlement.New(db,
		settlement.WithTxOptions(database.TxOptionsFrom(&cfg.Database)),
		settlement.WithLogger(logr.Named("settlement")),
	)

	srv := api.NewServer(api.Config{
		Settler:     service,
		Reader:      store.NewReader(db),
		Identity:    auth.HeaderProvider{},
		Idempotency: idem,
		Logger:      logr.Named("http"),
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

func purgeLoop(ctx context.Context, idem *idempotency.Store, logr *zap.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := idem.Purge()
			if err != nil {
				logr.Warn("purge idempotency cache", zap.Error(err))
				continue
			}
			if removed > 0 {
				logr.Debug("purged idempotency cache", zap.Int("removed", removed))
			}
		}
	}
}
