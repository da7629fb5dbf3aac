package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"storefront-checkout/internal/config"
	"storefront-checkout/internal/database"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/events"
	"storefront-checkout/internal/infrastructure/catalog"
	"storefront-checkout/internal/infrastructure/payment"
	"storefront-checkout/internal/logger"
	"storefront-checkout/internal/repo"
	"storefront-checkout/internal/server"
	"storefront-checkout/internal/service"
	"storefront-checkout/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{
		Service: "storefront-checkout",
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
	})
	if cfg.AppEnv != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := cfg.DB.DSN()
	if err := database.RunMigrations(dsn, log); err != nil {
		return err
	}
	db, err := database.New(dsn, cfg.DB.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, session tier writes will fail until it recovers", "addr", cfg.RedisAddr, "err", err)
	}

	orders := service.NewOrderService(db.DB(), repo.NewOrderRepo(db.DB()))
	ledger := service.NewCaptureLedger(db.DB(), repo.NewCaptureRepo(db.DB()))

	broadcaster := events.NewBroadcaster()
	sinks := []events.Sink{broadcaster}
	if cfg.RabbitMQURL != "" {
		conn, err := events.Dial(cfg.RabbitMQURL)
		if err != nil {
			return err
		}
		defer conn.Close()
		pub, err := events.NewRabbitPublisher(conn)
		if err != nil {
			return err
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	var cat catalog.Client
	if cfg.CatalogURL != "" {
		if cat, err = catalog.NewClient(cfg.CatalogURL, cfg.CatalogTimeout); err != nil {
			return err
		}
	}

	gateway := payment.NewPaymentGateway(payment.WithLogger(log))
	checkout := service.NewCheckoutService(service.CheckoutConfig{
		Processor: gateway,
		Recorder:  orders,
		Ledger:    ledger,
		Events:    events.Fanout(log, sinks...),
		Currency:  cfg.Currency,
		Logger:    log,
	})
	gateway.OnCapture(func(res domain.CaptureResult) {
		if err := checkout.HandleCapture(context.Background(), res); err != nil {
			log.Warn("capture callback", "handle_id", res.HandleID, "err", err)
		}
	})

	sessions := service.NewSessionService(service.SessionConfig{
		LongLived:   repo.NewSnapshotRepo(db.DB()),
		SessionTier: repo.NewSessionRepo(rdb, cfg.SessionTTL),
		Debounce:    cfg.PersistDebounce,
		IdleTimeout: cfg.SessionIdle,
		Logger:      log,
	})
	go worker.NewSessionSweeper(sessions, cfg.SessionSweepEvery, log).Run(ctx)

	rw := worker.NewReconciliationWorker(checkout, gateway, ledger, worker.Config{
		Interval:       cfg.ReconcileInterval,
		StuckAfter:     cfg.StuckAfter,
		CaptureTimeout: cfg.CaptureTimeout,
	}, log)
	go rw.Run(ctx)

	srv := server.New(server.Deps{
		Sessions:       sessions,
		Checkout:       checkout,
		Orders:         orders,
		Catalog:        cat,
		Events:         broadcaster,
		Health:         db,
		Logger:         log,
		AllowOrigins:   cfg.CORSAllowOrigins,
		RequestTimeout: cfg.CatalogTimeout,
		WebhookSecret:  cfg.WebhookSecret,
	}).HTTPServer(cfg.Port)

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "err", err)
	}
	if err := sessions.FlushAll(shutdownCtx); err != nil {
		log.Error("flush carts", "err", err)
	}
	gateway.Wait()
	return nil
}
