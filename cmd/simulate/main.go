package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront-checkout/internal/config"
	"storefront-checkout/internal/database"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/identity"
	"storefront-checkout/internal/infrastructure/payment"
	"storefront-checkout/internal/logger"
	"storefront-checkout/internal/repo"
	"storefront-checkout/internal/service"
	"storefront-checkout/internal/worker"
)

var shelf = []domain.Product{
	{ID: "1", Name: "Desk Lamp", Price: decimal.RequireFromString("10.00")},
	{ID: "2", Name: "Notebook", Price: decimal.RequireFromString("5.50")},
	{ID: "3", Name: "Fountain Pen", Price: decimal.RequireFromString("24.99")},
	{ID: "4", Name: "Mug", Price: decimal.RequireFromString("7.25")},
}

func main() {
	orders := flag.Int("orders", 20, "number of checkouts to run")
	latency := flag.Duration("latency", 200*time.Millisecond, "processor settlement latency")
	reconcileFor := flag.Duration("reconcile-for", 6*time.Second, "how long the reconciliation worker runs")
	flag.Parse()

	cfg := config.Load()
	log := logger.New(logger.Options{Service: "simulate", Env: cfg.AppEnv, Level: "warn"})
	ctx := context.Background()

	dsn := cfg.DB.DSN()
	if err := database.RunMigrations(dsn, log); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	db, err := database.New(dsn, cfg.DB.Database, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer db.Close()

	orderService := service.NewOrderService(db.DB(), repo.NewOrderRepo(db.DB()))
	ledger := service.NewCaptureLedger(db.DB(), repo.NewCaptureRepo(db.DB()))
	gateway := payment.NewPaymentGateway(payment.WithLatency(*latency), payment.WithLogger(log))
	checkout := service.NewCheckoutService(service.CheckoutConfig{
		Processor: gateway,
		Recorder:  orderService,
		Ledger:    ledger,
		Currency:  cfg.Currency,
		Logger:    log,
	})
	gateway.OnCapture(func(res domain.CaptureResult) {
		_ = checkout.HandleCapture(ctx, res)
	})
	sessions := service.NewSessionService(service.SessionConfig{
		LongLived:   repo.NewMemoryTier(),
		SessionTier: repo.NewMemoryTier(),
		Logger:      log,
	})

	fmt.Printf("--- STARTING SIMULATION (%d CHECKOUTS) ---\n", *orders)
	ids := make([]uuid.UUID, 0, *orders)
	for i := 0; i < *orders; i++ {
		sess, err := sessions.Open(ctx, fmt.Sprintf("client-%d", i), fmt.Sprintf("session-%d", i), identity.Recognized(fmt.Sprintf("user-%d", i)))
		if err != nil {
			fmt.Printf("[%d] open session: %v\n", i+1, err)
			continue
		}
		for n := rand.IntN(3) + 1; n > 0; n-- {
			p := shelf[rand.IntN(len(shelf))]
			if _, err := sess.Store.Add(domain.NewLineItem(p, rand.IntN(3)+1)); err != nil {
				fmt.Printf("[%d] add item: %v\n", i+1, err)
			}
		}

		a, err := checkout.Submit(ctx, sess)
		if err != nil {
			fmt.Printf("[%d] submit FAILED: %v\n", i+1, err)
			continue
		}
		fmt.Printf("[%d] order %s submitted for %s\n", i+1, a.Order.ID, a.Order.SubmittedAmount.StringFixed(2))
		ids = append(ids, a.Order.ID)
	}

	fmt.Println("--- WAITING FOR CAPTURE RESULTS ---")
	for _, id := range ids {
		waitCtx, cancel := context.WithTimeout(ctx, 2*(*latency))
		a, err := checkout.Await(waitCtx, id)
		cancel()
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			fmt.Printf("    %s still %s (no result delivered)\n", id, a.State)
		case a.Err != nil:
			fmt.Printf("    %s %s: %v\n", id, a.State, a.Err)
		default:
			fmt.Printf("    %s %s\n", id, a.State)
		}
	}

	fmt.Println("--- RUNNING RECONCILIATION ---")
	rw := worker.NewReconciliationWorker(checkout, gateway, ledger, worker.Config{
		Interval:       500 * time.Millisecond,
		StuckAfter:     *latency,
		CaptureTimeout: 4*(*latency),
	}, log)
	runCtx, stop := context.WithTimeout(ctx, *reconcileFor)
	rw.Run(runCtx)
	stop()
	gateway.Wait()

	fmt.Println("--- FINAL STATE ---")
	counts := map[domain.AttemptState]int{}
	for _, id := range ids {
		a, err := checkout.Get(id)
		if err != nil {
			fmt.Printf("    %s: %v\n", id, err)
			continue
		}
		counts[a.State]++

		stored := "not recorded"
		if o, err := orderService.FindOrder(ctx, id); err == nil {
			stored = string(o.Status)
		}
		fmt.Printf("    %s attempt=%s db=%s\n", id, a.State, stored)
	}
	fmt.Printf("completed=%d failed=%d canceled=%d awaiting=%d\n",
		counts[domain.AttemptCompleted],
		counts[domain.AttemptFailed],
		counts[domain.AttemptCanceled],
		counts[domain.AttemptAwaitingCapture],
	)
}
