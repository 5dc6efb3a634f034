// Command permitdesk runs the permit review service with its operational
// surface: health and metrics endpoints, a websocket event feed, and the
// notification retention janitor.
//
// Environment variables:
//
//	PERMITDESK_STORE_DRIVER        memory | sqlite | postgres (default memory)
//	PERMITDESK_SQLITE_PATH         sqlite database file (default permitdesk.db)
//	PERMITDESK_POSTGRES_DSN        postgres connection string
//	PERMITDESK_BLOB_DRIVER         fs | s3 | memory (default fs)
//	PERMITDESK_REDIS_ADDR          redis address; empty selects the in-process bus
//	PERMITDESK_SMTP_HOST           SMTP relay; empty disables outbound mail
//	PERMITDESK_PAYMENT_WEBHOOK_SECRET  webhook HMAC secret; empty disables payments
//	PERMITDESK_RETENTION_SCHEDULE  cron expression (default "0 3 * * *")
//	PERMITDESK_RETENTION_DAYS      notification age cutoff in days (default 90)
//	PERMITDESK_LISTEN              ops HTTP listen address (default :8080)
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"permitdesk/internal/core"
	"permitdesk/internal/infra/blob"
	busmemory "permitdesk/internal/infra/bus/memory"
	busredis "permitdesk/internal/infra/bus/redis"
	"permitdesk/internal/infra/bus/ws"
	"permitdesk/internal/infra/mail/smtp"
	"permitdesk/internal/infra/payment"
	"permitdesk/internal/infra/persistence"
	"permitdesk/pkg/domain"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("permitdesk exited")
	}
}

func run(log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := persistence.OpenFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("open entity store: %w", err)
	}
	blobs, err := blob.OpenFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	var (
		bus        domain.EventBus
		subscriber ws.Subscriber
	)
	if addr := os.Getenv("PERMITDESK_REDIS_ADDR"); addr != "" {
		rb, err := busredis.Open(ctx, addr)
		if err != nil {
			return fmt.Errorf("open redis bus: %w", err)
		}
		bus, subscriber = rb, rb
		log.Info().Str("addr", addr).Msg("using redis event bus")
	} else {
		mb := busmemory.New()
		bus, subscriber = mb, mb
		log.Info().Msg("using in-process event bus")
	}

	dispatcherOpts := []core.DispatcherOption{}
	if os.Getenv("PERMITDESK_SMTP_HOST") != "" {
		mailer, err := smtp.OpenFromEnv()
		if err != nil {
			return fmt.Errorf("open mailer: %w", err)
		}
		dispatcherOpts = append(dispatcherOpts, core.WithMailer(mailer, os.Getenv("PERMITDESK_SMTP_FROM")))
	}
	dispatcher := core.NewDispatcher(store, bus, log, dispatcherOpts...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := core.NewPrometheusMetrics(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	svcOpts := []core.Option{
		core.WithBlobStore(blobs),
		core.WithMetrics(metrics),
	}
	if os.Getenv(payment.EnvWebhookSecret) != "" {
		gateway, err := payment.OpenFromEnv()
		if err != nil {
			return fmt.Errorf("open payment gateway: %w", err)
		}
		svcOpts = append(svcOpts, core.WithPaymentGateway(gateway))
	}
	svc := core.NewService(store, dispatcher, log, svcOpts...)

	janitor, err := startJanitor(ctx, svc, log)
	if err != nil {
		return err
	}
	defer janitor.Stop()

	hub := ws.NewHub(subscriber, log)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok connections=%d\n", hub.ConnectionCount())
	})
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		// Authentication lives in the fronting proxy; it forwards the
		// resolved identity.
		userID := r.Header.Get("X-Permitdesk-User")
		if userID == "" {
			http.Error(w, "missing user identity", http.StatusUnauthorized)
			return
		}
		hub.ServeUser(w, r, userID)
	})

	listen := os.Getenv("PERMITDESK_LISTEN")
	if listen == "" {
		listen = ":8080"
	}
	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", listen).Msg("ops server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown ops server: %w", err)
		}
		dispatcher.Flush()
		return nil
	case err := <-errCh:
		return fmt.Errorf("ops server: %w", err)
	}
}

// startJanitor schedules the notification retention purge.
func startJanitor(ctx context.Context, svc *core.Service, log zerolog.Logger) (*cron.Cron, error) {
	schedule := os.Getenv("PERMITDESK_RETENTION_SCHEDULE")
	if schedule == "" {
		schedule = "0 3 * * *"
	}
	days := 90
	if raw := os.Getenv("PERMITDESK_RETENTION_DAYS"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("PERMITDESK_RETENTION_DAYS: invalid value %q", raw)
		}
		days = d
	}
	retain := time.Duration(days) * 24 * time.Hour

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		n, err := svc.PurgeAllNotifications(ctx, retain)
		if err != nil {
			log.Warn().Err(err).Msg("retention purge failed")
			return
		}
		log.Info().Int("deleted", n).Msg("retention purge completed")
	})
	if err != nil {
		return nil, fmt.Errorf("schedule retention purge: %w", err)
	}
	c.Start()
	log.Info().Str("schedule", schedule).Int("retention_days", days).Msg("retention janitor started")
	return c, nil
}
