// cmd/worker runs the job queue's dequeue loop against the same Redis
// keys cmd/server enqueues into — a separate process so the HTTP path
// never blocks on job dispatch and the two can scale independently, the
// way the teacher splits cmd/api from its background processors.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/balungpisah/gotong-royong-core/internal/actor"
	"github.com/balungpisah/gotong-royong-core/internal/config"
	"github.com/balungpisah/gotong-royong-core/internal/events"
	"github.com/balungpisah/gotong-royong-core/internal/idutil"
	"github.com/balungpisah/gotong-royong-core/internal/infra"
	"github.com/balungpisah/gotong-royong-core/internal/job"
	"github.com/balungpisah/gotong-royong-core/internal/job/redisqueue"
	"github.com/balungpisah/gotong-royong-core/internal/metrics"
	"github.com/balungpisah/gotong-royong-core/internal/moderation"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load(getenv("CORE_CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Redis.Addr == "" {
		log.Fatal("cmd/worker requires redis.addr to be configured — the in-memory queue only exists within a single cmd/server process")
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(slogger)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	redisAdapter, err := infra.NewGoRedisAdapter(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer redisAdapter.Close()

	adminEvents := events.NewEventBus()

	jobQueue := redisqueue.New(redisAdapter.Client(), cfg.Redis.Prefix+":jobs")
	worker := job.NewWorker(jobQueue, job.WorkerConfig{
		PromoteLimit:  100,
		DequeueMs:     int64(cfg.Jobs.DequeueTimeout() / time.Millisecond),
		BackoffBaseMs: int64(cfg.Jobs.BackoffBaseMs),
		BackoffMaxMs:  int64(cfg.Jobs.BackoffMaxMs),
	}, slogger, m)

	// The worker needs the same moderation repository cmd/server's HTTP
	// path writes to, so AutoRelease sees the hold it's releasing. A
	// Redis-backed moderation.Repository is out of this core's scope
	// (see DESIGN.md); until one exists, cmd/worker and cmd/server must
	// run as a single moderation-owning process even though the queue
	// itself is already fully cross-process capable.
	moderationRepo := moderation.NewMemoryRepository()
	moderationSvc := moderation.NewService(moderationRepo, worker, slogger, m).WithEventEmitter(adminEvents)
	worker.Register(moderation.EventAutoReleaseJob, func(ctx context.Context, env job.Envelope) error {
		_, err := moderationSvc.AutoRelease(ctx, moderation.AutoReleaseCommand{
			Actor:                 actor.Identity{UserID: "system", Username: "system"},
			TokenRole:             actor.RoleSystem,
			ContentID:             env.Payload["content_id"],
			HoldDecisionRequestID: env.Payload["hold_decision_request_id"],
			RequestID:             env.RequestID,
			CorrelationID:         env.CorrelationID,
			RequestTSMs:           idutil.NowMillis(),
		})
		return err
	})

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		slogger.Info("shutdown signal received")
		cancel()
	}()

	slogger.Info("job worker starting", "queue_prefix", cfg.Redis.Prefix+":jobs")
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		slogger.Error("job worker stopped", "error", err)
		os.Exit(1)
	}
	slogger.Info("job worker stopped")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
