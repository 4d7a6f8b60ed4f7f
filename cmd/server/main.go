package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/balungpisah/gotong-royong-core/internal/actor"
	"github.com/balungpisah/gotong-royong-core/internal/adaptivepath"
	"github.com/balungpisah/gotong-royong-core/internal/chat"
	"github.com/balungpisah/gotong-royong-core/internal/circuitbreaker"
	"github.com/balungpisah/gotong-royong-core/internal/config"
	"github.com/balungpisah/gotong-royong-core/internal/events"
	"github.com/balungpisah/gotong-royong-core/internal/httpapi"
	"github.com/balungpisah/gotong-royong-core/internal/idempotency"
	"github.com/balungpisah/gotong-royong-core/internal/idutil"
	"github.com/balungpisah/gotong-royong-core/internal/infra"
	"github.com/balungpisah/gotong-royong-core/internal/job"
	"github.com/balungpisah/gotong-royong-core/internal/job/memqueue"
	"github.com/balungpisah/gotong-royong-core/internal/job/redisqueue"
	"github.com/balungpisah/gotong-royong-core/internal/markov"
	"github.com/balungpisah/gotong-royong-core/internal/metrics"
	"github.com/balungpisah/gotong-royong-core/internal/moderation"
	"github.com/balungpisah/gotong-royong-core/internal/realtime"
	"github.com/balungpisah/gotong-royong-core/internal/siaga"
	"github.com/balungpisah/gotong-royong-core/internal/vault"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load(getenv("CORE_CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// Redis is optional: every store this core uses has an in-memory
	// fallback, same graceful-degradation shape as the teacher's
	// cmd/api wiring of infra.GoRedisAdapter.
	var redisAdapter *infra.GoRedisAdapter
	if cfg.Redis.Addr != "" {
		adapter, err := infra.NewGoRedisAdapter(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("redis connection failed, falling back to in-memory stores", "addr", cfg.Redis.Addr, "error", err)
		} else {
			redisAdapter = adapter
			defer redisAdapter.Close()
		}
	}

	idemStore := idempotency.Store(idempotency.NewMemoryStore())
	if redisAdapter != nil {
		idemStore = idempotency.NewRedisStore(redisAdapter.Client(), cfg.Redis.Prefix+":idempotency")
	}
	idemSvc := idempotency.NewService(idemStore, idempotency.Config{
		InProgressTTL: cfg.Idempotency.InProgressTTL(),
		CompletedTTL:  cfg.Idempotency.CompletedTTL(),
	}, log, m)
	_ = idemSvc // available to any handler that wants begin/complete replay semantics

	// Shared admin/observability event stream — every domain service
	// emits its command outcomes here as CloudEvents, independent of
	// the metrics counters.
	adminEvents := events.NewEventBus()

	adaptivepathRepo := adaptivepath.NewMemoryRepository()
	adaptivepathSvc := adaptivepath.NewService(adaptivepathRepo, log, m).WithEventEmitter(adminEvents)

	siagaRepo := siaga.NewMemoryRepository()
	siagaSvc := siaga.NewService(siagaRepo, log, m).WithEventEmitter(adminEvents)

	vaultRepo := vault.NewMemoryRepository()
	vaultSvc := vault.NewService(vaultRepo, log, m).WithEventEmitter(adminEvents)

	// In single-process (no Redis) deployments the job loop runs embedded
	// in this process below. Once Redis is available, cmd/worker owns the
	// dequeue loop against the same queue keys — cmd/server only enqueues
	// (moderation's auto-release scheduling) and never calls worker.Run.
	var jobQueue job.Queue = memqueue.New()
	if redisAdapter != nil {
		jobQueue = redisqueue.New(redisAdapter.Client(), cfg.Redis.Prefix+":jobs")
	}
	worker := job.NewWorker(jobQueue, job.WorkerConfig{
		PromoteLimit:  100,
		DequeueMs:     int64(cfg.Jobs.DequeueTimeout() / time.Millisecond),
		BackoffBaseMs: int64(cfg.Jobs.BackoffBaseMs),
		BackoffMaxMs:  int64(cfg.Jobs.BackoffMaxMs),
	}, log, m)

	moderationRepo := moderation.NewMemoryRepository()
	moderationSvc := moderation.NewService(moderationRepo, worker, log, m).WithEventEmitter(adminEvents)
	worker.Register(moderation.EventAutoReleaseJob, func(ctx context.Context, env job.Envelope) error {
		_, err := moderationSvc.AutoRelease(ctx, moderation.AutoReleaseCommand{
			Actor:                 actorSystem(),
			TokenRole:             systemRole(),
			ContentID:             env.Payload["content_id"],
			HoldDecisionRequestID: env.Payload["hold_decision_request_id"],
			RequestID:             env.RequestID,
			CorrelationID:         env.CorrelationID,
			RequestTSMs:           idutil.NowMillis(),
		})
		return err
	})

	bus := realtime.New(cfg.Realtime.ChannelCapacity, m)
	chatRepo := chat.NewMemoryRepository()
	chatSvc := chat.NewService(chatRepo, bus, log, m).WithEventEmitter(adminEvents)
	if redisAdapter != nil {
		relay := chat.NewRedisRelay(redisAdapter.Client(), bus, cfg.Redis.Prefix, idutil.NewID(), log)
		chatSvc = chatSvc.WithRelay(relay)
	}

	breaker := circuitbreaker.New(circuitbreaker.MarkovProfile(uint32(cfg.Markov.CircuitFailThreshold), cfg.Markov.CircuitOpenDuration()))
	markovClient := markov.NewClient(http.DefaultClient, cfg.Markov, breaker)
	markovSvc := markov.NewService(markovClient, cfg.Markov, log, m)

	ctx, cancel := context.WithCancel(context.Background())
	if redisAdapter == nil {
		go func() {
			if err := worker.Run(ctx); err != nil && err != context.Canceled {
				log.Error("job worker stopped", "error", err)
			}
		}()
	} else {
		log.Info("redis available: run cmd/worker separately to process the job queue")
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")

	api := router.PathPrefix("/v1").Subrouter()

	api.HandleFunc("/chat/threads/{threadId}/messages", httpapi.SendMessage(chatSvc)).Methods("POST")
	api.HandleFunc("/chat/threads/{threadId}/messages", httpapi.Catchup(chatSvc)).Methods("GET")
	api.HandleFunc("/chat/threads/{threadId}/read-cursor", httpapi.MarkRead(chatSvc)).Methods("PUT")
	api.HandleFunc("/chat/threads/{threadId}/stream", httpapi.Stream(chatSvc, log))

	api.HandleFunc("/adaptive-path/plans", httpapi.CreatePlan(adaptivepathSvc)).Methods("POST")
	api.HandleFunc("/adaptive-path/plans/{planId}", httpapi.UpdatePlan(adaptivepathSvc)).Methods("PATCH")
	api.HandleFunc("/adaptive-path/plans/{planId}/suggestions", httpapi.ProposeSuggestion(adaptivepathSvc)).Methods("POST")
	api.HandleFunc("/adaptive-path/suggestions/{suggestionId}/accept", httpapi.AcceptSuggestion(adaptivepathSvc)).Methods("POST")
	api.HandleFunc("/adaptive-path/suggestions/{suggestionId}/reject", httpapi.RejectSuggestion(adaptivepathSvc)).Methods("POST")

	api.HandleFunc("/siaga/broadcasts", httpapi.CreateSiagaDraft(siagaSvc)).Methods("POST")
	api.HandleFunc("/siaga/broadcasts/{siagaId}", httpapi.UpdateSiaga(siagaSvc)).Methods("PATCH")
	api.HandleFunc("/siaga/broadcasts/{siagaId}/activate", httpapi.ActivateSiaga(siagaSvc)).Methods("POST")
	api.HandleFunc("/siaga/broadcasts/{siagaId}/responders/me", httpapi.JoinSiagaResponder(siagaSvc)).Methods("PUT")
	api.HandleFunc("/siaga/broadcasts/{siagaId}/close", httpapi.CloseSiaga(siagaSvc)).Methods("POST")
	api.HandleFunc("/siaga/broadcasts/{siagaId}/cancel", httpapi.CancelSiaga(siagaSvc)).Methods("POST")

	api.HandleFunc("/vault/entries", httpapi.CreateVaultDraft(vaultSvc)).Methods("POST")
	api.HandleFunc("/vault/entries/{entryId}", httpapi.UpdateVaultDraft(vaultSvc)).Methods("PATCH")
	api.HandleFunc("/vault/entries/{entryId}", httpapi.DeleteVaultDraft(vaultSvc)).Methods("DELETE")
	api.HandleFunc("/vault/entries/{entryId}/trustees", httpapi.AddVaultTrustee(vaultSvc)).Methods("POST")
	api.HandleFunc("/vault/entries/{entryId}/trustees/{trusteeId}", httpapi.RemoveVaultTrustee(vaultSvc)).Methods("DELETE")
	api.HandleFunc("/vault/entries/{entryId}/seal", httpapi.SealVaultEntry(vaultSvc)).Methods("POST")
	api.HandleFunc("/vault/entries/{entryId}/publish", httpapi.PublishVaultEntry(vaultSvc)).Methods("POST")
	api.HandleFunc("/vault/entries/{entryId}/revoke", httpapi.RevokeVaultEntry(vaultSvc)).Methods("POST")
	api.HandleFunc("/vault/entries/{entryId}/expire", httpapi.ExpireVaultEntry(vaultSvc)).Methods("POST")

	api.HandleFunc("/moderation/content/{contentId}/decisions", httpapi.WriteModerationDecision(moderationSvc)).Methods("POST")

	api.HandleFunc("/markov/users/{userId}/reputation", httpapi.GetUserReputation(markovSvc)).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second, // long-poll SSE/WS streams outlive this via Hijack/Flusher
		IdleTimeout:  60 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", "error", err)
		}
	}()

	log.Info("gotong-royong-core starting", "port", cfg.Server.Port, "env", cfg.Server.Env)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func actorSystem() actor.Identity {
	return actor.Identity{UserID: "system", Username: "system"}
}

func systemRole() actor.Role {
	return actor.RoleSystem
}
