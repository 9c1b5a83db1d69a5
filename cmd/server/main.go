package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"civicdesk/internal/admin"
	"civicdesk/internal/consent"
	consenthandler "civicdesk/internal/consent/handler"
	"civicdesk/internal/feed"
	"civicdesk/internal/identity"
	"civicdesk/internal/issue"
	issuehandler "civicdesk/internal/issue/handler"
	"civicdesk/internal/notify"
	"civicdesk/internal/platform/config"
	"civicdesk/internal/platform/httpserver"
	"civicdesk/internal/platform/logger"
	"civicdesk/internal/platform/metrics"
	"civicdesk/internal/platform/middleware"
	platformredis "civicdesk/internal/platform/redis"
	"civicdesk/internal/platform/token"
	"civicdesk/internal/ratelimit"
	"civicdesk/pkg/platform/audit"
)

// main wires the portal's dependencies and keeps the server lifecycle small.
// Business logic lives in the internal packages; everything here is assembly.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	broker := feed.NewBroker(m)
	publishers := feed.Fanout{broker}

	group, runCtx := errgroup.WithContext(ctx)

	var (
		profileStore identity.Store
		issueStore   issue.Store
		consentStore consent.Store
		auditStore   audit.Store
	)
	if cfg.DemoMode {
		log.Info("demo mode: all state held in memory")
		profileStore = identity.NewInMemoryStore()
		issueStore = issue.NewInMemoryStore()
		consentStore = consent.NewInMemoryStore()
		auditStore = audit.NewInMemoryStore()
	} else {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping postgres", "error", err)
			os.Exit(1)
		}
		profileStore = identity.NewPostgres(db)
		issueStore = issue.NewPostgres(db)
		consentStore = consent.NewPostgres(db)
		auditStore = audit.NewPostgres(db)
	}

	bucketStore := ratelimit.BucketStore(ratelimit.NewInMemoryBucketStore())
	if !cfg.DemoMode && cfg.Redis.URL != "" {
		redisClient, err := platformredis.New(cfg.Redis)
		if err != nil {
			log.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		bucketStore = ratelimit.NewRedisBucketStore(redisClient.Client)

		bridge := feed.NewBridge(redisClient.Client, broker, log)
		publishers = append(publishers, bridge)
		group.Go(func() error {
			err := bridge.Run(runCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if !cfg.DemoMode && len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err := feed.NewKafkaClient(cfg.Kafka.Brokers)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer kafkaClient.Close()
		publishers = append(publishers, feed.NewKafkaOutbox(kafkaClient, cfg.Kafka.Topic, log))
	}

	trail := audit.NewTrail(256, log)
	group.Go(func() error {
		err := trail.Run(runCtx, auditStore)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	limiter, err := ratelimit.NewLimiter(bucketStore, cfg.IssueCreateLimit, cfg.IssueCreateWindow, log)
	if err != nil {
		log.Error("configure rate limiter", "error", err)
		os.Exit(1)
	}

	registry := consent.DefaultRegistry()
	consentService := consent.NewService(consentStore, registry)
	engine := issue.NewEngine(issueStore, limiter, trail, publishers, m, log)
	adminService := admin.NewService(profileStore, consentService, notify.NewLogNotifier(log), trail, publishers, m, log)

	resolver := token.NewResolver(cfg.JWTSigningKey, profileStore)

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(log))

	issuehandler.New(engine, resolver, log).Register(router)
	consenthandler.New(consentService, registry, resolver, log).Register(router)
	admin.NewHandler(adminService, resolver, log).Register(router)
	feed.NewSSEHandler(broker, log).Register(router)

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, router)
	group.Go(func() error {
		log.Info("starting civicdesk", "addr", cfg.Addr, "demo_mode", cfg.DemoMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
