package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	stdhttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fedfollow/internal/activitypub"
	"fedfollow/internal/config"
	"fedfollow/internal/database"
	"fedfollow/internal/delivery"
	"fedfollow/internal/handler"
	"fedfollow/internal/model"
	"fedfollow/internal/presence"
	"fedfollow/internal/queue"
	redisclient "fedfollow/internal/redis"
	"fedfollow/internal/repository"
	"fedfollow/internal/service"
	"fedfollow/internal/worker"
)

const (
	userAgent       = "fedfollow/1.0"
	shutdownTimeout = 10 * time.Second
)

func Run() error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Storage: Postgres when configured, process memory otherwise
	var (
		actors        repository.ActorRepository
		relationships repository.RelationshipRepository
	)
	if cfg.UseDatabase() {
		db, err := database.Connect(cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := database.EnsureSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
		actors = repository.NewActorRepository(db)
		relationships = repository.NewRelationshipRepository(db)
	} else {
		log.Println("[Server] DB_HOST not set, using in-memory store")
		store := repository.NewMemoryStore()
		for _, entry := range cfg.SeedActors {
			a := store.PutActor(SeedActor(entry))
			log.Printf("[Server] Seeded local actor: id=%d username=%s policy=%s", a.ID, a.Username, a.Policy)
		}
		actors, relationships = store, store
	}

	resolver := service.NewActorResolver(actors, cfg.BaseURL, cfg.ActorCacheSize, cfg.ActorCacheTTL)
	sender := worker.NewHTTPSender(cfg.DeliveryTimeout, userAgent)

	// 3. Delivery and presence: Redis streams + pub/sub when configured
	var (
		gateway  service.DeliveryGateway
		notifier service.PresenceNotifier
	)
	if cfg.RedisURL != "" {
		rdb, err := redisclient.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()

		publisher := queue.NewPublisher(rdb.Client)
		scheduler := queue.NewScheduler(rdb.Client)
		deliveryHandler := worker.NewHandler(sender, scheduler, resolver, cfg.DeliveryMaxAttempts)
		manager := worker.NewManager(queue.NewConsumer(rdb.Client), deliveryHandler, worker.ManagerConfig{
			WorkerCount: cfg.DeliveryWorkers,
			Scheduler:   scheduler,
		})
		if err := manager.Start(ctx); err != nil {
			return fmt.Errorf("failed to start delivery workers: %w", err)
		}
		defer manager.Stop()

		gateway = delivery.NewQueueGateway(publisher)
		notifier = presence.NewRedisNotifier(rdb.Client)
	} else {
		log.Println("[Server] REDIS_URL not set, delivering inline without retries; presence disabled")
		inline := delivery.NewInlineGateway(worker.NewHandler(sender, nil, resolver, 1))
		defer func() {
			waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := inline.Wait(waitCtx); err != nil {
				log.Printf("[Server] Inline deliveries still running at exit: %v", err)
			}
		}()
		gateway = inline
	}

	followService := service.NewFollowService(resolver, relationships, activitypub.NewBuilder(), gateway, notifier)

	router := NewRouter(RouterConfig{
		FollowHandler: handler.NewFollowHandler(followService),
		JWTSecret:     cfg.JWTSecret,
	})

	// 4. Serve until interrupted
	srv := &stdhttp.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] Listening on :%s (base url %s)", cfg.ServerPort, cfg.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("[Server] Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// SeedActor parses a "name" or "name:manual" seed entry into a local actor.
func SeedActor(entry string) model.Actor {
	name, mode, _ := strings.Cut(entry, ":")
	actor := model.Actor{Username: strings.TrimSpace(name)}
	if strings.EqualFold(strings.TrimSpace(mode), "manual") {
		manual := false
		actor.AutoAccept = &manual
	}
	return actor
}
