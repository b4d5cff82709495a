package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"prediction-amm/internal/amm"
	"prediction-amm/internal/auth"
	s3blob "prediction-amm/internal/blob/s3"
	rediscache "prediction-amm/internal/cache/redis"
	"prediction-amm/internal/config"
	"prediction-amm/internal/database"
	"prediction-amm/internal/handlers"
	"prediction-amm/internal/jobs"
	"prediction-amm/internal/repository"
	"prediction-amm/internal/services"
	"prediction-amm/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	if err := database.Connect(cfg.Database.Driver, cfg.GetDSN()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(database.GetDB()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	engine, err := amm.NewEngine(cfg.AMM)
	if err != nil {
		log.Fatalf("Invalid AMM parameters: %v", err)
	}
	repo := repository.NewMarketRepository(database.GetDB())
	hub := ws.NewHub()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })

	var locker services.MarketLocker = services.NewKeyedMutex()
	var publisher services.EventPublisher = hub
	var opts []services.PoolManagerOption

	// Redis makes the market lock and the event stream span replicas
	if cfg.Redis.Enabled() {
		rc, err := rediscache.New(ctx, rediscache.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rc.Close()

		bus := rediscache.NewEventBus(rc)
		msgs, err := bus.Subscribe(gctx, services.MarketChannelPattern)
		if err != nil {
			log.Fatalf("Failed to subscribe to market events: %v", err)
		}
		g.Go(func() error { return relayEvents(gctx, msgs, hub) })

		locker = rediscache.NewLockManager(rc, cfg.Redis.LockTTL)
		publisher = bus
		log.Printf("Redis enabled at %s: distributed market locks and event bus", cfg.Redis.Addr)
	}
	opts = append(opts, services.WithEventPublisher(publisher))

	if cfg.S3.Enabled() {
		blob, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			log.Fatalf("Failed to configure settlement archive: %v", err)
		}
		if err := blob.Health(ctx); err != nil {
			log.Printf("WARNING: settlement archive unreachable: %v", err)
		}
		opts = append(opts, services.WithSettlementArchive(s3blob.NewSettlementArchive(blob, cfg.S3.Prefix)))
		log.Printf("Settlement archive enabled: s3://%s/%s", blob.Bucket(), cfg.S3.Prefix)
	}

	pools := services.NewPoolManager(repo, engine, locker, opts...)

	// Background jobs
	snapshotJob := jobs.NewPriceSnapshotJob(pools, repo, cfg.Jobs.SnapshotInterval)
	g.Go(func() error { return snapshotJob.Run(gctx) })
	if cfg.Jobs.SettleInterval > 0 {
		settlementJob := jobs.NewSettlementJob(pools, cfg.Jobs.SettleInterval)
		g.Go(func() error { return settlementJob.Run(gctx) })
	}

	// Set up Gin router
	router := gin.Default()

	// CORS middleware
	allowedOrigins := []string{
		"http://localhost:3000", // Local development
		"http://localhost:5173", // Vite dev server
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
	if cfg.App.FrontendURL != "" {
		allowedOrigins = append(allowedOrigins, cfg.App.FrontendURL)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handlers.RegisterRoutes(router, handlers.NewMarketHandler(pools, repo, hub))

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	g.Go(func() error {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		log.Printf("Health check: http://localhost:%s/health", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown once a signal arrives or any component fails
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server stopped with error: %v", err)
	}
	log.Println("Server exited")
}

// relayEvents copies market events received from Redis into the local hub so
// WebSocket clients on this replica see trades made on every replica.
func relayEvents(ctx context.Context, msgs <-chan rediscache.Message, hub *ws.Hub) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := hub.Publish(ctx, msg.Channel, msg.Payload); err != nil && ctx.Err() == nil {
				log.Printf("[Relay] Failed to forward event on %s: %v", msg.Channel, err)
			}
		}
	}
}
