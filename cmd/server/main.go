package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/secondhand-market/internal/config"
	"github.com/iliyamo/secondhand-market/internal/database"
	"github.com/iliyamo/secondhand-market/internal/handler"
	"github.com/iliyamo/secondhand-market/internal/logger"
	"github.com/iliyamo/secondhand-market/internal/middleware"
	"github.com/iliyamo/secondhand-market/internal/queue"
	"github.com/iliyamo/secondhand-market/internal/realtime"
	"github.com/iliyamo/secondhand-market/internal/repository"
	"github.com/iliyamo/secondhand-market/internal/router"
	"github.com/iliyamo/secondhand-market/internal/service"
	"github.com/iliyamo/secondhand-market/internal/storage"
)

func main() {
	_ = godotenv.Load() // .env is optional outside development
	cfg := config.Load()

	logFile, err := logger.Setup(cfg.Log, "server")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logFile.Close()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(migrateCtx, db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	cancelMigrate()

	rdb := config.NewRedisClient()
	feed, presence := realtimeBackends(rdb, cfg.Realtime)
	if rdb != nil {
		defer rdb.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Moderation events ----
	var events service.EventPublisher
	if cfg.AMQPURL != "" {
		events = queue.NewPublisher(cfg.AMQPURL)
		audit := logger.NewRotatingWriter(cfg.Log, "moderation")
		defer audit.Close()
		go func() {
			if err := queue.StartAuditConsumer(ctx, cfg.AMQPURL, audit); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("audit-consumer: %v", err)
			}
		}()
	} else {
		log.Printf("AMQP_URL not set: moderation events are not published")
	}

	// ---- Object storage ----
	var files service.FileStore
	var images handler.ImageStore
	if cfg.Storage.Enabled() {
		s3 := storage.NewS3Store(cfg.Storage)
		files, images = s3, s3
	} else {
		log.Printf("S3 credentials not set: uploads disabled and image cleanup skipped")
	}

	// ---- Repositories and services ----
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	listingRepo := repository.NewListingRepo(db)
	convRepo := repository.NewConversationRepo(db)

	gate := service.NewGate(users)
	listings := service.NewListingService(listingRepo, convRepo, gate, files, feed, events)
	convs := service.NewConversationService(convRepo, listingRepo, gate, feed)
	msgs := service.NewMessageService(repository.NewMessageRepo(db), listingRepo, convs, gate, feed)
	mod := service.NewModerationService(gate, users, listings, repository.NewReportRepo(db), files, tokens, events)
	reviews := service.NewReviewService(repository.NewReviewRepo(db), listingRepo, gate)
	tracker := realtime.NewTracker(presence, cfg.Realtime.PresenceChannel, cfg.Realtime.PresenceHeartbeat)

	// ---- HTTP ----
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORS())

	router.RegisterRoutes(e, &handler.HealthHandler{DB: db, Redis: rdb})
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	market := router.Market{
		Listings:      handler.NewListingHandler(listings, users),
		Reviews:       handler.NewReviewHandler(reviews),
		Conversations: handler.NewConversationHandler(convs, msgs, feed),
		Moderation:    handler.NewModerationHandler(listings, mod),
		Uploads:       handler.NewUploadHandler(images, gate),
		Live:          handler.NewLiveHandler(tracker, msgs, feed, cfg.Realtime.UnreadPollInterval),
	}
	catalog := middleware.NewCatalogCache(config.LoadCacheConfig(), rdb)
	go func() {
		if err := catalog.Follow(ctx, feed); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("catalog-cache: %v", err)
		}
	}()
	router.RegisterPublic(e, market, cfg.JWTSecret, catalog.Middleware())
	router.RegisterMarket(e, market, cfg.JWTSecret, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	router.RegisterAdmin(e, market.Moderation, cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

// realtimeBackends picks Redis for the change feed and presence when it is
// reachable, and in-process backends for a single instance otherwise.
func realtimeBackends(rdb *redis.Client, cfg config.RealtimeConfig) (realtime.Feed, realtime.PresenceStore) {
	stale := realtime.StaleAfter(cfg.PresenceHeartbeat)
	if rdb == nil {
		log.Printf("redis unavailable: using in-process feed and presence")
		return realtime.NewMemoryFeed(), realtime.NewMemoryPresence(stale)
	}
	return realtime.NewRedisFeed(rdb), realtime.NewRedisPresence(rdb, stale)
}
