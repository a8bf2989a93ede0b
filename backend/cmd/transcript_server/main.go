package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"transcriptServer/backend/config"
	"transcriptServer/backend/internal/cache"
	"transcriptServer/backend/internal/collab"
	"transcriptServer/backend/internal/httpapi/handlers"
	"transcriptServer/backend/internal/httpapi/middleware"
	"transcriptServer/backend/internal/logging"
	"transcriptServer/backend/internal/store"
	"transcriptServer/backend/internal/ws"
)

func main() {
	cfg, err := config.Load("transcriptConfig")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init config failed: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("transcript server stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.OpenGorm(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	transcripts := store.NewTranscriptStore(db)
	if err := transcripts.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	snapshots := store.NewSnapshotStore(sqlDB)
	if err := snapshots.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("snapshot schema: %w", err)
	}

	var (
		lock     cache.EditLock
		presence cache.PresenceCache
	)
	if len(cfg.Redis.Addrs) > 0 {
		// one address gives a plain client, several a cluster client
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		lock = cache.NewRedisEditLock(rdb, cfg.Redis.LockTTL)
		presence = cache.NewRedisPresence(rdb)
	} else {
		log.Warn().Msg("no redis configured, edit locks are process local")
	}

	var dispatcher *collab.KafkaDispatcher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaCfg := sarama.NewConfig()
		// required by SyncProducer
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer producer.Close()

		dispatcher = collab.NewKafkaDispatcher(
			producer,
			cfg.Kafka.Topic,
			collab.NewSemaphoreControl(cfg.Kafka.MaxInFlight),
			collab.KafkaDispatcherOptions{
				QueueSize:   cfg.Kafka.QueueSize,
				Workers:     cfg.Kafka.Workers,
				MaxRetry:    cfg.Kafka.MaxRetry,
				BaseBackoff: cfg.Kafka.BaseBackoff,
				MaxBackoff:  cfg.Kafka.MaxBackoff,
			},
			log,
		)
		// runs before producer.Close
		defer dispatcher.Close()
	} else {
		log.Warn().Msg("no kafka brokers configured, transcript events are not published")
	}

	catalog := store.Catalog{Transcripts: transcripts, Snapshots: snapshots, Log: log}
	svc := collab.NewService(catalog, lock, presence, dispatcher, collab.ServiceOptions{
		Tolerance:    cfg.Editor.ScrollToleranceMs,
		CodesVisible: cfg.Editor.CodesVisibleOnLoad,
		PlayheadTTL:  cfg.Editor.PlayheadTTL,
	}, log)
	manager := ws.NewManager(ws.NewHub(), svc, collab.NewSemaphoreControl(0), log)

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	if cfg.Running.CORS {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:5173", "http://127.0.0.1:5173"},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "ok"}) })
	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware([]byte(cfg.Auth.JWTSecret)))
	v1.GET("/ws", manager.WebSocketConnect)
	handlers.NewTranscripts(svc, transcripts, snapshots).Register(v1)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Running.Port), Handler: r}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Running.Port).Str("store", cfg.Store.Driver).Msg("transcript server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	// flush unsaved transcripts before the stores close
	return svc.Close(shutdownCtx)
}
