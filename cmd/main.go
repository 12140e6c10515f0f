package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	httpapi "github.com/immxrtalbeast/clipguess/internal/api/http"
	"github.com/immxrtalbeast/clipguess/internal/config"
	"github.com/immxrtalbeast/clipguess/internal/extract"
	"github.com/immxrtalbeast/clipguess/internal/preload"
	"github.com/immxrtalbeast/clipguess/internal/ratelimit"
	"github.com/immxrtalbeast/clipguess/internal/realtime"
	"github.com/immxrtalbeast/clipguess/internal/registry"
	"github.com/immxrtalbeast/clipguess/internal/repository"
	"github.com/immxrtalbeast/clipguess/internal/repository/model"
	"github.com/immxrtalbeast/clipguess/internal/service"
	"github.com/immxrtalbeast/clipguess/lib/logger/sl"
	"github.com/immxrtalbeast/clipguess/lib/logger/slogpretty"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos := setupRepositories(ctx, cfg, log)

	hub := realtime.NewHub(0, log)
	var publisher realtime.Publisher = hub
	if cfg.Broker.Address != "" {
		mirror, err := realtime.DialStomp(cfg.Broker.Address, cfg.Broker.Login, cfg.Broker.Passcode, cfg.Broker.TopicPrefix, log)
		if err != nil {
			log.Warn("broker unavailable, events stay local", sl.Err(err))
		} else {
			defer mirror.Close()
			publisher = realtime.Fanout{hub, mirror}
		}
	}

	extractor := extract.NewPageExtractor(cfg.Extraction.UserAgent, cfg.Extraction.RequestTimeout, log)
	pool := extract.NewPool(extractor, cfg.Extraction.Concurrency, log)
	pipeline := preload.NewPipeline(pool, preload.Config{
		Workers:         cfg.Preload.Workers,
		MinBeforeStart:  cfg.Preload.MinBeforeStart,
		MaxReplacements: cfg.Preload.MaxReplacements,
		VideoTimeout:    cfg.Preload.VideoTimeout,
	}, log)
	cache := preload.NewCache(cfg.Preload.CacheMaxRooms, log)
	rooms := registry.New(cfg.Rooms.IdleTTL, log)

	game := service.NewGameService(service.Config{
		MinRounds:      cfg.Game.MinRounds,
		MaxRounds:      cfg.Game.MaxRounds,
		BasePoints:     cfg.Game.BasePoints,
		StreakBonus:    cfg.Game.StreakBonus,
		RevealDelay:    cfg.Game.RevealDelay,
		NextRoundDelay: cfg.Game.NextRoundDelay,
		DedupeWindow:   cfg.Game.DedupeWindow,
		MaxAvatarBytes: cfg.Game.MaxAvatarBytes,
		SparePoolExtra: cfg.Preload.SparePoolExtra,
		ImportTokenTTL: cfg.Rooms.ImportTokenTTL,
	}, rooms, repos, publisher, cache, pipeline, log)
	go game.Run(ctx, cfg.Rooms.SweepInterval)

	router := httpapi.SetupRouter(cfg.HTTP.AllowedOrigins, httpapi.Controllers{
		Game: httpapi.NewGameController(game, hub, cfg.RateLimit.CommandsPerSecond, cfg.RateLimit.CommandBurst, log),
		Video: httpapi.NewVideoController(
			cache,
			pool,
			ratelimit.New(cfg.RateLimit.Window, cfg.RateLimit.Max, cfg.RateLimit.MaxBuckets),
			cfg.Extraction.AllowedHosts,
			cfg.Extraction.Timeout,
			log,
		),
		Import: httpapi.NewImportController(game),
		Health: httpapi.NewHealthController(httpapi.HealthStats{
			Rooms:      rooms.Len,
			Sessions:   hub.Len,
			Extraction: pool.Stats,
		}),
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("starting application", slog.String("addr", cfg.HTTP.Address), slog.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", sl.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", sl.Err(err))
	}
	if err := game.Shutdown(shutdownCtx); err != nil {
		log.Error("background work did not finish", sl.Err(err))
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

// setupRepositories prefers Postgres and Redis when configured and falls back
// to process memory otherwise.
func setupRepositories(ctx context.Context, cfg *config.Config, log *slog.Logger) service.Repositories {
	repos := service.Repositories{
		Players:     repository.NewInMemoryPlayerRepository(),
		Rooms:       repository.NewInMemoryRoomRepository(),
		Submissions: repository.NewInMemorySubmissionRepository(),
		Tokens:      repository.NewInMemoryTokenStore(),
	}

	if cfg.Database.DSN == "" {
		log.Warn("database dsn is empty, using in-memory storage")
	} else if db, err := connectDatabase(cfg.Database); err != nil {
		log.Error("failed to connect database, using in-memory storage", sl.Err(err))
	} else {
		repos.Players = repository.NewPostgresPlayerRepository(db)
		repos.Rooms = repository.NewPostgresRoomRepository(db)
		repos.Submissions = repository.NewPostgresSubmissionRepository(db)
	}

	if cfg.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, import tokens kept in memory", sl.Err(err))
		} else {
			repos.Tokens = repository.NewRedisTokenStore(client)
		}
	}

	return repos
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(model.All()...); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
