package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"novel-vote-server/internal/config"
	"novel-vote-server/internal/database"
	"novel-vote-server/internal/generation"
	"novel-vote-server/internal/handler"
	"novel-vote-server/internal/illustration"
	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/logger"
	"novel-vote-server/internal/messaging"
	"novel-vote-server/internal/story"
	"novel-vote-server/internal/taskmanager"
	"novel-vote-server/internal/voting"
	"novel-vote-server/internal/worker"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const appID = "novel-vote-server"

// dispatchers - транспорт фоновых задач: RabbitMQ или внутрипроцессный.
type dispatchers struct {
	generation   interfaces.GenerationDispatcher
	illustration interfaces.IllustrationDispatcher
	local        *messaging.LocalDispatcher
	tm           *taskmanager.TaskManager
	publisher    *messaging.Publisher
	conn         *messaging.Connection
}

func main() {
	// .env нужен только при локальном запуске
	_ = godotenv.Load()
	log.Println("Запуск Novel Vote Server...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	appLogger, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info("Logger initialized",
		zap.String("logLevel", cfg.LogLevel), zap.String("appEnv", cfg.AppEnv))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := database.NewMigrator(pool, appLogger).Up(); err != nil {
			appLogger.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	var cache interfaces.TallyCache
	var cooldown interfaces.VoterCooldown
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()
		cache = database.NewRedisTallyCache(redisClient, cfg.TallyCacheTTL)
		if cfg.VoterCooldown > 0 {
			cooldown = database.NewRedisVoterCooldown(redisClient, cfg.VoterCooldown)
		}
		appLogger.Info("Redis tally cache and voter cooldown enabled")
	} else {
		appLogger.Warn("REDIS_URL is not set: tally cache and voter cooldown are disabled")
	}

	d, err := setupDispatchers(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to set up task dispatch", zap.Error(err))
	}

	tx := database.NewPgTransactor(pool, appLogger)
	storyRepo := database.NewPgStoryRepository(appLogger)
	chapterRepo := database.NewPgChapterRepository(appLogger)
	voteRepo := database.NewPgVoteRepository(appLogger)
	tallyRepo := database.NewPgTallyRepository(appLogger)
	generationRepo := database.NewPgGenerationRecordRepository(appLogger)
	illustrationRepo := database.NewPgIllustrationRepository(appLogger)

	gate := voting.NewThresholdGate(cfg.EffectiveVoteThreshold(), tx, storyRepo, chapterRepo, tallyRepo,
		generationRepo, d.generation, cache, appLogger)
	votingService := voting.NewService(voting.Deps{
		Tx:            tx,
		Chapters:      chapterRepo,
		Votes:         voteRepo,
		Tallies:       tallyRepo,
		Gate:          gate,
		Cache:         cache,
		Cooldown:      cooldown,
		RoundDuration: cfg.VotingRoundDuration,
	}, appLogger)
	storyService := story.NewService(tx, storyRepo, chapterRepo, illustrationRepo, cfg.VotingRoundDuration, appLogger)

	orchestratorDeps := generation.Deps{
		Tx:          tx,
		Generations: generationRepo,
		Chainer:     generation.NewChainer(storyRepo, chapterRepo, cfg.VotingRoundDuration, cfg.StoryMaxChapters, appLogger),
		Dispatcher:  d.generation,
		Illustrator: d.illustration,
		Timeout:     cfg.GenerationTimeout,
	}

	runInProcess := d.local != nil && cfg.InProcessWorker
	var illustrator messaging.Illustrator
	if runInProcess {
		workerCfg, err := config.LoadWorkerConfig()
		if err != nil {
			appLogger.Fatal("Failed to load in-process worker configuration", zap.Error(err))
		}
		orchestratorDeps.Generator, err = generation.NewContentGenerator(workerCfg.AI, cfg.GenerationTimeout, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to create content generator", zap.Error(err))
		}
		if workerCfg.IllustrationsEnabled() {
			store, err := illustration.NewMinioStore(ctx, workerCfg.Storage, appLogger)
			if err != nil {
				appLogger.Fatal("Failed to set up illustration storage", zap.Error(err))
			}
			illustrator = illustration.NewService(tx, storyRepo, chapterRepo, illustrationRepo,
				illustration.NewImageClient(workerCfg.ImageServer, appLogger), store, workerCfg.ImageServer.Style, appLogger)
		} else {
			orchestratorDeps.Illustrator = nil
			appLogger.Info("Illustrations are not configured, side effect disabled")
		}
	}
	orchestrator := generation.NewOrchestrator(orchestratorDeps, appLogger)

	if runInProcess {
		d.local.Bind(orchestrator, illustrator)
		var cleaner worker.TaskCleaner
		if d.tm != nil {
			cleaner = d.tm
		}
		sweeper := worker.NewSweeper(votingService, orchestrator, cleaner, worker.SweeperConfig{
			Interval:   cfg.SweepInterval,
			StaleAfter: cfg.GenerationStaleAfter,
		}, appLogger)
		go sweeper.Run(ctx)
		appLogger.Info("In-process generation worker started")
	} else if d.local != nil {
		appLogger.Warn("RABBITMQ_URL is not set and IN_PROCESS_WORKER is disabled: generation tasks will not run")
	}

	verifier, err := newAdminVerifier(cfg.AdminJWTSecret, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to create admin token verifier", zap.Error(err))
	}

	h := handler.New(handler.Deps{
		Voting:        votingService,
		Stories:       storyService,
		Generations:   orchestrator,
		Illustrations: orchestratorDeps.Illustrator,
		Verifier:      verifier,
		Health:        pool.Ping,
	}, appLogger)
	ipExtractor, err := handler.NewIPExtractor(cfg.TrustedProxies)
	if err != nil {
		appLogger.Fatal("Invalid TRUSTED_PROXIES", zap.Error(err))
	}
	e := handler.NewEcho(cfg.AllowedOrigins, ipExtractor, appLogger)
	h.RegisterRoutes(e)

	go func() {
		appLogger.Info("HTTP server listening", zap.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutdown signal received, starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	d.close(shutdownCtx, appLogger)

	appLogger.Info("Novel Vote Server stopped")
}

// newAdminVerifier возвращает nil без секрета: админские маршруты тогда не регистрируются.
func newAdminVerifier(secret string, logger *zap.Logger) (*handler.ServiceTokenVerifier, error) {
	if secret == "" {
		return nil, nil
	}
	return handler.NewServiceTokenVerifier(secret, logger)
}

// setupDispatchers выбирает транспорт задач: при заданном RABBITMQ_URL задачи уходят
// в очередь внешнему воркеру, иначе исполняются в процессе.
func setupDispatchers(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dispatchers, error) {
	if cfg.RabbitMQURL != "" {
		conn, err := messaging.Connect(ctx, cfg.RabbitMQURL, logger)
		if err != nil {
			return nil, err
		}
		publisher := messaging.NewPublisher(conn, messaging.Queues{
			Generation:   cfg.GenerationTaskQueue,
			Illustration: cfg.IllustrationTaskQueue,
		}, appID, logger)
		logger.Info("Generation tasks are dispatched via RabbitMQ",
			zap.String("queue", cfg.GenerationTaskQueue))
		return &dispatchers{
			generation:   publisher,
			illustration: publisher,
			publisher:    publisher,
			conn:         conn,
		}, nil
	}

	tm := taskmanager.New(taskmanager.Config{MaxTasks: cfg.InProcessMaxTasks}, logger)
	local := messaging.NewLocalDispatcher(tm, logger)
	logger.Info("Generation tasks run in-process", zap.Int("maxTasks", cfg.InProcessMaxTasks))
	return &dispatchers{
		generation:   local,
		illustration: local,
		local:        local,
		tm:           tm,
	}, nil
}

func (d *dispatchers) close(ctx context.Context, logger *zap.Logger) {
	if d.tm != nil {
		if err := d.tm.Shutdown(ctx); err != nil {
			logger.Error("In-process tasks did not finish in time", zap.Error(err))
		}
	}
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			logger.Warn("Failed to close publisher", zap.Error(err))
		}
	}
	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			logger.Warn("Failed to close RabbitMQ connection", zap.Error(err))
		}
	}
}
