package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"novel-vote-server/internal/config"
	"novel-vote-server/internal/database"
	"novel-vote-server/internal/generation"
	"novel-vote-server/internal/illustration"
	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/logger"
	"novel-vote-server/internal/messaging"
	"novel-vote-server/internal/metrics"
	"novel-vote-server/internal/voting"
	"novel-vote-server/internal/worker"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	appID                = "novel-vote-worker"
	pushInterval         = 15 * time.Second
	illustrationPrefetch = 1
)

func main() {
	_ = godotenv.Load()
	log.Println("Запуск Novel Vote Worker...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	workerCfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации воркера: %v", err)
	}
	if cfg.RabbitMQURL == "" {
		log.Fatalf("RABBITMQ_URL обязателен для воркера; без него генерация выполняется в процессе API-сервера")
	}

	appLogger, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pool.Close()

	conn, err := messaging.Connect(ctx, cfg.RabbitMQURL, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer func() { _ = conn.Close() }()

	queues := messaging.Queues{Generation: cfg.GenerationTaskQueue, Illustration: cfg.IllustrationTaskQueue}
	publisher := messaging.NewPublisher(conn, queues, appID, appLogger)
	defer func() { _ = publisher.Close() }()

	generator, err := generation.NewContentGenerator(workerCfg.AI, cfg.GenerationTimeout, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to create content generator", zap.Error(err))
	}

	tx := database.NewPgTransactor(pool, appLogger)
	storyRepo := database.NewPgStoryRepository(appLogger)
	chapterRepo := database.NewPgChapterRepository(appLogger)
	tallyRepo := database.NewPgTallyRepository(appLogger)
	voteRepo := database.NewPgVoteRepository(appLogger)
	generationRepo := database.NewPgGenerationRecordRepository(appLogger)
	illustrationRepo := database.NewPgIllustrationRepository(appLogger)

	var illustrationDispatcher interfaces.IllustrationDispatcher
	var illustrationService *illustration.Service
	if workerCfg.IllustrationsEnabled() {
		store, err := illustration.NewMinioStore(ctx, workerCfg.Storage, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to set up illustration storage", zap.Error(err))
		}
		illustrationService = illustration.NewService(tx, storyRepo, chapterRepo, illustrationRepo,
			illustration.NewImageClient(workerCfg.ImageServer, appLogger), store, workerCfg.ImageServer.Style, appLogger)
		illustrationDispatcher = publisher
	} else {
		appLogger.Info("Illustrations are not configured, side effect disabled")
	}

	orchestrator := generation.NewOrchestrator(generation.Deps{
		Tx:          tx,
		Generations: generationRepo,
		Generator:   generator,
		Chainer:     generation.NewChainer(storyRepo, chapterRepo, cfg.VotingRoundDuration, cfg.StoryMaxChapters, appLogger),
		Dispatcher:  publisher,
		Illustrator: illustrationDispatcher,
		Timeout:     cfg.GenerationTimeout,
	}, appLogger)

	// Закрытие раундов по дедлайну выполняет тот же гейт, что и API-сервер.
	gate := voting.NewThresholdGate(cfg.EffectiveVoteThreshold(), tx, storyRepo, chapterRepo, tallyRepo,
		generationRepo, publisher, nil, appLogger)
	votingService := voting.NewService(voting.Deps{
		Tx:            tx,
		Chapters:      chapterRepo,
		Votes:         voteRepo,
		Tallies:       tallyRepo,
		Gate:          gate,
		RoundDuration: cfg.VotingRoundDuration,
	}, appLogger)

	consumers := []*messaging.Consumer{
		messaging.NewConsumer(conn, queues, queues.Generation, cfg.RabbitMQPrefetch,
			messaging.GenerationHandler(orchestrator, appLogger), appLogger),
		messaging.NewConsumer(conn, queues, queues.DeadLetterQueue(), 1,
			messaging.DeadLetterHandler(orchestrator, appLogger), appLogger),
	}
	if illustrationService != nil {
		consumers = append(consumers, messaging.NewConsumer(conn, queues, queues.Illustration, illustrationPrefetch,
			messaging.IllustrationHandler(illustrationService, appLogger), appLogger))
	}
	for _, c := range consumers {
		if err := c.Start(ctx); err != nil {
			appLogger.Fatal("Failed to start consumer", zap.Error(err))
		}
	}

	sweeper := worker.NewSweeper(votingService, orchestrator, nil, worker.SweeperConfig{
		Interval:   cfg.SweepInterval,
		StaleAfter: cfg.GenerationStaleAfter,
	}, appLogger)
	go sweeper.Run(ctx)

	if workerCfg.PushGatewayURL != "" {
		go func() {
			if err := metrics.RunPusher(ctx, workerCfg.PushGatewayURL, workerCfg.MetricsJob, pushInterval, appLogger); err != nil {
				appLogger.Error("Metrics pusher stopped", zap.Error(err))
			}
		}()
	} else {
		appLogger.Info("PUSHGATEWAY_URL is not set, metrics push disabled")
	}

	appLogger.Info("Worker started", zap.Int("consumers", len(consumers)))
	<-ctx.Done()
	appLogger.Info("Shutdown signal received, stopping consumers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GenerationTimeout+10*time.Second)
	defer cancel()
	for _, c := range consumers {
		if err := c.Stop(shutdownCtx); err != nil {
			appLogger.Error("Consumer did not stop in time", zap.Error(err))
		}
	}
	appLogger.Info("Novel Vote Worker stopped")
}
