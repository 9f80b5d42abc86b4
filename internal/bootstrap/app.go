package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"markprompt/internal/ai"
	appsvc "markprompt/internal/app"
	"markprompt/internal/config"
	"markprompt/internal/connector"
	"markprompt/internal/model"
	mysqlClient "markprompt/internal/platform/mysql"
	rabbitmqClient "markprompt/internal/platform/rabbitmq"
	redisClient "markprompt/internal/platform/redis"
	"markprompt/internal/ratelimit"
	"markprompt/internal/repository"
	"markprompt/internal/tier"
	"markprompt/internal/worker"
)

type App struct {
	Config *config.Config
	MySQL  *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	Sources   *appsvc.SourceService
	Syncs     *appsvc.SyncService
	Retrieval *appsvc.RetrievalService
	Insights  *appsvc.InsightsService
	Gate      *tier.Gate
	Limiter   *ratelimit.Limiter

	SyncWorker *worker.SyncWorker
	Scheduler  *worker.Scheduler

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(
		&model.Team{},
		&model.Project{},
		&model.Source{},
		&model.File{},
		&model.FileSection{},
		&model.SyncQueue{},
		&model.ChecksumMap{},
		&model.QueryStat{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.SyncTriggerQueue)
	if err != nil {
		return nil, err
	}

	sourceRepo := repository.NewSourceRepository(mysqlDB)
	fileRepo := repository.NewFileRepository(mysqlDB)
	sectionRepo := repository.NewFileSectionRepository(mysqlDB)
	checksumRepo := repository.NewChecksumRepository(mysqlDB)
	jobRepo := repository.NewSyncQueueRepository(mysqlDB)
	teamRepo := repository.NewTeamRepository(mysqlDB)
	statRepo := repository.NewQueryStatRepository(mysqlDB)

	embeddingClient := ai.NewEmbeddingClient(ai.EmbeddingConfig{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.Model,
	})
	nangoClient := connector.NewNangoClient(cfg.Nango)
	connectors := connector.NewFactory(cfg.GitHub, cfg.Website, nangoClient)
	publisher := rabbitmqClient.NewSyncPublisher(mqConn, cfg.RabbitMQ.SyncTriggerQueue)

	ingest := appsvc.NewIngestService(
		fileRepo,
		checksumRepo,
		embeddingClient,
		cfg.Embedding.BatchSize,
		cfg.Embedding.MaxBatchTokens,
		cfg.Sync.CancelPollEveryFiles,
	)
	syncs := appsvc.NewSyncService(sourceRepo, jobRepo, publisher, connectors, ingest, nangoClient)
	sources := appsvc.NewSourceService(sourceRepo, fileRepo, checksumRepo, jobRepo, ingest)
	retrieval := appsvc.NewRetrievalService(
		sectionRepo,
		embeddingClient,
		statRepo,
		cfg.Retrieval.MinScore,
		cfg.Retrieval.MaxMatches,
		cfg.Retrieval.HardMaxMatches,
	)
	insights := appsvc.NewInsightsService(statRepo)
	gate := tier.NewGate(
		teamRepo,
		statRepo,
		fileRepo,
		redisCli,
		time.Duration(cfg.Redis.CompletionsTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.EmbeddingsTTLSeconds)*time.Second,
	)
	limiter := ratelimit.NewLimiter(redisCli)

	syncWorker := worker.NewSyncWorker(mqConn, syncs, cfg.RabbitMQ.SyncTriggerQueue)
	if err := syncWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start sync worker failed: %w", err)
	}
	scheduler := worker.NewScheduler(
		sourceRepo,
		syncs,
		time.Duration(cfg.Sync.ScheduleIntervalSeconds)*time.Second,
		cfg.Sync.ScheduleBatchSize,
	)
	scheduler.Start(ctx)

	return &App{
		Config:     cfg,
		MySQL:      mysqlDB,
		Redis:      redisCli,
		MQConn:     mqConn,
		Sources:    sources,
		Syncs:      syncs,
		Retrieval:  retrieval,
		Insights:   insights,
		Gate:       gate,
		Limiter:    limiter,
		SyncWorker: syncWorker,
		Scheduler:  scheduler,
		StartedAt:  time.Now(),
	}, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Scheduler != nil {
		a.Scheduler.Close()
	}
	if a.SyncWorker != nil {
		a.SyncWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
