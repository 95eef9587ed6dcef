package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/plagioguard/internal/config"
	"github.com/kirillkom/plagioguard/internal/core/ports"
	"github.com/kirillkom/plagioguard/internal/core/usecase"
	"github.com/kirillkom/plagioguard/internal/infrastructure/analyzer/subprocess"
	"github.com/kirillkom/plagioguard/internal/infrastructure/cache/rediscache"
	"github.com/kirillkom/plagioguard/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/plagioguard/internal/infrastructure/inspector/pdfmeta"
	"github.com/kirillkom/plagioguard/internal/infrastructure/queue/nats"
	"github.com/kirillkom/plagioguard/internal/infrastructure/repository/mongodb"
	"github.com/kirillkom/plagioguard/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/plagioguard/internal/infrastructure/resilience"
	"github.com/kirillkom/plagioguard/internal/infrastructure/storage"
	"github.com/kirillkom/plagioguard/internal/infrastructure/storage/cloudinary"
	"github.com/kirillkom/plagioguard/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/plagioguard/internal/infrastructure/storage/minio"
	"github.com/kirillkom/plagioguard/internal/infrastructure/storage/s3"
	"github.com/kirillkom/plagioguard/internal/observability/metrics"
)

const ServiceName = "plagioguard-api"

type App struct {
	Config  config.Config
	Metrics *metrics.HTTPServerMetrics

	Repo     ports.SubmissionRepository
	SubmitUC ports.SubmissionService
	QueryUC  ports.SubmissionReader

	closers []func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *App, err error) {
	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	app.Metrics = metrics.NewHTTPServerMetrics(ServiceName)
	pipelineMetrics := metrics.NewPipelineMetrics(ServiceName, app.Metrics.Registerer())
	executorOpts := []resilience.Option{
		resilience.WithLogger(logger),
		resilience.WithStateObserver(pipelineMetrics.ObserveBreaker),
	}

	repo, err := app.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.RedisURL != "" {
		client, err := rediscache.NewClient(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		app.closers = append(app.closers, func() { _ = client.Close() })
		repo = rediscache.New(repo, client, time.Duration(cfg.CacheTTLSeconds)*time.Second, logger)
	}
	app.Repo = repo

	objects, err := openObjectStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	storageExecutor := resilience.NewExecutor(resilience.SingleAttempt(cfg.ObjectStoreBreakerEnabled), executorOpts...)
	guarded := storage.NewGuarded(objects, storageExecutor, cfg.ObjectStore)

	analyzer := subprocess.New(subprocess.Config{
		Interpreter:    cfg.PythonPath,
		ScriptPath:     cfg.PythonScriptPath,
		MaxOutputBytes: cfg.AnalyzerMaxOutputBytes,
		Timeout:        time.Duration(cfg.AnalyzerTimeoutSeconds) * time.Second,
	}, logger)
	if cfg.PythonScriptPath == "" {
		logger.Warn("analyzer_script_not_configured", "hint", "set PYTHON_SCRIPT_PATH; every submission will fail analysis")
	}

	submitOpts := []usecase.SubmitOption{
		usecase.WithInspector(pdfmeta.New()),
		usecase.WithObserver(pipelineMetrics),
		usecase.WithLogger(logger),
	}
	if cfg.NATSURL != "" {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig(), executorOpts...),
			Logger:             logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.closers = append(app.closers, queue.Close)
		submitOpts = append(submitOpts, usecase.WithEventPublisher(queue))
	}

	app.SubmitUC = usecase.NewSubmitUseCase(repo, guarded, analyzer, usecase.SubmitConfig{
		UploadDir:    cfg.UploadDir,
		Folder:       cfg.UploadFolder,
		MaxBytes:     cfg.UploadMaxBytes,
		AllowedTypes: cfg.UploadAllowedTypes,
	}, submitOpts...)
	app.QueryUC = usecase.NewQueryUseCase(repo, xlsx.New(), cfg.ListLimit)

	logger.Info("bootstrap_complete",
		"store", cfg.StoreDriver,
		"object_store", cfg.ObjectStore,
		"cache", cfg.RedisURL != "",
		"events", cfg.NATSURL != "",
	)
	return app, nil
}

func (a *App) openStore(ctx context.Context, cfg config.Config) (ports.SubmissionRepository, error) {
	switch cfg.StoreDriver {
	case "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		repo := postgres.NewSubmissionRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil
	case "mongo", "mongodb":
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		a.closers = append(a.closers, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(disconnectCtx)
		})
		repo := mongodb.NewSubmissionRepository(client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func openObjectStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch cfg.ObjectStore {
	case "cloudinary":
		return cloudinary.New(cloudinary.Config{
			CloudName: cfg.CloudinaryName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
		})
	case "s3":
		return s3.New(ctx, s3.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.AWSRegion,
			AccessKey: cfg.AWSAccessKey,
			SecretKey: cfg.AWSSecretKey,
			Endpoint:  cfg.S3Endpoint,
		})
	case "minio":
		return minio.New(ctx, minio.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			Region:    cfg.MinIORegion,
			UseSSL:    cfg.MinIOUseSSL,
		})
	case "local":
		return localfs.New(cfg.StoragePath)
	default:
		return nil, fmt.Errorf("unknown OBJECT_STORE %q", cfg.ObjectStore)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
