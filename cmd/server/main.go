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

	"github.com/fiapx/fiapx-frame-extractor/internal/api"
	"github.com/fiapx/fiapx-frame-extractor/internal/domain/port"
	"github.com/fiapx/fiapx-frame-extractor/internal/engine"
	"github.com/fiapx/fiapx-frame-extractor/internal/framestore"
	"github.com/fiapx/fiapx-frame-extractor/internal/infra/config"
	"github.com/fiapx/fiapx-frame-extractor/internal/infra/email"
	"github.com/fiapx/fiapx-frame-extractor/internal/infra/ffmpeg"
	"github.com/fiapx/fiapx-frame-extractor/internal/infra/metrics"
	miniostorage "github.com/fiapx/fiapx-frame-extractor/internal/infra/minio"
	"github.com/fiapx/fiapx-frame-extractor/internal/infra/postgres"
	"github.com/fiapx/fiapx-frame-extractor/internal/infra/rabbitmq"
	"github.com/fiapx/fiapx-frame-extractor/internal/infra/tracing"
	"github.com/fiapx/fiapx-frame-extractor/internal/usecase"
	"github.com/fiapx/fiapx-frame-extractor/pkg/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting fiapx-frame-extractor")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (non-fatal if Jaeger unavailable)
	tp, err := tracing.InitTracer(ctx, tracing.Config{
		Endpoint:    cfg.JaegerEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	} else {
		defer tp.Shutdown(context.Background())
	}

	// Engine loads in the background; submissions are ignored until it is ready.
	handle := engine.NewHandle(ffmpeg.NewEngine(ffmpeg.EngineConfig{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		WorkDir:     cfg.EngineWorkDir,
	}, log), log)
	go func() {
		if err := handle.Initialize(ctx); err != nil {
			log.Error("processing engine unavailable", zap.Error(err))
		}
	}()

	store := framestore.New(log)

	// Job history
	var repo port.JobRepository
	if cfg.HistoryEnabled {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		fatalOnErr(err, "connect to postgres")
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			log.Warn("migration warning", zap.Error(err))
		}
		repo = postgres.NewJobRepository(pool)
	}

	// Status events
	var (
		rmqConn   *amqp.Connection
		statusPub port.StatusPublisher
		dlqPub    port.DLQPublisher
	)
	if cfg.RabbitMQEnabled {
		rmqConn, err = amqp.Dial(cfg.RabbitMQURL)
		fatalOnErr(err, "connect to rabbitmq for publisher")
		defer rmqConn.Close()

		pub, err := rabbitmq.NewPublisher(rmqConn, cfg.RabbitMQExchange)
		fatalOnErr(err, "create rabbitmq publisher")
		statusPub = rabbitmq.NewStatusPublisher(pub, cfg.RabbitMQStatusRouting)
		dlqPub = rabbitmq.NewDLQPublisher(pub, cfg.RabbitMQDLQ)
	}

	extractor := usecase.NewExtractFramesUseCase(handle, store, repo, statusPub, log, usecase.ExtractFramesConfig{
		JPEGQuality: cfg.FFmpegJPEGQuality,
		RunTimeout:  cfg.JobTimeout,
	})
	packer, err := ffmpeg.NewZipCreatorFor(cfg.ArchiveCompression)
	fatalOnErr(err, "create archive packer")
	exporter := usecase.NewExportArchiveUseCase(store, packer, log, usecase.ExportArchiveConfig{
		FetchConcurrency: cfg.ExportFetchConcurrency,
	})

	server := api.NewServer(api.Server{
		Engine:         handle,
		Extractor:      extractor,
		Exporter:       exporter,
		Frames:         store,
		Jobs:           repo,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, log)

	// MinIO
	var storage *miniostorage.Storage
	if cfg.MinIOEnabled {
		storage, err = miniostorage.NewStorage(miniostorage.StorageConfig{
			Endpoint:       cfg.MinIOEndpoint,
			AccessKey:      cfg.MinIOAccessKey,
			SecretKey:      cfg.MinIOSecretKey,
			UseSSL:         cfg.MinIOUseSSL,
			UploadBucket:   cfg.MinIOUploadBucket,
			MaxObjectBytes: cfg.MaxUploadBytes,
		})
		fatalOnErr(err, "create minio storage")
		fatalOnErr(storage.EnsureBucket(ctx), "ensure minio bucket")
		server.Source = storage
	}

	// Queue-driven requests need both the broker and the object store.
	var consumer *rabbitmq.Consumer
	if cfg.RabbitMQEnabled && storage != nil {
		var notifier port.FailureNotifier
		if cfg.SMTPEnabled {
			notifier = email.NewSMTPNotifier(email.SMTPConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				From:     cfg.SMTPFrom,
				Username: cfg.SMTPUsername,
				Password: cfg.SMTPPassword,
			}, log)
		}
		requests := usecase.NewExtractionRequestUseCase(extractor, storage, dlqPub, notifier, log)

		consumer, err = rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
			URL:              cfg.RabbitMQURL,
			Exchange:         cfg.RabbitMQExchange,
			Queue:            cfg.RabbitMQRequestQueue,
			RoutingKey:       cfg.RabbitMQRequestRouting,
			DLQ:              cfg.RabbitMQDLQ,
			StatusQueue:      cfg.RabbitMQStatusQueue,
			StatusRoutingKey: cfg.RabbitMQStatusRouting,
			Prefetch:         cfg.RabbitMQPrefetch,
			WorkerCount:      cfg.RabbitMQWorkerCount,
			BaseDelayMs:      cfg.RabbitMQRetryBaseDelayMs,
		}, requests.Execute, log)
		fatalOnErr(err, "create consumer")

		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error("consumer error", zap.Error(err))
			}
		}()
	}

	// Metrics server
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, handle.IsReady, log)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           api.NewRouter(server),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http server starting", zap.Int("port", cfg.HTTPPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
	metricsSrv.Shutdown(shutdownCtx)

	if consumer != nil {
		consumer.Close()
	}
	// Frame resources do not outlive the process.
	store.Clear()
	log.Info("fiapx-frame-extractor stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
