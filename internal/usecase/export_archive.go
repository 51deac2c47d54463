package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/fiapx/fiapx-frame-extractor/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-extractor/internal/domain/port"
	"github.com/fiapx/fiapx-frame-extractor/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type ExportArchiveUseCase struct {
	store       port.FrameStore
	packer      port.ArchivePacker
	logger      *zap.Logger
	concurrency int

	mu         sync.Mutex
	inProgress bool
}

type ExportArchiveConfig struct {
	// FetchConcurrency caps parallel frame fetches; zero or less means unbounded.
	FetchConcurrency int
}

func NewExportArchiveUseCase(store port.FrameStore, packer port.ArchivePacker, logger *zap.Logger, cfg ExportArchiveConfig) *ExportArchiveUseCase {
	return &ExportArchiveUseCase{
		store:       store,
		packer:      packer,
		logger:      logger,
		concurrency: cfg.FetchConcurrency,
	}
}

func (uc *ExportArchiveUseCase) InProgress() bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.inProgress
}

// ExportAll packs every frame into one archive with entries named
// frame-XXXX.jpg. Any fetch or packing failure yields no archive at all.
func (uc *ExportArchiveUseCase) ExportAll(ctx context.Context, frames []entity.Frame) ([]byte, error) {
	if len(frames) == 0 {
		return nil, entity.ErrNoFrames
	}

	uc.mu.Lock()
	if uc.inProgress {
		uc.mu.Unlock()
		return nil, entity.ErrExportInProgress
	}
	uc.inProgress = true
	uc.mu.Unlock()

	defer func() {
		uc.mu.Lock()
		uc.inProgress = false
		uc.mu.Unlock()
	}()

	ctx, span := otel.Tracer("usecase").Start(ctx, "ExportArchiveUseCase.ExportAll")
	defer span.End()
	span.SetAttributes(attribute.Int("export.frames", len(frames)))

	start := time.Now()
	archive, err := uc.exportAll(ctx, frames)
	metrics.ExportDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		metrics.ExportsTotal.WithLabelValues("failed").Inc()
		uc.logger.Error("archive export failed", zap.Int("frames", len(frames)), zap.Error(err))
		return nil, err
	}

	metrics.ExportsTotal.WithLabelValues("succeeded").Inc()
	uc.logger.Info("archive exported", zap.Int("frames", len(frames)), zap.Int("bytes", len(archive)))
	return archive, nil
}

func (uc *ExportArchiveUseCase) exportAll(ctx context.Context, frames []entity.Frame) ([]byte, error) {
	entries := make([]entity.ArchiveEntry, len(frames))

	g, gctx := errgroup.WithContext(ctx)
	if uc.concurrency > 0 {
		g.SetLimit(uc.concurrency)
	}
	for i, frame := range frames {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return &entity.ExportError{Ordinal: frame.Ordinal, Err: err}
			}
			data, err := uc.store.Fetch(frame.Handle)
			if err != nil {
				return &entity.ExportError{Ordinal: frame.Ordinal, Err: err}
			}
			entries[i] = entity.ArchiveEntry{Name: frame.FileName(), Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	archive, err := uc.packer.Pack(ctx, entries)
	if err != nil {
		return nil, &entity.ExportError{Err: err}
	}
	return archive, nil
}

// ExportOne returns the download name and bytes of a single frame.
func (uc *ExportArchiveUseCase) ExportOne(frame entity.Frame) (string, []byte, error) {
	data, err := uc.store.Fetch(frame.Handle)
	if err != nil {
		return "", nil, &entity.ExportError{Ordinal: frame.Ordinal, Err: err}
	}
	return frame.FileName(), data, nil
}
