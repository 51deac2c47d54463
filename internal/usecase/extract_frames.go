package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/fiapx/fiapx-frame-extractor/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-extractor/internal/domain/port"
	"github.com/fiapx/fiapx-frame-extractor/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Engine outputs are numbered with six zero-padded digits so that their
// lexicographic order is their temporal order. That holds up to
// MaxFramesPerJob frames, about 11.5 hours of 24 fps video.
const (
	outputNamePattern = "frame%06d.jpg"
	MaxFramesPerJob   = 999999
)

var (
	outputNameRe = regexp.MustCompile(`^frame\d{6}\.jpg$`)
	frameLikeRe  = regexp.MustCompile(`^frame\d+\.jpg$`)

	errNoFramesExtracted = errors.New("no frames extracted from video")
	errFrameCeiling      = fmt.Errorf("video produced more than %d frames", MaxFramesPerJob)
)

const (
	StageClean = "clean"
	StageWrite = "write"
	StageRun   = "run"
	StageList  = "list"
	StageRead  = "read"
)

type ExtractFramesUseCase struct {
	engine    port.Engine
	store     port.FrameStore
	repo      port.JobRepository
	publisher port.StatusPublisher
	logger    *zap.Logger
	quality   int
	timeout   time.Duration

	mu  sync.Mutex
	job *entity.Job
}

type ExtractFramesConfig struct {
	// JPEGQuality is passed to the engine as -q:v (2 is near-lossless).
	JPEGQuality int
	// RunTimeout bounds one job end to end; zero means no bound.
	RunTimeout time.Duration
}

// NewExtractFramesUseCase wires the coordinator. repo and publisher may be nil
// when job history or status events are disabled.
func NewExtractFramesUseCase(
	engine port.Engine,
	store port.FrameStore,
	repo port.JobRepository,
	publisher port.StatusPublisher,
	logger *zap.Logger,
	cfg ExtractFramesConfig,
) *ExtractFramesUseCase {
	quality := cfg.JPEGQuality
	if quality <= 0 {
		quality = 2
	}
	return &ExtractFramesUseCase{
		engine:    engine,
		store:     store,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		quality:   quality,
		timeout:   cfg.RunTimeout,
	}
}

// Submit starts extracting frames from video. It is ignored, returning
// accepted=false, while the engine is not ready or another job is running.
// On acceptance the returned channel yields the settled job and is closed.
func (uc *ExtractFramesUseCase) Submit(ctx context.Context, video entity.Video) (<-chan entity.Job, bool) {
	uc.mu.Lock()
	if !uc.engine.IsReady() {
		uc.mu.Unlock()
		metrics.SubmissionsRejectedTotal.WithLabelValues("engine_not_ready").Inc()
		uc.logger.Warn("submission ignored, engine not ready", zap.String("video", video.Name))
		return nil, false
	}
	if uc.job != nil && uc.job.IsRunning() {
		uc.mu.Unlock()
		metrics.SubmissionsRejectedTotal.WithLabelValues("job_running").Inc()
		uc.logger.Warn("submission ignored, extraction already running", zap.String("video", video.Name))
		return nil, false
	}

	job := entity.NewJob(video)
	job.MarkRunning()
	uc.job = job
	uc.store.Clear()
	snapshot := *job
	uc.mu.Unlock()

	// The job outlives the caller, e.g. an HTTP request that returns 202.
	runCtx := context.WithoutCancel(ctx)
	if uc.repo != nil {
		if err := uc.repo.Create(runCtx, &snapshot); err != nil {
			uc.logger.Error("failed to create job record", zap.String("job_id", job.ID.String()), zap.Error(err))
		}
	}
	uc.publishStatus(runCtx, &snapshot)

	done := make(chan entity.Job, 1)
	go uc.run(runCtx, job, video, done)
	return done, true
}

// ResetAll revokes every frame and returns the coordinator to idle. It is a
// no-op while a job is running.
func (uc *ExtractFramesUseCase) ResetAll() bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.job != nil && uc.job.IsRunning() {
		return false
	}
	uc.store.Clear()
	uc.job = nil
	uc.logger.Info("frames reset")
	return true
}

// EngineState reports the state of the processing engine behind the
// coordinator.
func (uc *ExtractFramesUseCase) EngineState() (entity.EngineState, error) {
	return uc.engine.State()
}

// Snapshot returns a copy of the current job, or an idle job when none exists.
func (uc *ExtractFramesUseCase) Snapshot() entity.Job {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.job == nil {
		return entity.Job{Status: entity.JobStatusIdle}
	}
	return *uc.job
}

func (uc *ExtractFramesUseCase) run(ctx context.Context, job *entity.Job, video entity.Video, done chan<- entity.Job) {
	defer close(done)

	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ExtractFramesUseCase.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("job.video_name", video.Name),
		attribute.Int("job.video_size", len(video.Data)),
	)

	log := uc.logger.With(zap.String("job_id", job.ID.String()), zap.String("video", video.Name))
	log.Info("extraction started", zap.Int("bytes", len(video.Data)))

	metrics.ActiveExtractions.Inc()
	defer metrics.ActiveExtractions.Dec()

	unsubscribe := uc.engine.SubscribeProgress(func(fraction float64) {
		uc.mu.Lock()
		if uc.job == job {
			job.SetProgress(fraction)
		}
		uc.mu.Unlock()
	})

	// The timeout bounds the engine work only; the settled job is still
	// persisted and published with ctx.
	extractCtx := ctx
	if uc.timeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, uc.timeout)
		defer cancel()
	}

	start := time.Now()
	blobs, err := uc.extract(extractCtx, video, log)
	unsubscribe()

	uc.mu.Lock()
	if err != nil {
		job.MarkFailed(err.Error())
	} else {
		frames := uc.store.ReplaceAll(blobs)
		job.MarkSucceeded(len(frames))
	}
	snapshot := *job
	uc.mu.Unlock()

	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		metrics.JobsProcessedTotal.WithLabelValues("failed").Inc()
		log.Error("extraction failed", zap.Error(err))
	} else {
		metrics.JobsProcessedTotal.WithLabelValues("succeeded").Inc()
		metrics.FramesExtractedTotal.Add(float64(snapshot.FrameCount))
		log.Info("extraction completed", zap.Int("frame_count", snapshot.FrameCount))
	}

	if uc.repo != nil {
		if err := uc.repo.Update(ctx, &snapshot); err != nil {
			log.Error("failed to update job record", zap.Error(err))
		}
	}
	uc.publishStatus(ctx, &snapshot)

	done <- snapshot
}

// extract drives the engine through one video and returns the frame bytes in
// temporal order.
func (uc *ExtractFramesUseCase) extract(ctx context.Context, video entity.Video, log *zap.Logger) ([][]byte, error) {
	inputName := "input" + video.Extension()

	if err := uc.stage(ctx, StageClean, func(ctx context.Context) error {
		return uc.engine.Clean(ctx)
	}); err != nil {
		return nil, err
	}

	if err := uc.stage(ctx, StageWrite, func(ctx context.Context) error {
		return uc.engine.WriteInput(ctx, inputName, video.Data)
	}); err != nil {
		return nil, err
	}

	args := []string{"-i", inputName, "-q:v", strconv.Itoa(uc.quality), outputNamePattern}
	if err := uc.stage(ctx, StageRun, func(ctx context.Context) error {
		return uc.engine.Run(ctx, args)
	}); err != nil {
		return nil, err
	}

	var names []string
	if err := uc.stage(ctx, StageList, func(ctx context.Context) error {
		outputs, err := uc.engine.ListOutputs(ctx)
		if err != nil {
			return err
		}
		names, err = selectFrameOutputs(outputs)
		return err
	}); err != nil {
		return nil, err
	}

	blobs := make([][]byte, 0, len(names))
	if err := uc.stage(ctx, StageRead, func(ctx context.Context) error {
		for _, name := range names {
			data, err := uc.engine.ReadOutput(ctx, name)
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			blobs = append(blobs, data)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if err := uc.engine.Clean(ctx); err != nil {
		log.Warn("failed to clean engine workspace", zap.Error(err))
	}
	return blobs, nil
}

func (uc *ExtractFramesUseCase) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := otel.Tracer("usecase").Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.JobProcessingDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return &entity.ExtractionError{Stage: name, Err: err}
	}
	return nil
}

// selectFrameOutputs keeps the engine outputs that follow the frame naming
// scheme and sorts them. A frame-like name with a wider number means the
// padding overflowed and order can no longer be trusted.
func selectFrameOutputs(outputs []entity.EngineOutput) ([]string, error) {
	names := make([]string, 0, len(outputs))
	for _, o := range outputs {
		switch {
		case outputNameRe.MatchString(o.Name):
			names = append(names, o.Name)
		case frameLikeRe.MatchString(o.Name):
			return nil, errFrameCeiling
		}
	}
	if len(names) == 0 {
		return nil, errNoFramesExtracted
	}
	sort.Strings(names)
	return names, nil
}

func (uc *ExtractFramesUseCase) publishStatus(ctx context.Context, job *entity.Job) {
	if uc.publisher == nil {
		return
	}
	data, _ := json.Marshal(entity.NewJobStatusMessage(job))
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		uc.logger.Error("failed to publish status", zap.String("job_id", job.ID.String()), zap.Error(err))
	}
}
