package usecase

import (
	"context"
	"encoding/json"
	"path"

	"github.com/fiapx/fiapx-frame-extractor/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-extractor/internal/domain/port"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// FrameSubmitter starts an extraction; see ExtractFramesUseCase.Submit.
type FrameSubmitter interface {
	Submit(ctx context.Context, video entity.Video) (<-chan entity.Job, bool)
	EngineState() (entity.EngineState, error)
}

// ExtractionRequestUseCase handles extraction requests arriving on the
// message queue for videos already held in object storage.
type ExtractionRequestUseCase struct {
	submitter FrameSubmitter
	source    port.VideoSource
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
}

// NewExtractionRequestUseCase builds the handler. notifier may be nil.
func NewExtractionRequestUseCase(
	submitter FrameSubmitter,
	source port.VideoSource,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
) *ExtractionRequestUseCase {
	return &ExtractionRequestUseCase{
		submitter: submitter,
		source:    source,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
	}
}

// Execute processes one raw queue message. Returning an error asks the
// consumer to requeue; that only happens while the extractor is busy or the
// engine is still loading. Anything that can never succeed, including a
// request arriving after the engine failed to load, goes to the DLQ instead.
func (uc *ExtractionRequestUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	ctx, span := otel.Tracer("usecase").Start(ctx, "ExtractionRequestUseCase.Execute")
	defer span.End()

	var msg entity.ExtractionRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}
	if msg.VideoKey == "" {
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "missing video_key")
		return nil
	}

	span.SetAttributes(
		attribute.String("request.id", msg.RequestID),
		attribute.String("request.video_key", msg.VideoKey),
	)
	log := uc.logger.With(zap.String("request_id", msg.RequestID), zap.String("video_key", msg.VideoKey))

	if uc.engineFailed(ctx, rawMsg, log) {
		return nil
	}

	data, contentType, err := uc.source.DownloadVideo(ctx, msg.VideoKey)
	if err != nil {
		log.Error("failed to download video", zap.Error(err))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "download_video: "+err.Error())
		return nil
	}

	video := entity.Video{
		Name:        path.Base(msg.VideoKey),
		ContentType: contentType,
		Data:        data,
		Source:      entity.JobSourceStorage,
	}
	if err := video.Validate(); err != nil {
		log.Warn("rejected non-video object", zap.String("content_type", contentType))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, err.Error())
		return nil
	}

	done, accepted := uc.submitter.Submit(ctx, video)
	if !accepted {
		if uc.engineFailed(ctx, rawMsg, log) {
			return nil
		}
		if state, _ := uc.submitter.EngineState(); state == entity.EngineStateUnready {
			log.Info("engine still loading, request will be redelivered")
			return entity.ErrEngineNotReady
		}
		log.Info("extractor busy, request will be redelivered")
		return entity.ErrJobRunning
	}

	var job entity.Job
	select {
	case job = <-done:
	case <-ctx.Done():
		// The job keeps running; only the wait is abandoned.
		log.Warn("stopped waiting for extraction", zap.Error(ctx.Err()))
		return nil
	}

	if job.Status == entity.JobStatusFailed && msg.NotifyEmail != "" && uc.notifier != nil {
		if err := uc.notifier.NotifyFailure(ctx, msg.NotifyEmail, job.ID.String(), job.VideoName, job.ErrorMessage); err != nil {
			log.Warn("failure notification not sent", zap.Error(err))
		}
	}

	log.Info("extraction request settled",
		zap.String("job_id", job.ID.String()),
		zap.String("status", string(job.Status)),
		zap.Int("frame_count", job.FrameCount),
	)
	return nil
}

// engineFailed dead-letters the message when the engine failed to load;
// that state lasts for the life of the process.
func (uc *ExtractionRequestUseCase) engineFailed(ctx context.Context, rawMsg []byte, log *zap.Logger) bool {
	state, err := uc.submitter.EngineState()
	if state != entity.EngineStateFailed {
		return false
	}
	reason := "engine_failed"
	if err != nil {
		reason += ": " + err.Error()
	}
	log.Error("engine unavailable, dead-lettering request", zap.Error(err))
	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, reason)
	return true
}
