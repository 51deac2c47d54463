package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/fiapx/fiapx-frame-extractor/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-extractor/internal/engine"
	"github.com/fiapx/fiapx-frame-extractor/internal/engine/enginetest"
	"github.com/fiapx/fiapx-frame-extractor/internal/framestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingRepo struct {
	mu         sync.Mutex
	created    []entity.Job
	updated    []entity.Job
	updateErrs []error
	err        error
}

func (r *recordingRepo) Create(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, *job)
	return r.err
}

func (r *recordingRepo) Update(ctx context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, *job)
	r.updateErrs = append(r.updateErrs, ctx.Err())
	return r.err
}

func (r *recordingRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	return nil, entity.ErrJobNotFound
}

func (r *recordingRepo) ListRecent(_ context.Context, _ int) ([]entity.Job, error) {
	return nil, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	msgs    []entity.JobStatusMessage
	ctxErrs []error
}

func (p *recordingPublisher) PublishStatus(ctx context.Context, data []byte) error {
	var msg entity.JobStatusMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	return nil
}

func (p *recordingPublisher) statuses() []entity.JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]entity.JobStatus, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.Status)
	}
	return out
}

type fixture struct {
	capability *enginetest.Capability
	handle     *engine.Handle
	store      *framestore.Store
	uc         *ExtractFramesUseCase
}

func newFixture(t *testing.T, capability *enginetest.Capability) *fixture {
	t.Helper()
	logger := zap.NewNop()
	handle := engine.NewHandle(capability, logger)
	_ = handle.Initialize(context.Background())
	store := framestore.New(logger)
	uc := NewExtractFramesUseCase(handle, store, nil, nil, logger, ExtractFramesConfig{})
	return &fixture{capability: capability, handle: handle, store: store, uc: uc}
}

func video(name string) entity.Video {
	return entity.Video{Name: name, ContentType: "video/mp4", Data: []byte("video-bytes")}
}

func waitJob(t *testing.T, done <-chan entity.Job) entity.Job {
	t.Helper()
	select {
	case job, ok := <-done:
		require.True(t, ok, "done channel closed without a job")
		return job
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for extraction to settle")
	}
	return entity.Job{}
}
