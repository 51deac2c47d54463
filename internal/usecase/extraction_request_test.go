package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/fiapx/fiapx-frame-extractor/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-extractor/internal/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	data        []byte
	contentType string
	err         error
	keys        []string
}

func (s *fakeSource) DownloadVideo(_ context.Context, key string) ([]byte, string, error) {
	s.keys = append(s.keys, key)
	return s.data, s.contentType, s.err
}

type fakeDLQ struct {
	reasons []string
}

func (d *fakeDLQ) PublishToDLQ(_ context.Context, _ []byte, reason string) error {
	d.reasons = append(d.reasons, reason)
	return nil
}

type fakeNotifier struct {
	emails []string
	errs   []string
}

func (n *fakeNotifier) NotifyFailure(_ context.Context, email, _, _, errorMsg string) error {
	n.emails = append(n.emails, email)
	n.errs = append(n.errs, errorMsg)
	return nil
}

type rejectingSubmitter struct {
	state entity.EngineState
}

func (rejectingSubmitter) Submit(context.Context, entity.Video) (<-chan entity.Job, bool) {
	return nil, false
}

func (s rejectingSubmitter) EngineState() (entity.EngineState, error) {
	return s.state, nil
}

func TestExtractionRequestRunsJob(t *testing.T) {
	f := newFixture(t, enginetest.New(enginetest.Frames(2)))
	source := &fakeSource{data: []byte("mp4"), contentType: "video/mp4"}
	dlq := &fakeDLQ{}
	notifier := &fakeNotifier{}
	uc := NewExtractionRequestUseCase(f.uc, source, dlq, notifier, zap.NewNop())

	err := uc.Execute(context.Background(), []byte(`{"request_id":"r1","video_key":"user/clip.mp4","notify_email":"a@b.c"}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"user/clip.mp4"}, source.keys)
	job := f.uc.Snapshot()
	assert.Equal(t, entity.JobStatusSucceeded, job.Status)
	assert.Equal(t, entity.JobSourceStorage, job.Source)
	assert.Equal(t, "clip.mp4", job.VideoName)
	assert.Len(t, f.store.List(), 2)
	assert.Empty(t, dlq.reasons)
	assert.Empty(t, notifier.emails)
}

func TestExtractionRequestNotifiesOnFailure(t *testing.T) {
	capability := enginetest.New(enginetest.Frames(2))
	capability.ExecErr = errors.New("unsupported codec")
	f := newFixture(t, capability)
	notifier := &fakeNotifier{}
	uc := NewExtractionRequestUseCase(f.uc, &fakeSource{data: []byte("x"), contentType: "video/mp4"}, &fakeDLQ{}, notifier, zap.NewNop())

	require.NoError(t, uc.Execute(context.Background(), []byte(`{"video_key":"clip.mp4","notify_email":"a@b.c"}`)))

	assert.Equal(t, []string{"a@b.c"}, notifier.emails)
	require.Len(t, notifier.errs, 1)
	assert.Contains(t, notifier.errs[0], "unsupported codec")
}

func TestExtractionRequestDeadLetters(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		source *fakeSource
		reason string
	}{
		{"malformed json", `{invalid json`, &fakeSource{}, "unmarshal_error"},
		{"missing key", `{"request_id":"r1"}`, &fakeSource{}, "missing video_key"},
		{"download failure", `{"video_key":"gone.mp4"}`, &fakeSource{err: errors.New("no such key")}, "download_video"},
		{"not a video", `{"video_key":"doc.pdf"}`, &fakeSource{data: []byte("%PDF"), contentType: "application/pdf"}, "unsupported input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dlq := &fakeDLQ{}
			uc := NewExtractionRequestUseCase(rejectingSubmitter{}, tt.source, dlq, nil, zap.NewNop())

			require.NoError(t, uc.Execute(context.Background(), []byte(tt.body)))
			require.Len(t, dlq.reasons, 1)
			assert.Contains(t, dlq.reasons[0], tt.reason)
		})
	}
}

func TestExtractionRequestBusyIsRequeued(t *testing.T) {
	dlq := &fakeDLQ{}
	uc := NewExtractionRequestUseCase(rejectingSubmitter{}, &fakeSource{data: []byte("x"), contentType: "video/mp4"}, dlq, nil, zap.NewNop())

	err := uc.Execute(context.Background(), []byte(`{"video_key":"clip.mp4"}`))

	assert.ErrorIs(t, err, entity.ErrJobRunning)
	assert.Empty(t, dlq.reasons)
}

func TestExtractionRequestEngineFailedIsDeadLettered(t *testing.T) {
	capability := enginetest.New(enginetest.Frames(1))
	capability.LoadErr = errors.New("ffmpeg not found")
	f := newFixture(t, capability)
	source := &fakeSource{data: []byte("x"), contentType: "video/mp4"}
	dlq := &fakeDLQ{}
	uc := NewExtractionRequestUseCase(f.uc, source, dlq, nil, zap.NewNop())

	err := uc.Execute(context.Background(), []byte(`{"video_key":"clip.mp4"}`))

	require.NoError(t, err)
	require.Len(t, dlq.reasons, 1)
	assert.Contains(t, dlq.reasons[0], "engine_failed")
	assert.Contains(t, dlq.reasons[0], "ffmpeg not found")
	assert.Empty(t, source.keys)
	assert.Empty(t, capability.ExecArgs())
}

func TestExtractionRequestEngineLoadingIsRequeued(t *testing.T) {
	dlq := &fakeDLQ{}
	submitter := rejectingSubmitter{state: entity.EngineStateUnready}
	uc := NewExtractionRequestUseCase(submitter, &fakeSource{data: []byte("x"), contentType: "video/mp4"}, dlq, nil, zap.NewNop())

	err := uc.Execute(context.Background(), []byte(`{"video_key":"clip.mp4"}`))

	assert.ErrorIs(t, err, entity.ErrEngineNotReady)
	assert.Empty(t, dlq.reasons)
}
