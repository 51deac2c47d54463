package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fiapx/fiapx-frame-extractor/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-extractor/internal/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSubmitExtractsFramesInOutputOrder(t *testing.T) {
	f := newFixture(t, enginetest.New(enginetest.Frames(3)))

	done, accepted := f.uc.Submit(context.Background(), video("clip.mp4"))
	require.True(t, accepted)
	job := waitJob(t, done)

	assert.Equal(t, entity.JobStatusSucceeded, job.Status)
	assert.Equal(t, 3, job.FrameCount)
	assert.Equal(t, job, f.uc.Snapshot())

	frames := f.store.List()
	require.Len(t, frames, 3)
	for i, frame := range frames {
		assert.Equal(t, i+1, frame.Ordinal)
		data, err := f.store.Fetch(frame.Handle)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("frame-%d", i+1), string(data))
	}

	// Scenario A: downloading ordinal 2 yields frame-0002.jpg with output 2's bytes.
	exporter := NewExportArchiveUseCase(f.store, nil, zap.NewNop(), ExportArchiveConfig{})
	second, err := f.store.Lookup(2)
	require.NoError(t, err)
	name, data, err := exporter.ExportOne(second)
	require.NoError(t, err)
	assert.Equal(t, "frame-0002.jpg", name)
	assert.Equal(t, []byte("frame-2"), data)
}

func TestSubmitDrivesEngineWithStableNames(t *testing.T) {
	f := newFixture(t, enginetest.New(enginetest.Frames(1)))

	done, accepted := f.uc.Submit(context.Background(), entity.Video{Name: "Holiday.MOV", ContentType: "video/quicktime", Data: []byte("mov")})
	require.True(t, accepted)
	waitJob(t, done)

	args := f.capability.ExecArgs()
	require.Len(t, args, 1)
	assert.Equal(t, []string{"-i", "input.mov", "-q:v", "2", "frame%06d.jpg"}, args[0])
	// Workspace cleaned before the run and again after reading outputs.
	assert.Equal(t, 2, f.capability.Cleans())
}

func TestSubmitIgnoresNonFrameOutputs(t *testing.T) {
	outputs := enginetest.Frames(2)
	outputs["thumbnail.jpg"] = []byte("x")
	outputs["frame000003.png"] = []byte("x")
	outputs["frames.txt"] = []byte("x")
	f := newFixture(t, enginetest.New(outputs))

	done, _ := f.uc.Submit(context.Background(), video("clip.mp4"))
	job := waitJob(t, done)

	assert.Equal(t, entity.JobStatusSucceeded, job.Status)
	assert.Equal(t, 2, job.FrameCount)
}

func TestSubmitRejectedWhenEngineFailed(t *testing.T) {
	capability := enginetest.New(enginetest.Frames(3))
	capability.LoadErr = errors.New("wasm blocked")
	f := newFixture(t, capability)

	done, accepted := f.uc.Submit(context.Background(), video("clip.mp4"))

	assert.False(t, accepted)
	assert.Nil(t, done)
	assert.Equal(t, entity.JobStatusIdle, f.uc.Snapshot().Status)
	assert.Empty(t, f.store.List())
	assert.Empty(t, f.capability.ExecArgs())
}

func TestSubmitWhileRunningIsIgnored(t *testing.T) {
	capability := enginetest.New(enginetest.Frames(150))
	capability.Progress = []float64{0.4}
	capability.Block = make(chan struct{})
	capability.Started = make(chan struct{}, 1)
	f := newFixture(t, capability)

	done, accepted := f.uc.Submit(context.Background(), video("first.mp4"))
	require.True(t, accepted)
	<-capability.Started
	require.Eventually(t, func() bool { return f.uc.Snapshot().Progress == 0.4 }, time.Second, time.Millisecond)

	before := f.uc.Snapshot()
	framesBefore := f.store.List()

	second, accepted := f.uc.Submit(context.Background(), video("second.mp4"))
	assert.False(t, accepted)
	assert.Nil(t, second)

	after := f.uc.Snapshot()
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, entity.JobStatusRunning, after.Status)
	assert.Equal(t, 0.4, after.Progress)
	assert.Equal(t, framesBefore, f.store.List())
	assert.False(t, f.uc.ResetAll())

	close(capability.Block)
	job := waitJob(t, done)
	assert.Equal(t, "first.mp4", job.VideoName)
	assert.Equal(t, 150, job.FrameCount)
	assert.Len(t, capability.ExecArgs(), 1)

	// Once settled, a new submission is accepted again.
	capability.Block = nil
	next, accepted := f.uc.Submit(context.Background(), video("second.mp4"))
	require.True(t, accepted)
	assert.Equal(t, "second.mp4", waitJob(t, next).VideoName)
}

func TestCompletionDoesNotDependOnFinalProgress(t *testing.T) {
	capability := enginetest.New(enginetest.Frames(2))
	capability.Progress = []float64{0.1, 0.5, 0.3}
	f := newFixture(t, capability)

	done, _ := f.uc.Submit(context.Background(), video("clip.mp4"))
	job := waitJob(t, done)

	assert.Equal(t, entity.JobStatusSucceeded, job.Status)
	assert.Equal(t, 0.5, job.Progress)
	assert.Equal(t, 50, job.ProgressPercent())
}

func TestSubmitFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(c *enginetest.Capability)
		stage string
	}{
		{"write", func(c *enginetest.Capability) { c.WriteErr = errors.New("out of memory") }, StageWrite},
		{"run", func(c *enginetest.Capability) { c.ExecErr = errors.New("unsupported codec") }, StageRun},
		{"list", func(c *enginetest.Capability) { c.ListErr = errors.New("fs gone") }, StageList},
		{"read", func(c *enginetest.Capability) {
			c.ReadErrs = map[string]error{"frame000002.jpg": errors.New("truncated")}
		}, StageRead},
		{"no outputs", func(c *enginetest.Capability) { c.Outputs = nil }, StageList},
		{"padding overflow", func(c *enginetest.Capability) {
			c.Outputs["frame1000000.jpg"] = []byte("late")
		}, StageList},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capability := enginetest.New(enginetest.Frames(3))
			tt.setup(capability)
			f := newFixture(t, capability)

			done, accepted := f.uc.Submit(context.Background(), video("clip.mp4"))
			require.True(t, accepted)
			job := waitJob(t, done)

			assert.Equal(t, entity.JobStatusFailed, job.Status)
			assert.Contains(t, job.ErrorMessage, "extraction failed at "+tt.stage)
			assert.Equal(t, 0, job.FrameCount)
			assert.Empty(t, f.store.List())

			// The coordinator accepts a new submission after a failure.
			capability.WriteErr, capability.ExecErr, capability.ListErr = nil, nil, nil
			capability.ReadErrs = nil
			capability.Outputs = enginetest.Frames(1)
			next, accepted := f.uc.Submit(context.Background(), video("retry.mp4"))
			require.True(t, accepted)
			assert.Equal(t, entity.JobStatusSucceeded, waitJob(t, next).Status)
		})
	}
}

func TestNewSubmissionRevokesPreviousFrames(t *testing.T) {
	f := newFixture(t, enginetest.New(enginetest.Frames(2)))

	done, _ := f.uc.Submit(context.Background(), video("a.mp4"))
	waitJob(t, done)
	old := f.store.List()

	done, _ = f.uc.Submit(context.Background(), video("b.mp4"))
	waitJob(t, done)

	for _, frame := range old {
		_, err := f.store.Fetch(frame.Handle)
		assert.ErrorIs(t, err, entity.ErrResourceRevoked)
	}
	assert.Len(t, f.store.List(), 2)
}

func TestResetAll(t *testing.T) {
	f := newFixture(t, enginetest.New(enginetest.Frames(2)))

	done, _ := f.uc.Submit(context.Background(), video("a.mp4"))
	waitJob(t, done)
	frames := f.store.List()

	assert.True(t, f.uc.ResetAll())
	assert.Equal(t, entity.JobStatusIdle, f.uc.Snapshot().Status)
	assert.Empty(t, f.store.List())
	for _, frame := range frames {
		_, err := f.store.Fetch(frame.Handle)
		assert.ErrorIs(t, err, entity.ErrResourceRevoked)
	}
}

func TestJobHistoryAndStatusEvents(t *testing.T) {
	capability := enginetest.New(enginetest.Frames(2))
	f := newFixture(t, capability)
	repo := &recordingRepo{err: errors.New("db down")}
	publisher := &recordingPublisher{}
	uc := NewExtractFramesUseCase(f.handle, f.store, repo, publisher, zap.NewNop(), ExtractFramesConfig{})

	done, _ := uc.Submit(context.Background(), video("a.mp4"))
	job := waitJob(t, done)

	// Persistence failures never fail the job.
	assert.Equal(t, entity.JobStatusSucceeded, job.Status)

	repo.mu.Lock()
	require.Len(t, repo.created, 1)
	require.Len(t, repo.updated, 1)
	assert.Equal(t, entity.JobStatusRunning, repo.created[0].Status)
	assert.Equal(t, entity.JobStatusSucceeded, repo.updated[0].Status)
	assert.Equal(t, job.ID, repo.updated[0].ID)
	repo.mu.Unlock()

	assert.Equal(t, []entity.JobStatus{entity.JobStatusRunning, entity.JobStatusSucceeded}, publisher.statuses())
}

func TestTimedOutJobIsStillRecorded(t *testing.T) {
	capability := enginetest.New(enginetest.Frames(2))
	capability.Block = make(chan struct{})
	defer close(capability.Block)
	f := newFixture(t, capability)
	repo := &recordingRepo{}
	publisher := &recordingPublisher{}
	uc := NewExtractFramesUseCase(f.handle, f.store, repo, publisher, zap.NewNop(), ExtractFramesConfig{
		RunTimeout: 50 * time.Millisecond,
	})

	done, accepted := uc.Submit(context.Background(), video("slow.mp4"))
	require.True(t, accepted)
	job := waitJob(t, done)

	assert.Equal(t, entity.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "extraction failed at run")
	assert.Contains(t, job.ErrorMessage, context.DeadlineExceeded.Error())

	repo.mu.Lock()
	require.Len(t, repo.updated, 1)
	assert.Equal(t, entity.JobStatusFailed, repo.updated[0].Status)
	assert.NoError(t, repo.updateErrs[0])
	repo.mu.Unlock()

	assert.Equal(t, []entity.JobStatus{entity.JobStatusRunning, entity.JobStatusFailed}, publisher.statuses())
	publisher.mu.Lock()
	for _, err := range publisher.ctxErrs {
		assert.NoError(t, err)
	}
	publisher.mu.Unlock()
}

func TestSelectFrameOutputsSortsLexicographically(t *testing.T) {
	names, err := selectFrameOutputs([]entity.EngineOutput{
		{Name: "frame000010.jpg"},
		{Name: "input.mp4"},
		{Name: "frame000002.jpg"},
		{Name: "frame000001.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"frame000001.jpg", "frame000002.jpg", "frame000010.jpg"}, names)
}
