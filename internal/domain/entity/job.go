package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusIdle      JobStatus = "IDLE"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
)

type JobSource string

const (
	JobSourceUpload  JobSource = "upload"
	JobSourceStorage JobSource = "storage"
)

// Job is one end-to-end extraction run for one submitted video.
type Job struct {
	ID           uuid.UUID
	VideoName    string
	VideoSize    int64
	Source       JobSource
	Status       JobStatus
	Progress     float64
	FrameCount   int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

func NewJob(video Video) *Job {
	now := time.Now().UTC()
	source := video.Source
	if source == "" {
		source = JobSourceUpload
	}
	return &Job{
		ID:        uuid.New(),
		VideoName: video.Name,
		VideoSize: int64(len(video.Data)),
		Source:    source,
		Status:    JobStatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (j *Job) MarkRunning() {
	j.Status = JobStatusRunning
	j.Progress = 0
	j.UpdatedAt = time.Now().UTC()
}

// SetProgress records a fraction in [0,1]. Values lower than the current one
// are ignored so progress never moves backwards within a job.
func (j *Job) SetProgress(fraction float64) bool {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	if fraction < j.Progress {
		return false
	}
	j.Progress = fraction
	return true
}

func (j *Job) MarkSucceeded(frameCount int) {
	now := time.Now().UTC()
	j.Status = JobStatusSucceeded
	j.FrameCount = frameCount
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) MarkFailed(errMsg string) {
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.FrameCount = 0
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) IsRunning() bool {
	return j.Status == JobStatusRunning
}

// ProgressPercent scales the progress fraction to a rounded 0-100 value.
func (j *Job) ProgressPercent() int {
	return int(j.Progress*100 + 0.5)
}
