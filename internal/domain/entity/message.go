package entity

import "github.com/google/uuid"

// ExtractionRequestMessage is the inbound message from the extraction request queue.
type ExtractionRequestMessage struct {
	RequestID   string `json:"request_id"`
	VideoKey    string `json:"video_key"`
	NotifyEmail string `json:"notify_email,omitempty"`
}

// JobStatusMessage is the outbound message published on every job transition.
type JobStatusMessage struct {
	JobID        uuid.UUID `json:"job_id"`
	Status       JobStatus `json:"status"`
	Source       JobSource `json:"source"`
	VideoName    string    `json:"video_name"`
	FrameCount   int       `json:"frame_count,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

func NewJobStatusMessage(job *Job) JobStatusMessage {
	return JobStatusMessage{
		JobID:        job.ID,
		Status:       job.Status,
		Source:       job.Source,
		VideoName:    job.VideoName,
		FrameCount:   job.FrameCount,
		ErrorMessage: job.ErrorMessage,
	}
}
