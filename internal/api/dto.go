package api

import (
	"time"

	"github.com/fiapx/fiapx-frame-extractor/internal/domain/entity"
)

type engineDTO struct {
	State entity.EngineState `json:"state"`
	Error string             `json:"error,omitempty"`
}

type jobDTO struct {
	ID          string           `json:"id,omitempty"`
	Status      entity.JobStatus `json:"status"`
	Progress    int              `json:"progress"`
	VideoName   string           `json:"video_name,omitempty"`
	VideoSize   int64            `json:"video_size,omitempty"`
	Source      entity.JobSource `json:"source,omitempty"`
	FrameCount  int              `json:"frame_count"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   *time.Time       `json:"created_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

type frameDTO struct {
	Ordinal  int    `json:"ordinal"`
	Handle   string `json:"handle"`
	URL      string `json:"url"`
	FileName string `json:"file_name"`
	Size     int    `json:"size"`
}

type stateResponse struct {
	Engine         engineDTO  `json:"engine"`
	Job            jobDTO     `json:"job"`
	Frames         []frameDTO `json:"frames"`
	Exporting      bool       `json:"exporting"`
	MaxUploadBytes int64      `json:"max_upload_bytes"`
}

type acceptedResponse struct {
	Accepted bool `json:"accepted"`
}

type storageExtractionRequest struct {
	VideoKey string `json:"video_key"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newJobDTO(job entity.Job) jobDTO {
	dto := jobDTO{
		Status:      job.Status,
		Progress:    job.ProgressPercent(),
		VideoName:   job.VideoName,
		VideoSize:   job.VideoSize,
		Source:      job.Source,
		FrameCount:  job.FrameCount,
		Error:       job.ErrorMessage,
		CompletedAt: job.CompletedAt,
	}
	if job.Status != entity.JobStatusIdle || !job.CreatedAt.IsZero() {
		dto.ID = job.ID.String()
		createdAt := job.CreatedAt
		dto.CreatedAt = &createdAt
	}
	return dto
}

func newFrameDTO(frame entity.Frame) frameDTO {
	return frameDTO{
		Ordinal:  frame.Ordinal,
		Handle:   frame.Handle,
		URL:      resourceURL(frame.Handle),
		FileName: frame.FileName(),
		Size:     frame.Size,
	}
}

func resourceURL(handle string) string {
	return "/resources/" + handle
}
