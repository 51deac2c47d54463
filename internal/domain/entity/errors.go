package entity

import (
	"errors"
	"fmt"
)

var (
	ErrEngineNotReady   = errors.New("engine is not ready")
	ErrJobRunning       = errors.New("an extraction is already running")
	ErrNoFrames         = errors.New("no frames to export")
	ErrExportInProgress = errors.New("an export is already in progress")
	ErrResourceRevoked  = errors.New("frame resource has been revoked")
	ErrResourceNotFound = errors.New("frame resource not found")
	ErrFrameNotFound    = errors.New("frame not found")
	ErrJobNotFound      = errors.New("job not found")
)

// EngineInitError means the processing engine could not be loaded. It blocks
// every extraction until the process restarts.
type EngineInitError struct {
	Err error
}

func (e *EngineInitError) Error() string {
	return fmt.Sprintf("engine init: %v", e.Err)
}

func (e *EngineInitError) Unwrap() error { return e.Err }

// UnsupportedInputError is returned for payloads that are not video.
type UnsupportedInputError struct {
	ContentType string
}

func (e *UnsupportedInputError) Error() string {
	if e.ContentType == "" {
		return "unsupported input: missing content type, expected video/*"
	}
	return fmt.Sprintf("unsupported input: %q is not a video content type", e.ContentType)
}

// ExtractionError is any failure while driving the engine through one job.
type ExtractionError struct {
	Stage string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed at %s: %v", e.Stage, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ExportError is any failure fetching frame bytes or packing the archive.
// Ordinal is zero when the failure is not tied to one frame.
type ExportError struct {
	Ordinal int
	Err     error
}

func (e *ExportError) Error() string {
	if e.Ordinal > 0 {
		return fmt.Sprintf("export failed on frame %d: %v", e.Ordinal, e.Err)
	}
	return fmt.Sprintf("export failed: %v", e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }
