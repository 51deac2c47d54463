package entity

import "fmt"

const (
	FrameContentType = "image/jpeg"
	ArchiveName      = "extracted-frames.zip"
)

// Frame is one extracted still image held by the frame store.
type Frame struct {
	Ordinal     int
	Handle      string
	ContentType string
	Size        int
}

// FileName is the download name for the frame: frame-XXXX.jpg with a
// zero-padded 1-based ordinal.
func (f Frame) FileName() string {
	return FrameFileName(f.Ordinal)
}

func FrameFileName(ordinal int) string {
	return fmt.Sprintf("frame-%04d.jpg", ordinal)
}

// ArchiveEntry is one named blob handed to the archive packer.
type ArchiveEntry struct {
	Name string
	Data []byte
}

type EngineState string

const (
	EngineStateUnready EngineState = "unready"
	EngineStateReady   EngineState = "ready"
	EngineStateFailed  EngineState = "failed"
)

// EngineOutput is one file listed from the engine workspace.
type EngineOutput struct {
	Name string
	Size int64
}
