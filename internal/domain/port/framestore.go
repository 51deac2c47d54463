package port

import "github.com/fiapx/fiapx-frame-extractor/internal/domain/entity"

// FrameStore owns the current set of frame resources.
type FrameStore interface {
	ReplaceAll(blobs [][]byte) []entity.Frame
	Clear()
	List() []entity.Frame
	Lookup(ordinal int) (entity.Frame, error)
	Fetch(handle string) ([]byte, error)
}
