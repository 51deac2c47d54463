// Package framestore holds the extracted frames of the current job as
// memory-backed resources addressed by opaque handles.
//
// A handle stays valid until the set it belongs to is replaced or cleared.
// Revocation always happens before new resources are created, and a revoked
// handle is never issued again. The most recent revoked handles are
// remembered so that fetching one reports revocation; older ones are
// forgotten and report not found.
package framestore

import (
	"sync"

	"github.com/fiapx/fiapx-frame-extractor/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-extractor/internal/infra/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultRevokedMemory is how many revoked handles are remembered.
const DefaultRevokedMemory = 65536

type resource struct {
	frame entity.Frame
	data  []byte
}

type Store struct {
	logger *zap.Logger

	mu        sync.RWMutex
	frames    []entity.Frame
	resources map[string]*resource
	newHandle func() string

	revoked      map[string]struct{}
	revokedOrder []string
	maxRevoked   int
}

func New(logger *zap.Logger) *Store {
	return &Store{
		logger:     logger,
		resources:  make(map[string]*resource),
		newHandle:  uuid.NewString,
		revoked:    make(map[string]struct{}),
		maxRevoked: DefaultRevokedMemory,
	}
}

// ReplaceAll revokes every current resource and then materialises one frame
// per blob, with ordinals 1..N in input order.
func (s *Store) ReplaceAll(blobs [][]byte) []entity.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revokeLocked()

	s.frames = make([]entity.Frame, 0, len(blobs))
	for i, blob := range blobs {
		handle := s.issueHandleLocked()
		frame := entity.Frame{
			Ordinal:     i + 1,
			Handle:      handle,
			ContentType: entity.FrameContentType,
			Size:        len(blob),
		}
		s.resources[handle] = &resource{frame: frame, data: blob}
		s.frames = append(s.frames, frame)
	}
	metrics.LiveFrameResources.Set(float64(len(s.resources)))

	s.logger.Debug("frame set replaced", zap.Int("frames", len(s.frames)))
	return s.listLocked()
}

// Clear revokes every current resource and empties the set.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeLocked()
}

func (s *Store) List() []entity.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frames)
}

// Lookup returns the frame at a 1-based ordinal of the current set.
func (s *Store) Lookup(ordinal int) (entity.Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ordinal < 1 || ordinal > len(s.frames) {
		return entity.Frame{}, entity.ErrFrameNotFound
	}
	return s.frames[ordinal-1], nil
}

// Fetch returns the bytes behind a handle. The returned slice must not be
// modified.
func (s *Store) Fetch(handle string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.resources[handle]; ok {
		return r.data, nil
	}
	if _, ok := s.revoked[handle]; ok {
		return nil, entity.ErrResourceRevoked
	}
	return nil, entity.ErrResourceNotFound
}

func (s *Store) revokeLocked() {
	if len(s.resources) == 0 {
		s.frames = nil
		return
	}
	for handle := range s.resources {
		s.revoked[handle] = struct{}{}
		s.revokedOrder = append(s.revokedOrder, handle)
	}
	if over := len(s.revokedOrder) - s.maxRevoked; over > 0 {
		for _, handle := range s.revokedOrder[:over] {
			delete(s.revoked, handle)
		}
		s.revokedOrder = s.revokedOrder[over:]
	}
	metrics.FrameResourcesRevokedTotal.Add(float64(len(s.resources)))
	s.logger.Debug("frame resources revoked", zap.Int("count", len(s.resources)))

	s.resources = make(map[string]*resource)
	s.frames = nil
	metrics.LiveFrameResources.Set(0)
}

func (s *Store) issueHandleLocked() string {
	for {
		h := s.newHandle()
		if _, live := s.resources[h]; live {
			continue
		}
		if _, dead := s.revoked[h]; dead {
			continue
		}
		return h
	}
}

func (s *Store) listLocked() []entity.Frame {
	out := make([]entity.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}
