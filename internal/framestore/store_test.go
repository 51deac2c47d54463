package framestore

import (
	"fmt"
	"testing"

	"github.com/fiapx/fiapx-frame-extractor/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func blobs(n int, prefix string) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte(fmt.Sprintf("%s-%d", prefix, i+1))
	}
	return out
}

func TestReplaceAllAssignsContiguousOrdinals(t *testing.T) {
	s := New(zap.NewNop())

	frames := s.ReplaceAll(blobs(3, "a"))
	require.Len(t, frames, 3)

	for i, f := range frames {
		assert.Equal(t, i+1, f.Ordinal)
		assert.Equal(t, entity.FrameContentType, f.ContentType)
		data, err := s.Fetch(f.Handle)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("a-%d", i+1), string(data))
		assert.Equal(t, len(data), f.Size)
	}
	assert.Equal(t, frames, s.List())
}

func TestReplaceAllRevokesPreviousHandles(t *testing.T) {
	s := New(zap.NewNop())
	old := s.ReplaceAll(blobs(2, "old"))
	fresh := s.ReplaceAll(blobs(2, "new"))

	for _, f := range old {
		_, err := s.Fetch(f.Handle)
		assert.ErrorIs(t, err, entity.ErrResourceRevoked)
		for _, n := range fresh {
			assert.NotEqual(t, f.Handle, n.Handle)
		}
	}
	data, err := s.Fetch(fresh[0].Handle)
	require.NoError(t, err)
	assert.Equal(t, "new-1", string(data))
}

func TestClearRevokesEverything(t *testing.T) {
	s := New(zap.NewNop())
	frames := s.ReplaceAll(blobs(2, "a"))

	s.Clear()

	assert.Empty(t, s.List())
	assert.Equal(t, 0, s.Len())
	for _, f := range frames {
		_, err := s.Fetch(f.Handle)
		assert.ErrorIs(t, err, entity.ErrResourceRevoked)
	}
	_, err := s.Lookup(1)
	assert.ErrorIs(t, err, entity.ErrFrameNotFound)
}

func TestFetchUnknownHandle(t *testing.T) {
	s := New(zap.NewNop())
	_, err := s.Fetch("missing")
	assert.ErrorIs(t, err, entity.ErrResourceNotFound)
}

func TestRevokedHandleIsNeverReissued(t *testing.T) {
	s := New(zap.NewNop())
	seq := []string{"h1", "h1", "h2"}
	s.newHandle = func() string {
		h := seq[0]
		seq = seq[1:]
		return h
	}

	first := s.ReplaceAll(blobs(1, "a"))
	require.Equal(t, "h1", first[0].Handle)

	second := s.ReplaceAll(blobs(1, "b"))
	assert.Equal(t, "h2", second[0].Handle)
}

func TestLookup(t *testing.T) {
	s := New(zap.NewNop())
	frames := s.ReplaceAll(blobs(3, "a"))

	f, err := s.Lookup(2)
	require.NoError(t, err)
	assert.Equal(t, frames[1], f)

	_, err = s.Lookup(0)
	assert.ErrorIs(t, err, entity.ErrFrameNotFound)
	_, err = s.Lookup(4)
	assert.ErrorIs(t, err, entity.ErrFrameNotFound)
}

func TestListReturnsCopy(t *testing.T) {
	s := New(zap.NewNop())
	s.ReplaceAll(blobs(1, "a"))

	list := s.List()
	list[0].Ordinal = 42

	assert.Equal(t, 1, s.List()[0].Ordinal)
}

func TestRevokedMemoryIsBounded(t *testing.T) {
	s := New(zap.NewNop())
	s.maxRevoked = 2

	first := s.ReplaceAll(blobs(2, "a"))
	second := s.ReplaceAll(blobs(2, "b"))
	s.Clear()

	assert.Len(t, s.revoked, 2)
	assert.Len(t, s.revokedOrder, 2)

	// The oldest revocations are forgotten first.
	for _, f := range first {
		_, err := s.Fetch(f.Handle)
		assert.ErrorIs(t, err, entity.ErrResourceNotFound)
	}
	for _, f := range second {
		_, err := s.Fetch(f.Handle)
		assert.ErrorIs(t, err, entity.ErrResourceRevoked)
	}
}
