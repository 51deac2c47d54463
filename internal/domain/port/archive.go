package port

import (
	"context"

	"github.com/fiapx/fiapx-frame-extractor/internal/domain/entity"
)

type ArchivePacker interface {
	Pack(ctx context.Context, entries []entity.ArchiveEntry) ([]byte, error)
}
