package ffmpeg

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/fiapx/fiapx-frame-extractor/internal/domain/entity"
)

// ZipCreator packs named in-memory blobs into one zip archive.
type ZipCreator struct {
	method uint16
}

// NewZipCreator stores JPEG entries without recompressing them.
func NewZipCreator() *ZipCreator {
	return &ZipCreator{method: zip.Store}
}

func NewDeflateZipCreator() *ZipCreator {
	return &ZipCreator{method: zip.Deflate}
}

// NewZipCreatorFor picks the packer for a configured compression name,
// "store" or "deflate".
func NewZipCreatorFor(compression string) (*ZipCreator, error) {
	switch compression {
	case "", "store":
		return NewZipCreator(), nil
	case "deflate":
		return NewDeflateZipCreator(), nil
	default:
		return nil, fmt.Errorf("unknown archive compression %q", compression)
	}
}

func (z *ZipCreator) Pack(ctx context.Context, entries []entity.ArchiveEntry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	seen := make(map[string]struct{}, len(entries))
	modified := time.Now()
	for _, e := range entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("duplicate zip entry %s", e.Name)
		}
		seen[e.Name] = struct{}{}

		if err := addEntryToZip(zw, e, z.method, modified); err != nil {
			return nil, fmt.Errorf("add %s to zip: %w", e.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

func addEntryToZip(zw *zip.Writer, e entity.ArchiveEntry, method uint16, modified time.Time) error {
	header := &zip.FileHeader{
		Name:     e.Name,
		Method:   method,
		Modified: modified,
	}
	header.SetMode(0o644)

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = writer.Write(e.Data)
	return err
}
