package port

import "context"

// VideoSource reads submitted videos from object storage.
type VideoSource interface {
	DownloadVideo(ctx context.Context, objectKey string) (data []byte, contentType string, err error)
}
