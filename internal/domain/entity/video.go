package entity

import (
	"path/filepath"
	"strings"
)

// Video is a submitted video byte stream.
type Video struct {
	Name        string
	ContentType string
	Data        []byte
	Source      JobSource
}

// IsVideoContentType reports whether a declared media type identifies video content.
func IsVideoContentType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "video/")
}

// Validate rejects payloads that are not declared as video.
func (v Video) Validate() error {
	if !IsVideoContentType(v.ContentType) {
		return &UnsupportedInputError{ContentType: v.ContentType}
	}
	return nil
}

// Extension returns the lowercased file extension of the video name, or
// ".mp4" when the name carries none.
func (v Video) Extension() string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(v.Name)))
	if ext == "" || ext == "." || strings.ContainsAny(ext, `/\ `) {
		return ".mp4"
	}
	return ext
}
