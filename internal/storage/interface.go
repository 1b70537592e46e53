package storage

import "context"

// UploadResult references an object in the media store.
type UploadResult struct {
	URL string
	Key string
}

// MediaStore uploads local temp files and deletes objects by key. Callers
// decide whether a failed upload is fatal: it is for avatars, not for covers.
type MediaStore interface {
	Upload(ctx context.Context, localPath string) (*UploadResult, error)
	Delete(ctx context.Context, key string) error
}
