package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Simulator is a MediaStore for local runs and tests: no network, keys and
// urls are deterministic over the file content.
type Simulator struct {
	bucket   string
	endpoint string

	mu      sync.Mutex
	deleted []string
}

func NewSimulator(bucket, endpoint string) *Simulator {
	return &Simulator{
		bucket:   strings.TrimSpace(bucket),
		endpoint: strings.TrimSpace(endpoint),
	}
}

func (r *Simulator) Upload(_ context.Context, localPath string) (*UploadResult, error) {
	if localPath == "" {
		return nil, fmt.Errorf("empty upload path")
	}
	defer os.Remove(localPath)

	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}

	sum := sha256.Sum256(data)
	key := "images/" + hex.EncodeToString(sum[:]) + ".png"

	ep := r.endpoint
	if ep == "" {
		ep = "https://media.example.invalid"
	}
	bucket := r.bucket
	if bucket == "" {
		bucket = "vidstream"
	}

	return &UploadResult{
		URL: fmt.Sprintf("%s/%s/%s", strings.TrimRight(ep, "/"), bucket, key),
		Key: key,
	}, nil
}

func (r *Simulator) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, key)
	return nil
}

// Deleted reports the keys deleted so far; test helper.
func (r *Simulator) Deleted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deleted...)
}
