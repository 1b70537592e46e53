package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const maxImageBytes = 5 * 1024 * 1024

type S3Client struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	PublicURL string
}

func NewS3Client(cfg S3Config) (*S3Client, error) {
	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3Client{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

// Upload reads an image from a local temp file, normalizes it to PNG capped
// at 1024px, and puts it under a fresh key. The temp file is removed either
// way, matching the upload middleware's expectations.
func (s *S3Client) Upload(ctx context.Context, localPath string) (*UploadResult, error) {
	if localPath == "" {
		return nil, fmt.Errorf("empty upload path")
	}
	defer os.Remove(localPath)

	raw, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	if len(raw) > maxImageBytes {
		return nil, fmt.Errorf("image too large: %d bytes", len(raw))
	}

	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	img = imaging.Fit(img, 1024, 1024, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	key := fmt.Sprintf("images/%d_%s.png", time.Now().Unix(), uuid.NewString())

	uploadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err = s.client.PutObject(uploadCtx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("image/png"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	if s.publicURL != "" {
		return &UploadResult{URL: fmt.Sprintf("%s/%s", s.publicURL, key), Key: key}, nil
	}
	return &UploadResult{URL: fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key), Key: key}, nil
}

func (s *S3Client) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}

	delCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.client.DeleteObject(delCtx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}
