package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pepocero/gestioneducativa-sub000/security"
)

// S3SinkConfig configures the S3-compatible delivery target for flushed
// security-event batches.
type S3SinkConfig struct {
	Endpoint       string `yaml:"endpoint"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	Bucket         string `yaml:"bucket"`
	Prefix         string `yaml:"prefix"`
	UseSSL         bool   `yaml:"use_ssl"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

// s3EventSink writes each flushed batch as one JSON object, keyed by
// flush timestamp. Works with any S3-compatible service (incl. R2).
type s3EventSink struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3EventSink builds a security.Sink delivering to S3-compatible
// storage.
func NewS3EventSink(cfg S3SinkConfig) (security.Sink, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("incomplete S3 event sink config")
	}
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, err
		}
		endpoint = u.Host
		useSSL = (u.Scheme == "https")
	}
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: "auto",
		BucketLookup: func() minio.BucketLookupType {
			if cfg.ForcePathStyle {
				return minio.BucketLookupPath
			}
			return minio.BucketLookupAuto
		}(),
	})
	if err != nil {
		return nil, err
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "security-events"
	}
	return &s3EventSink{client: cli, bucket: cfg.Bucket, prefix: prefix}, nil
}

func (s *s3EventSink) Deliver(ctx context.Context, events []security.Event) error {
	if len(events) == 0 {
		return nil
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		c, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		ctx = c
	}

	payload, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode event batch: %w", err)
	}

	key := fmt.Sprintf("%s/%s-%04d.json", s.prefix, time.Now().UTC().Format("2006/01/02/150405.000"), len(events))
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put event batch: %w", err)
	}
	return nil
}
