package etl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"docmodel/internal/relation"
)

// ObjectStoreConfig holds the S3-compatible endpoint settings.
type ObjectStoreConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// ObjectStoreWriter writes each table as one JSON-lines object
// <prefix><table>.jsonl in a bucket.
type ObjectStoreWriter struct {
	client *minio.Client
	bucket string
	prefix string
	region string

	initOnce sync.Once
	initErr  error
}

func NewObjectStoreWriter(cfg ObjectStoreConfig, bucket, prefix string) (*ObjectStoreWriter, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store client: %w", err)
	}
	return &ObjectStoreWriter{client: client, bucket: bucket, prefix: prefix, region: region}, nil
}

func (w *ObjectStoreWriter) Name() string { return "s3://" + w.bucket + "/" + w.prefix }

func (w *ObjectStoreWriter) ensureBucket(ctx context.Context) error {
	w.initOnce.Do(func() {
		exists, err := w.client.BucketExists(ctx, w.bucket)
		if err != nil {
			w.initErr = err
			return
		}
		if exists {
			return
		}
		w.initErr = w.client.MakeBucket(ctx, w.bucket, minio.MakeBucketOptions{Region: w.region})
	})
	return w.initErr
}

func (w *ObjectStoreWriter) objectKey(table string) string {
	return strings.TrimLeft(w.prefix, "/") + table + ".jsonl"
}

func (w *ObjectStoreWriter) WriteTable(ctx context.Context, table string, frame *relation.Frame, mode WriteMode) (int, error) {
	data, n, err := encodeJSONLines(ctx, frame)
	if err != nil {
		return 0, fmt.Errorf("materialize %s: %w", table, err)
	}
	if err := w.ensureBucket(ctx); err != nil {
		return 0, fmt.Errorf("ensure bucket: %w", err)
	}

	key := w.objectKey(table)
	if mode == WriteAppend {
		existing, err := w.get(ctx, key)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", key, err)
		}
		data = append(existing, data...)
	}

	_, err = w.client.PutObject(ctx, w.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	})
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	return n, nil
}

// get returns the object content, or nil when it does not exist.
func (w *ObjectStoreWriter) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := w.client.GetObject(ctx, w.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (w *ObjectStoreWriter) Close() error { return nil }
