package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/taskflow/pkg/config"
	"github.com/platinummonkey/taskflow/pkg/observability"
)

// New builds the configured blob store wrapped with tracing and metrics
func New(ctx context.Context, cfg config.StorageConfig, metrics *observability.Metrics) (BlobStore, error) {
	switch cfg.Backend {
	case "filesystem", "":
		store, err := NewFileSystemStore(cfg.FilesystemRoot)
		if err != nil {
			return nil, err
		}
		return Instrument(store, "filesystem", metrics), nil
	case "s3":
		store, err := NewS3Store(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return Instrument(store, "s3", metrics), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %q", cfg.Backend)
	}
}

type instrumented struct {
	next    BlobStore
	backend string
	metrics *observability.Metrics
}

// Instrument wraps store so every call gets a span and storage metrics
func Instrument(store BlobStore, backend string, metrics *observability.Metrics) BlobStore {
	return &instrumented{next: store, backend: backend, metrics: metrics}
}

func (i *instrumented) Save(ctx context.Context, key string, r io.Reader, contentType string) (n int64, err error) {
	ctx, span := observability.StartSpan(ctx, "BlobStore.Save",
		attribute.String("storage.backend", i.backend),
		attribute.String("storage.key", key),
		attribute.String("content.type", contentType),
	)
	start := time.Now()
	defer func() {
		span.SetAttributes(attribute.Int64("content.size", n))
		i.metrics.ObserveStorage("save", i.backend, start, err)
		observability.EndSpan(span, err)
	}()
	return i.next.Save(ctx, key, r, contentType)
}

func (i *instrumented) Open(ctx context.Context, key string) (rc io.ReadCloser, err error) {
	ctx, span := observability.StartSpan(ctx, "BlobStore.Open",
		attribute.String("storage.backend", i.backend),
		attribute.String("storage.key", key),
	)
	start := time.Now()
	defer func() {
		i.metrics.ObserveStorage("open", i.backend, start, err)
		observability.EndSpan(span, err)
	}()
	return i.next.Open(ctx, key)
}

func (i *instrumented) Delete(ctx context.Context, key string) (err error) {
	ctx, span := observability.StartSpan(ctx, "BlobStore.Delete",
		attribute.String("storage.backend", i.backend),
		attribute.String("storage.key", key),
	)
	start := time.Now()
	defer func() {
		i.metrics.ObserveStorage("delete", i.backend, start, err)
		observability.EndSpan(span, err)
	}()
	return i.next.Delete(ctx, key)
}

func (i *instrumented) HealthCheck(ctx context.Context) error {
	return i.next.HealthCheck(ctx)
}
