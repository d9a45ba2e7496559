package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dray-io/droplife/internal/config"
	"github.com/dray-io/droplife/internal/objectstore"
	"github.com/dray-io/droplife/internal/objectstore/s3"
	"github.com/dray-io/droplife/internal/storage"
)

// openBackend builds the storage backend described by sc. The returned
// closer is nil for backends without resources to release. Object store
// operations are recorded on recorder when it is non-nil.
func openBackend(ctx context.Context, sc config.StorageConfig, recorder objectstore.MetricsRecorder) (storage.Backend, io.Closer, error) {
	if sc.Backend == config.BackendFile {
		b, err := storage.NewFileBackend(sc.Root)
		if err != nil {
			return nil, nil, fmt.Errorf("open file backend: %w", err)
		}
		return b, nil, nil
	}

	codec, err := storage.ParseCodec(sc.Codec)
	if err != nil {
		return nil, nil, err
	}

	var store objectstore.Store
	switch sc.Backend {
	case config.BackendMemory:
		store = objectstore.NewMemoryStore()
	case config.BackendS3:
		store, err = s3.New(ctx, s3.Config{
			Bucket:          sc.S3.Bucket,
			Region:          sc.S3.Region,
			Endpoint:        sc.S3.Endpoint,
			AccessKeyID:     sc.S3.AccessKey,
			SecretAccessKey: sc.S3.SecretKey,
			UsePathStyle:    sc.S3.UsePathStyle,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open s3 store: %w", err)
		}
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}

	if recorder != nil {
		store = objectstore.NewInstrumentedStore(store, recorder)
	}

	backend := storage.NewObjectBackend(store, storage.ObjectBackendConfig{
		Prefix: sc.Prefix,
		Codec:  codec,
	})
	return backend, store, nil
}
