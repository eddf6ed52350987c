package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// JetStream stores payloads in a NATS JetStream object store bucket.
type JetStream struct {
	store jetstream.ObjectStore
}

// NewJetStream binds to bucket, creating it on first use.
func NewJetStream(ctx context.Context, conn *nats.Conn, bucket string) (*JetStream, error) {
	if conn == nil {
		return nil, fmt.Errorf("nats connection is required for the object store")
	}
	if bucket == "" {
		return nil, fmt.Errorf("object store bucket must not be empty")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	store, err := js.ObjectStore(ctx, bucket)
	if err != nil {
		store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "chat attachments",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create object store bucket: %w", err)
		}
	}

	return &JetStream{store: store}, nil
}

// Put streams r into the bucket under key.
func (j *JetStream) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	if !validKey(key) {
		return 0, ErrInvalidKey
	}

	info, err := j.store.Put(ctx, jetstream.ObjectMeta{Name: key}, r)
	if err != nil {
		return 0, fmt.Errorf("failed to store object: %w", err)
	}
	return int64(info.Size), nil
}

// Open checks the object exists and returns a reader over its chunks.
func (j *JetStream) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if !validKey(key) {
		return nil, ErrInvalidKey
	}

	result, err := j.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrObjectNotFound) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return result, nil
}

// Delete removes the object. Deleting a missing key is not an error.
func (j *JetStream) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return ErrInvalidKey
	}
	if err := j.store.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}
