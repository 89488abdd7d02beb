// Package objectstore provides the object storage backends for produced videos.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/lipsync-service/internal/core"
)

// ErrSignerMissing indicates a NATS store asked for links without a signer.
var ErrSignerMissing = errors.New("object store has no media signer")

// NatsObjectStore implements core.ObjectStore and core.ObjectSource using a
// NATS JetStream object store. Its signed links point at this service's
// media route.
type NatsObjectStore struct {
	jetstreamContext nats.JetStreamContext
	bucket           string
	store            nats.ObjectStore
	signer           *MediaSigner
}

// NewNATS creates and initializes a new NatsObjectStore. signer may be nil
// for a store that is only written and read.
func NewNATS(jetstreamContext nats.JetStreamContext, bucketName string, signer *MediaSigner) (*NatsObjectStore, error) {
	// Use a "create-first" approach.
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Lip-sync videos in the %s bucket.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})

	// If the bucket already exists, bind to it.
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{
		jetstreamContext: jetstreamContext,
		bucket:           bucketName,
		store:            store,
		signer:           signer,
	}, nil
}

// Download retrieves an object from the NATS object store.
func (n *NatsObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// UploadFile streams the file at path into the bucket under key.
func (n *NatsObjectStore) UploadFile(_ context.Context, key, path string) error {
	file, err := os.Open(path) // #nosec G304 -- path is a video the pipeline produced
	if err != nil {
		return fmt.Errorf("failed to open '%s' for upload: %w", path, err)
	}
	defer file.Close()

	_, err = n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     nats.Header{"Content-Type": []string{"video/mp4"}},
		Metadata:    nil,
		Opts:        nil,
	}, file)
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// SignedURL returns a media link for key that expires after ttl.
func (n *NatsObjectStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if n.signer == nil {
		return "", ErrSignerMissing
	}

	return n.signer.Link(key, ttl)
}

var (
	_ core.ObjectStore  = (*NatsObjectStore)(nil)
	_ core.ObjectSource = (*NatsObjectStore)(nil)
)
