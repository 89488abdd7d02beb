package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/book-expert/lipsync-service/internal/core"
)

const videoContentType = "video/mp4"

// ErrBucketEmpty indicates a GCS store without a bucket name.
var ErrBucketEmpty = errors.New("gcs bucket cannot be empty")

// GCSOptions configures a GCSStore.
type GCSOptions struct {
	// Bucket receives uploads and is the bucket links are signed for.
	Bucket string
	// CredentialsFile is a service account key; empty uses ambient credentials.
	CredentialsFile string
	// SigningEmail and SigningPrivateKey sign links locally when both are set.
	// Otherwise the client library derives the identity from its credentials.
	SigningEmail      string
	SigningPrivateKey string
	// ClientOptions are appended to the client construction options.
	ClientOptions []option.ClientOption
}

// GCSStore implements core.ObjectStore on a Google Cloud Storage bucket.
type GCSStore struct {
	client     *storage.Client
	bucket     string
	email      string
	privateKey []byte
	now        func() time.Time
}

// NewGCS creates a storage client and binds it to the configured bucket.
func NewGCS(ctx context.Context, opts GCSOptions) (*GCSStore, error) {
	if opts.Bucket == "" {
		return nil, ErrBucketEmpty
	}

	clientOpts := make([]option.ClientOption, 0, len(opts.ClientOptions)+1)
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	clientOpts = append(clientOpts, opts.ClientOptions...)

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	store := &GCSStore{
		client: client,
		bucket: opts.Bucket,
		email:  opts.SigningEmail,
		now:    time.Now,
	}

	if opts.SigningPrivateKey != "" {
		// Keys pasted into env/config often carry literal \n sequences.
		store.privateKey = []byte(strings.ReplaceAll(opts.SigningPrivateKey, `\n`, "\n"))
	}

	return store, nil
}

// UploadFile streams the file at path into the bucket under key.
func (g *GCSStore) UploadFile(ctx context.Context, key, path string) error {
	file, err := os.Open(path) // #nosec G304 -- path is a video the pipeline produced
	if err != nil {
		return fmt.Errorf("failed to open '%s' for upload: %w", path, err)
	}
	defer file.Close()

	// Cancelling the writer's context aborts the upload; Close alone would commit it.
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := g.client.Bucket(g.bucket).Object(key).NewWriter(writeCtx)
	writer.ContentType = videoContentType
	// Single-request upload.
	writer.ChunkSize = 0

	_, err = io.Copy(writer, file)
	if err != nil {
		cancel()
		_ = writer.Close()

		return fmt.Errorf("failed to write object '%s' to bucket '%s': %w", key, g.bucket, err)
	}

	err = writer.Close()
	if err != nil {
		return fmt.Errorf("failed to finalize object '%s' in bucket '%s': %w", key, g.bucket, err)
	}

	return nil
}

// SignedURL returns a V4 signed GET link for key that expires after ttl.
func (g *GCSStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: g.now().Add(ttl),
	}

	if g.email != "" && len(g.privateKey) > 0 {
		opts.GoogleAccessID = g.email
		opts.PrivateKey = g.privateKey
	}

	signed, err := g.client.Bucket(g.bucket).SignedURL(key, opts)
	if err != nil {
		return "", fmt.Errorf("failed to sign '%s' in bucket '%s': %w", key, g.bucket, err)
	}

	return signed, nil
}

// Close releases the storage client.
func (g *GCSStore) Close() error {
	return g.client.Close()
}

var _ core.ObjectStore = (*GCSStore)(nil)
