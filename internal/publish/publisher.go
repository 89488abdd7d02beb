// Package publish moves produced videos into object storage and mints read links for them.
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/lipsync-service/internal/core"
)

// DefaultKeyPrefix is the namespace uploaded videos live under.
const DefaultKeyPrefix = "syncs/"

// ErrTTLInvalid indicates a non-positive link lifetime.
var ErrTTLInvalid = errors.New("signed url ttl must be positive")

const (
	logFmtUploaded     = "Uploaded %s as %s"
	logFmtUploadFailed = "Upload of %s failed, keeping local file: %v"
	logFmtRemoveFailed = "Failed to remove uploaded file %s: %v"
)

// Publisher implements core.ResultPublisher on top of a core.ObjectStore.
type Publisher struct {
	store     core.ObjectStore
	keyPrefix string
	ttl       time.Duration
	log       *logger.Logger
	now       func() time.Time
}

// New creates a new Publisher. An empty keyPrefix falls back to DefaultKeyPrefix.
func New(store core.ObjectStore, keyPrefix string, ttl time.Duration, log *logger.Logger) (*Publisher, error) {
	if ttl <= 0 {
		return nil, ErrTTLInvalid
	}

	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}

	return &Publisher{
		store:     store,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		log:       log,
		now:       time.Now,
	}, nil
}

// NewKey returns a fresh object key of the form <prefix><uuid>.mp4.
func (p *Publisher) NewKey() string {
	return p.keyPrefix + uuid.NewString() + core.VideoExtension
}

// Publish uploads every video in outputDir and signs a link for each, in
// listing order. A local file is removed only after its upload succeeded.
// On the first failure it stops and returns the artifacts finished so far
// together with the error.
func (p *Publisher) Publish(ctx context.Context, outputDir string) ([]core.ResultArtifact, error) {
	videos, err := core.ListVideos(outputDir)
	if err != nil {
		return nil, err
	}

	artifacts := make([]core.ResultArtifact, 0, len(videos))

	for _, video := range videos {
		artifact, err := p.publishOne(ctx, video)
		if err != nil {
			return artifacts, err
		}

		artifacts = append(artifacts, artifact)
	}

	return artifacts, nil
}

func (p *Publisher) publishOne(ctx context.Context, video string) (core.ResultArtifact, error) {
	key := p.NewKey()

	err := p.store.UploadFile(ctx, key, video)
	if err != nil {
		p.log.Error(logFmtUploadFailed, video, err)

		return core.ResultArtifact{}, fmt.Errorf("%w: %s: %w", core.ErrUpload, key, err)
	}

	p.log.Info(logFmtUploaded, video, key)

	removeErr := os.Remove(video)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		p.log.Warn(logFmtRemoveFailed, video, removeErr)
	}

	issued := p.now()

	signed, err := p.store.SignedURL(ctx, key, p.ttl)
	if err != nil {
		return core.ResultArtifact{}, fmt.Errorf("%w: %s: %w", core.ErrSigning, key, err)
	}

	return core.ResultArtifact{
		LocalPath: video,
		RemoteKey: key,
		SignedURL: signed,
		ExpiresAt: issued.Add(p.ttl),
	}, nil
}
