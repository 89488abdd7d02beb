// Package core defines the core business types and interfaces for the lipsync service.
package core

import (
	"context"
	"time"
)

// ObjectStore defines the interface for interacting with a key-value blob store
// that can hand out time-limited read links.
type ObjectStore interface {
	UploadFile(ctx context.Context, key string, path string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ObjectSource reads objects back, for backends whose signed links point at
// this service.
type ObjectSource interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// MediaFetcher retrieves the raw bytes behind a remote URL.
type MediaFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// AudioNormalizer turns fetched audio into the WAV bytes the inference program reads.
type AudioNormalizer interface {
	Normalize(ctx context.Context, compressed []byte, sourceFormat string) ([]byte, error)
}

// InferenceInvoker runs the external lip-sync program once.
type InferenceInvoker interface {
	Invoke(ctx context.Context, imagePath, audioPath, outputDir string) (*InferenceRun, error)
}

// ResultPublisher moves produced videos into durable storage.
type ResultPublisher interface {
	Publish(ctx context.Context, outputDir string) ([]ResultArtifact, error)
}

// Synthesizer runs one request through the whole pipeline.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResponse, error)
}
