package testutil

import (
	"testing"
	"time"

	"github.com/book-expert/lipsync-service/internal/audio"
	"github.com/book-expert/lipsync-service/internal/core"
	"github.com/book-expert/lipsync-service/internal/fetch"
	"github.com/book-expert/lipsync-service/internal/inference"
	"github.com/book-expert/lipsync-service/internal/metrics"
	"github.com/book-expert/lipsync-service/internal/publish"
	"github.com/book-expert/lipsync-service/internal/synthesis"
)

// FallbackURL is the placeholder the test pipeline answers with.
const FallbackURL = "https://storage.test/fallback_sync.mp4"

// Pipeline is a fully wired orchestrator whose inference program is a shell stub.
type Pipeline struct {
	Orchestrator  *synthesis.Orchestrator
	Store         *RecordingStore
	Metrics       *metrics.Collector
	WorkspaceRoot string
}

// NewPipeline wires the real fetcher, normalizer, invoker and publisher
// around store and a stub running body.
func NewPipeline(t *testing.T, body string, store *RecordingStore) *Pipeline {
	t.Helper()

	return NewPipelineWithInvoker(t, nil, body, store)
}

// NewPipelineWithInvoker is NewPipeline with an optional invoker override.
func NewPipelineWithInvoker(t *testing.T, invoker core.InferenceInvoker, body string, store *RecordingStore) *Pipeline {
	t.Helper()

	log := NewLogger(t)

	if invoker == nil {
		stubInvoker, err := inference.New(inference.Config{
			Command: WriteStub(t, body),
			WorkDir: t.TempDir(),
			Timeout: 30 * time.Second,
		}, log)
		if err != nil {
			t.Fatalf("failed to create invoker: %v", err)
		}

		invoker = stubInvoker
	}

	publisher, err := publish.New(store, publish.DefaultKeyPrefix, time.Hour, log)
	if err != nil {
		t.Fatalf("failed to create publisher: %v", err)
	}

	collector := metrics.NewCollector()
	workspaceRoot := t.TempDir()

	orchestrator, err := synthesis.New(synthesis.Dependencies{
		Fetcher:    fetch.New(fetch.Options{Timeout: 10 * time.Second}),
		Normalizer: audio.New(),
		Invoker:    invoker,
		Publisher:  publisher,
		Metrics:    collector,
	}, synthesis.Options{
		WorkspaceRoot: workspaceRoot,
		FallbackURL:   FallbackURL,
	}, log)
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}

	return &Pipeline{
		Orchestrator:  orchestrator,
		Store:         store,
		Metrics:       collector,
		WorkspaceRoot: workspaceRoot,
	}
}
