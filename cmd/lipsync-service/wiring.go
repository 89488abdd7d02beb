package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/lipsync-service/internal/audio"
	"github.com/book-expert/lipsync-service/internal/config"
	"github.com/book-expert/lipsync-service/internal/core"
	"github.com/book-expert/lipsync-service/internal/fetch"
	"github.com/book-expert/lipsync-service/internal/httpapi"
	"github.com/book-expert/lipsync-service/internal/inference"
	"github.com/book-expert/lipsync-service/internal/metrics"
	"github.com/book-expert/lipsync-service/internal/objectstore"
	"github.com/book-expert/lipsync-service/internal/publish"
	"github.com/book-expert/lipsync-service/internal/synthesis"
	"github.com/book-expert/lipsync-service/internal/worker"
)

const (
	natsClientName   = "lipsync-service"
	// publishAllowance covers uploads and signing after inference finishes.
	publishAllowance = 5 * time.Minute
)

// application holds the wired components and what must be released on exit.
type application struct {
	router  http.Handler
	worker  *worker.NatsWorker
	closers []func()
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build assembles every component from cfg. On error, whatever was opened is closed.
func build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*application, error) {
	app := &application{}

	var natsConnection *nats.Conn

	if cfg.NATS.URL != "" {
		conn, err := nats.Connect(cfg.NATS.URL, nats.Name(natsClientName))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}

		natsConnection = conn
		app.closers = append(app.closers, conn.Close)
	}

	store, media, err := buildStore(ctx, cfg, natsConnection, app)
	if err != nil {
		app.close()

		return nil, err
	}

	collector := metrics.NewCollector()

	orchestrator, err := buildOrchestrator(cfg, store, collector, log)
	if err != nil {
		app.close()

		return nil, err
	}

	router, err := httpapi.NewRouter(httpapi.Deps{
		Synthesizer: orchestrator,
		Metrics:     collector,
		Log:         log,
		Variant:     cfg.Response.Variant,
		Media:       media,
	})
	if err != nil {
		app.close()

		return nil, err
	}

	app.router = router

	if natsConnection != nil {
		app.worker, err = worker.NewNatsWorker(natsConnection, cfg.NATS.SynthesisSubject, orchestrator, workerTimeout(cfg), log)
		if err != nil {
			app.close()

			return nil, err
		}
	}

	return app, nil
}

// workerTimeout bounds one NATS request. An unbounded inference run yields 0,
// which leaves the worker on its own default.
func workerTimeout(cfg *config.Config) time.Duration {
	inferenceTimeout := cfg.InferenceTimeout()
	if inferenceTimeout <= 0 {
		return 0
	}

	return inferenceTimeout + 2*cfg.FetchTimeout() + publishAllowance
}

// buildStore opens the configured storage backend. The nats backend also
// yields the media route that serves its signed links.
func buildStore(
	ctx context.Context,
	cfg *config.Config,
	natsConnection *nats.Conn,
	app *application,
) (core.ObjectStore, *httpapi.MediaDeps, error) {
	if cfg.Storage.Backend == config.BackendNATS {
		signer, err := objectstore.NewMediaSigner(cfg.Server.PublicBaseURL, cfg.Storage.MediaTokenSecret)
		if err != nil {
			return nil, nil, err
		}

		jetstreamContext, err := natsConnection.JetStream()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get JetStream context: %w", err)
		}

		store, err := objectstore.NewNATS(jetstreamContext, cfg.NATS.ObjectStoreBucket, signer)
		if err != nil {
			return nil, nil, err
		}

		return store, &httpapi.MediaDeps{Source: store, Verifier: signer}, nil
	}

	store, err := objectstore.NewGCS(ctx, objectstore.GCSOptions{
		Bucket:            cfg.Storage.PublicBucket,
		CredentialsFile:   cfg.Storage.CredentialsFile,
		SigningEmail:      cfg.Storage.SigningEmail,
		SigningPrivateKey: cfg.Storage.SigningPrivateKey,
	})
	if err != nil {
		return nil, nil, err
	}

	app.closers = append(app.closers, func() { _ = store.Close() })

	return store, nil, nil
}

func buildOrchestrator(
	cfg *config.Config,
	store core.ObjectStore,
	collector *metrics.Collector,
	log *logger.Logger,
) (*synthesis.Orchestrator, error) {
	invoker, err := inference.New(inference.Config{
		Command: cfg.Inference.Command,
		WorkDir: cfg.Inference.WorkDir,
		Timeout: cfg.InferenceTimeout(),
	}, log)
	if err != nil {
		return nil, err
	}

	publisher, err := publish.New(store, cfg.Storage.KeyPrefix, cfg.SignedURLTTL(), log)
	if err != nil {
		return nil, err
	}

	return synthesis.New(synthesis.Dependencies{
		Fetcher: fetch.New(fetch.Options{
			Timeout:      cfg.FetchTimeout(),
			MaxBytes:     cfg.Fetcher.MaxBytes,
			AllowedHosts: cfg.Fetcher.AllowedHosts,
		}),
		Normalizer: audio.New(),
		Invoker:    invoker,
		Publisher:  publisher,
		Metrics:    collector,
	}, synthesis.Options{
		WorkspaceRoot: cfg.Paths.WorkspaceRoot,
		FallbackURL:   cfg.Response.FallbackURL,
	}, log)
}
