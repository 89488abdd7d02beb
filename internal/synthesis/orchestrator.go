// Package synthesis sequences one lip-sync request: fetch, normalize, infer, publish.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/lipsync-service/internal/audio"
	"github.com/book-expert/lipsync-service/internal/core"
	"github.com/book-expert/lipsync-service/internal/metrics"
)

// Outcomes recorded per request.
const (
	OutcomeProduced         = "produced"
	OutcomeFallbackFailed   = "fallback_failed"
	OutcomeFallbackNoOutput = "fallback_no_output"
	OutcomeError            = "error"
)

const (
	imageBaseName  = "image"
	outputDirName  = "output"
	dirPermission  = 0o750
	filePermission = 0o600
	defaultImgExt  = ".png"
	stderrLogLimit = 2048
)

var (
	// ErrFallbackEmpty indicates an orchestrator configured without a placeholder URL.
	ErrFallbackEmpty = errors.New("fallback url cannot be empty")
	// ErrWorkspaceRootEmpty indicates an orchestrator without a scratch directory.
	ErrWorkspaceRootEmpty = errors.New("workspace root cannot be empty")
	// ErrMissingDependency indicates a nil pipeline stage.
	ErrMissingDependency = errors.New("synthesis dependency missing")
)

// Error messages.
const (
	errFmtMissingParam = "%w: %s is required"
	errFmtBadURL       = "%w: %s is not an absolute URL"
	errFmtWorkspace    = "failed to create workspace '%s': %w"
	errFmtWriteImage   = "failed to write image '%s': %w"
	errFmtFetchImage   = "image: %w"
	errFmtFetchAudio   = "audio: %w"
)

// Log messages.
const (
	logFmtStart          = "Synthesis %s started: audio=%s image=%s"
	logFmtFallbackFailed = "Synthesis %s produced no video, inference failed with exit %d; returning fallback. stderr: %s"
	logFmtFallbackEmpty  = "Synthesis %s produced no video though inference exited 0; returning fallback"
	logFmtProduced       = "Synthesis %s published %d video(s) in %s"
	logFmtPartial        = "Synthesis %s published %d video(s) before failing: %v"
	logFmtKeptWorkspace  = "Synthesis %s left unpublished videos in %s"
	logFmtRemoveFailed   = "Failed to remove workspace %s: %v"

	logFmtNothingPublished = "Synthesis %s found no video left to publish; returning fallback"
)

// Dependencies are the pipeline stages.
type Dependencies struct {
	Fetcher    core.MediaFetcher
	Normalizer core.AudioNormalizer
	Invoker    core.InferenceInvoker
	Publisher  core.ResultPublisher
	Metrics    *metrics.Collector
}

// Options is the static configuration of the orchestrator.
type Options struct {
	// WorkspaceRoot holds one scratch directory per request.
	WorkspaceRoot string
	// FallbackURL is returned when a run produces no video.
	FallbackURL string
}

// Orchestrator implements the request pipeline.
type Orchestrator struct {
	deps Dependencies
	opts Options
	log  *logger.Logger
}

// New creates a new Orchestrator.
func New(deps Dependencies, opts Options, log *logger.Logger) (*Orchestrator, error) {
	if deps.Fetcher == nil || deps.Normalizer == nil || deps.Invoker == nil || deps.Publisher == nil || deps.Metrics == nil {
		return nil, ErrMissingDependency
	}

	if opts.FallbackURL == "" {
		return nil, ErrFallbackEmpty
	}

	if opts.WorkspaceRoot == "" {
		return nil, ErrWorkspaceRootEmpty
	}

	return &Orchestrator{
		deps: deps,
		opts: opts,
		log:  log,
	}, nil
}

// FallbackURL returns the placeholder returned for runs without output.
func (o *Orchestrator) FallbackURL() string {
	return o.opts.FallbackURL
}

// workspace is the private scratch area of one request.
type workspace struct {
	id     string
	root   string
	output string
}

// Synthesize runs the whole pipeline for req. A run that yields no video is
// answered with the fallback URL, not an error.
func (o *Orchestrator) Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.SynthesisResponse, error) {
	done := o.deps.Metrics.TrackInFlight()
	defer done()

	resp, outcome, err := o.synthesize(ctx, req)
	if err != nil {
		outcome = OutcomeError
	}

	o.deps.Metrics.RecordSynthesis(outcome)

	return resp, err
}

func (o *Orchestrator) synthesize(ctx context.Context, req core.SynthesisRequest) (*core.SynthesisResponse, string, error) {
	err := Validate(req)
	if err != nil {
		return nil, "", err
	}

	ws, err := o.newWorkspace()
	if err != nil {
		return nil, "", err
	}

	keep := false

	defer func() {
		if keep {
			o.log.Warn(logFmtKeptWorkspace, ws.id, ws.root)

			return
		}

		removeErr := os.RemoveAll(ws.root)
		if removeErr != nil {
			o.log.Warn(logFmtRemoveFailed, ws.root, removeErr)
		}
	}()

	o.log.Info(logFmtStart, ws.id, req.AudioURL, req.ImageURL)

	image, audioAsset, err := o.prepareMedia(ctx, ws, req)
	if err != nil {
		return nil, "", err
	}

	started := time.Now()

	run, err := o.deps.Invoker.Invoke(ctx, image.Path, audioAsset.Path, ws.output)
	if err != nil {
		return nil, "", err
	}

	o.deps.Metrics.ObserveStage(metrics.StageInference, time.Since(started))
	o.deps.Metrics.RecordInference(string(run.Status))

	switch run.Status {
	case core.RunFailed:
		o.log.Warn(logFmtFallbackFailed, ws.id, run.ExitCode, tail(run.Stderr, stderrLogLimit))

		return o.fallback(run), OutcomeFallbackFailed, nil
	case core.RunNoOutput:
		o.log.Warn(logFmtFallbackEmpty, ws.id)

		return o.fallback(run), OutcomeFallbackNoOutput, nil
	case core.RunProduced:
	}

	started = time.Now()
	artifacts, err := o.deps.Publisher.Publish(ctx, ws.output)
	o.deps.Metrics.ObserveStage(metrics.StagePublish, time.Since(started))
	o.deps.Metrics.RecordUploads(len(artifacts), errors.Is(err, core.ErrUpload))

	if err != nil {
		leftover, listErr := core.ListVideos(ws.output)
		keep = listErr != nil || len(leftover) > 0

		if len(artifacts) == 0 {
			return nil, "", err
		}

		o.log.Warn(logFmtPartial, ws.id, len(artifacts), err)
	}

	if len(artifacts) == 0 {
		o.log.Warn(logFmtNothingPublished, ws.id)

		return o.fallback(run), OutcomeFallbackNoOutput, nil
	}

	o.log.Info(logFmtProduced, ws.id, len(artifacts), run.Duration)

	return produced(run, artifacts), OutcomeProduced, nil
}

// prepareMedia fetches both inputs and leaves them on disk in ws, audio as WAV.
func (o *Orchestrator) prepareMedia(
	ctx context.Context,
	ws *workspace,
	req core.SynthesisRequest,
) (core.LocalMediaAsset, core.LocalMediaAsset, error) {
	started := time.Now()

	imageBytes, err := o.deps.Fetcher.Fetch(ctx, req.ImageURL)
	if err != nil {
		return core.LocalMediaAsset{}, core.LocalMediaAsset{}, fmt.Errorf(errFmtFetchImage, err)
	}

	compressed, err := o.deps.Fetcher.Fetch(ctx, req.AudioURL)
	if err != nil {
		return core.LocalMediaAsset{}, core.LocalMediaAsset{}, fmt.Errorf(errFmtFetchAudio, err)
	}

	o.deps.Metrics.ObserveStage(metrics.StageFetch, time.Since(started))

	image, err := writeImage(ws.root, imageBytes)
	if err != nil {
		return core.LocalMediaAsset{}, core.LocalMediaAsset{}, err
	}

	started = time.Now()

	wavBytes, err := o.deps.Normalizer.Normalize(ctx, compressed, string(audio.FormatMP3))
	if err != nil {
		return core.LocalMediaAsset{}, core.LocalMediaAsset{}, err
	}

	o.deps.Metrics.ObserveStage(metrics.StageNormalize, time.Since(started))

	audioAsset, err := audio.WriteWAV(ws.root, wavBytes)
	if err != nil {
		return core.LocalMediaAsset{}, core.LocalMediaAsset{}, err
	}

	return image, audioAsset, nil
}

func (o *Orchestrator) newWorkspace() (*workspace, error) {
	id := uuid.NewString()
	root := filepath.Join(o.opts.WorkspaceRoot, id)
	output := filepath.Join(root, outputDirName)

	err := os.MkdirAll(output, dirPermission)
	if err != nil {
		return nil, fmt.Errorf(errFmtWorkspace, root, err)
	}

	return &workspace{id: id, root: root, output: output}, nil
}

func (o *Orchestrator) fallback(run *core.InferenceRun) *core.SynthesisResponse {
	return &core.SynthesisResponse{
		SyncURL:  o.opts.FallbackURL,
		URLs:     []string{},
		Stdout:   run.Stdout,
		Stderr:   run.Stderr,
		Fallback: true,
	}
}

func produced(run *core.InferenceRun, artifacts []core.ResultArtifact) *core.SynthesisResponse {
	urls := make([]string, 0, len(artifacts))
	for _, artifact := range artifacts {
		urls = append(urls, artifact.SignedURL)
	}

	return &core.SynthesisResponse{
		SyncURL: urls[0],
		URLs:    urls,
		Stdout:  run.Stdout,
		Stderr:  run.Stderr,
	}
}

// Validate checks that both source URLs are present and absolute.
func Validate(req core.SynthesisRequest) error {
	params := []struct {
		name  string
		value string
	}{
		{name: "mp3URL", value: req.AudioURL},
		{name: "imageURL", value: req.ImageURL},
	}

	for _, param := range params {
		if strings.TrimSpace(param.value) == "" {
			return fmt.Errorf(errFmtMissingParam, core.ErrInvalidRequest, param.name)
		}

		parsed, err := url.Parse(param.value)
		if err != nil || !parsed.IsAbs() || parsed.Host == "" {
			return fmt.Errorf(errFmtBadURL, core.ErrInvalidRequest, param.name)
		}
	}

	return nil
}

// writeImage stores the image under an extension matching its content.
func writeImage(dir string, data []byte) (core.LocalMediaAsset, error) {
	path := filepath.Join(dir, imageBaseName+imageExtension(data))

	err := os.WriteFile(path, data, filePermission)
	if err != nil {
		return core.LocalMediaAsset{}, fmt.Errorf(errFmtWriteImage, path, err)
	}

	return core.LocalMediaAsset{
		Kind:  core.MediaKindImage,
		Path:  path,
		Bytes: data,
	}, nil
}

func imageExtension(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	default:
		return defaultImgExt
	}
}

// tail keeps at most the last limit bytes of text, starting on a rune boundary.
func tail(text string, limit int) string {
	if len(text) <= limit {
		return text
	}

	start := len(text) - limit
	for start < len(text) && !utf8.RuneStart(text[start]) {
		start++
	}

	return text[start:]
}
