// Package inference launches the external lip-sync program.
package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/lipsync-service/internal/core"
)

// Compiled-in generation parameters.
const (
	ExpressionScale = "1.2"
	Size            = "512"
	Preprocess      = "full"
)

// Flag names of the inference program.
const (
	flagDrivenAudio     = "--driven_audio"
	flagSourceImage     = "--source_image"
	flagExpressionScale = "--expression_scale"
	flagSize            = "--size"
	flagPreprocess      = "--preprocess"
	flagResultDir       = "--result_dir"
)

// launchFailedExitCode marks a run whose process never started or was killed.
const launchFailedExitCode = -1

// pipeWaitDelay caps how long a killed run may hold its output pipes open
// through grandchildren.
const pipeWaitDelay = 5 * time.Second

var (
	// ErrCommandEmpty indicates that no program was configured.
	ErrCommandEmpty = errors.New("inference command cannot be empty")
	// ErrCancelled indicates the caller gave up while the program was running.
	ErrCancelled = errors.New("inference cancelled")
)

// Log messages.
const (
	logFmtLaunching = "Launching inference: %v"
	logFmtFinished  = "Inference finished: status=%s exit=%d videos=%d duration=%s"
	logFmtStderr    = "Inference stderr: %s"
	logFmtTimedOut  = "Inference exceeded %s and was killed"
)

// Config describes how the program is launched.
type Config struct {
	// Command is the executable followed by its fixed leading arguments,
	// e.g. ["python3", "inference.py"].
	Command []string
	// WorkDir is the directory the program runs in.
	WorkDir string
	// Timeout bounds one run; zero means no bound.
	Timeout time.Duration
}

// Invoker implements core.InferenceInvoker by running the program as a child process.
type Invoker struct {
	config Config
	log    *logger.Logger
}

// New creates a new Invoker.
func New(cfg Config, log *logger.Logger) (*Invoker, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, ErrCommandEmpty
	}

	return &Invoker{
		config: cfg,
		log:    log,
	}, nil
}

// Args returns the full argument vector for one run, program first.
func (i *Invoker) Args(imagePath, audioPath, outputDir string) []string {
	args := make([]string, 0, len(i.config.Command)+12)
	args = append(args, i.config.Command...)

	return append(args,
		flagDrivenAudio, audioPath,
		flagSourceImage, imagePath,
		flagExpressionScale, ExpressionScale,
		flagSize, Size,
		flagPreprocess, Preprocess,
		flagResultDir, outputDir,
	)
}

// Invoke runs the program to completion and reports what it left in
// outputDir. A non-zero exit is recorded, not returned as an error; only a
// cancelled ctx is.
func (i *Invoker) Invoke(ctx context.Context, imagePath, audioPath, outputDir string) (*core.InferenceRun, error) {
	args := i.Args(imagePath, audioPath, outputDir)

	runCtx := ctx
	if i.config.Timeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, i.config.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer

	// #nosec G204 -- the program comes from static configuration, paths are ours
	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = i.config.WorkDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = pipeWaitDelay

	i.log.Info(logFmtLaunching, args)

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}

	exitCode := 0
	if runErr != nil {
		exitCode = exitCodeOf(runErr)

		if exitCode == launchFailedExitCode {
			stderr.WriteString(runErr.Error())
		}
	}

	if runCtx.Err() != nil {
		i.log.Warn(logFmtTimedOut, i.config.Timeout)
	}

	videos, err := core.ListVideos(outputDir)
	if err != nil {
		return nil, err
	}

	run := &core.InferenceRun{
		Args:      args,
		ExitCode:  exitCode,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		OutputDir: outputDir,
		Videos:    videos,
		Status:    classify(exitCode, len(videos)),
		Duration:  elapsed,
	}

	i.log.Info(logFmtFinished, run.Status, run.ExitCode, len(run.Videos), run.Duration)

	if run.Status == core.RunFailed && run.Stderr != "" {
		i.log.Warn(logFmtStderr, run.Stderr)
	}

	return run, nil
}

func exitCodeOf(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return launchFailedExitCode
}

func classify(exitCode, videos int) core.RunStatus {
	switch {
	case videos > 0:
		return core.RunProduced
	case exitCode != 0:
		return core.RunFailed
	default:
		return core.RunNoOutput
	}
}
