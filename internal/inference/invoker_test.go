// Package inference_test tests the child-process invoker.
package inference_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/lipsync-service/internal/core"
	"github.com/book-expert/lipsync-service/internal/inference"
	"github.com/book-expert/lipsync-service/internal/testutil"
)

func newInvoker(t *testing.T, command []string, timeout time.Duration) *inference.Invoker {
	t.Helper()

	invoker, err := inference.New(inference.Config{
		Command: command,
		WorkDir: t.TempDir(),
		Timeout: timeout,
	}, testutil.NewLogger(t))
	require.NoError(t, err)

	return invoker
}

func outputDir(t *testing.T) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "output")
	require.NoError(t, os.MkdirAll(dir, 0o750))

	return dir
}

func TestNew_EmptyCommand(t *testing.T) {
	t.Parallel()

	_, err := inference.New(inference.Config{}, testutil.NewLogger(t))
	require.ErrorIs(t, err, inference.ErrCommandEmpty)
}

func TestInvoker_ArgumentContract(t *testing.T) {
	t.Parallel()

	invoker := newInvoker(t, []string{"python3", "inference.py"}, 0)

	args := invoker.Args("/w/image.png", "/w/audio.wav", "/w/output")
	assert.Equal(t, []string{
		"python3", "inference.py",
		"--driven_audio", "/w/audio.wav",
		"--source_image", "/w/image.png",
		"--expression_scale", "1.2",
		"--size", "512",
		"--preprocess", "full",
		"--result_dir", "/w/output",
	}, args)
}

func TestInvoker_Invoke(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus core.RunStatus
		wantExit   int
		wantVideos []string
	}{
		{
			name:       "one video produced",
			body:       testutil.StubWritesOneVideo,
			wantStatus: core.RunProduced,
			wantExit:   0,
			wantVideos: []string{"result_0001.mp4"},
		},
		{
			name:       "failure without output",
			body:       testutil.StubFailsSilently,
			wantStatus: core.RunFailed,
			wantExit:   1,
		},
		{
			name:       "clean exit without output",
			body:       testutil.StubExitsCleanEmpty,
			wantStatus: core.RunNoOutput,
			wantExit:   0,
		},
		{
			name:       "video survives a crash",
			body:       testutil.StubVideoThenCrash,
			wantStatus: core.RunProduced,
			wantExit:   2,
			wantVideos: []string{"partial.mp4"},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			invoker := newInvoker(t, testutil.WriteStub(t, testCase.body), 0)
			dir := outputDir(t)

			run, err := invoker.Invoke(context.Background(), "image.png", "audio.wav", dir)
			require.NoError(t, err)

			assert.Equal(t, testCase.wantStatus, run.Status)
			assert.Equal(t, testCase.wantExit, run.ExitCode)
			assert.Equal(t, dir, run.OutputDir)

			names := make([]string, 0, len(run.Videos))
			for _, video := range run.Videos {
				names = append(names, filepath.Base(video))
			}

			if len(testCase.wantVideos) == 0 {
				assert.Empty(t, names)
			} else {
				assert.Equal(t, testCase.wantVideos, names)
			}
		})
	}
}

func TestInvoker_CapturesBothStreams(t *testing.T) {
	t.Parallel()

	invoker := newInvoker(t, testutil.WriteStub(t, testutil.StubWritesOneVideo), 0)

	run, err := invoker.Invoke(context.Background(), "image.png", "audio.wav", outputDir(t))
	require.NoError(t, err)

	assert.Contains(t, run.Stdout, "rendering frames")
	assert.Contains(t, run.Stderr, "face detector warming up")
	assert.NotContains(t, run.Stdout, "face detector")
}

func TestInvoker_LaunchFailureIsAFailedRun(t *testing.T) {
	t.Parallel()

	invoker := newInvoker(t, []string{"/nonexistent/sadtalker"}, 0)

	run, err := invoker.Invoke(context.Background(), "image.png", "audio.wav", outputDir(t))
	require.NoError(t, err)

	assert.Equal(t, core.RunFailed, run.Status)
	assert.Equal(t, -1, run.ExitCode)
	assert.NotEmpty(t, run.Stderr)
}

func TestInvoker_TimeoutKillsProcess(t *testing.T) {
	t.Parallel()

	invoker := newInvoker(t, testutil.WriteStub(t, testutil.StubSleeps), 100*time.Millisecond)

	start := time.Now()
	run, err := invoker.Invoke(context.Background(), "image.png", "audio.wav", outputDir(t))
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Equal(t, core.RunFailed, run.Status)
}

func TestInvoker_CancelledContext(t *testing.T) {
	t.Parallel()

	invoker := newInvoker(t, testutil.WriteStub(t, testutil.StubSleeps), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	run, err := invoker.Invoke(ctx, "image.png", "audio.wav", outputDir(t))
	require.ErrorIs(t, err, inference.ErrCancelled)
	assert.Nil(t, run)
}
