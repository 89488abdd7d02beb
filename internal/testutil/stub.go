// Package testutil holds helpers shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
)

// stubPreamble pulls the paths out of the argument list into $dir, $audio and $image.
const stubPreamble = `#!/bin/sh
dir=""
audio=""
image=""
while [ $# -gt 0 ]; do
  case "$1" in
    --result_dir) dir="$2"; shift ;;
    --driven_audio) audio="$2"; shift ;;
    --source_image) image="$2"; shift ;;
  esac
  shift
done
`

// Stub bodies for common scenarios.
const (
	StubWritesOneVideo = `echo "rendering frames"
echo "face detector warming up" >&2
printf 'fake-mp4' > "$dir/result_0001.mp4"
printf 'ignored' > "$dir/result_0001.txt"
`
	StubWritesTwoVideos = `printf 'a' > "$dir/a.mp4"
printf 'b' > "$dir/b.mp4"
`
	StubFailsSilently = `echo "CUDA out of memory" >&2
exit 1
`
	StubExitsCleanEmpty = `echo "nothing to do"
`
	StubVideoThenCrash = `printf 'partial' > "$dir/partial.mp4"
echo "segfault in renderer" >&2
exit 2
`
	StubSleeps = `exec sleep 5
`
	// StubReportsInputs prints the audio magic and the image file name, then writes a video.
	StubReportsInputs = `printf 'audio-magic=%s\n' "$(head -c 4 "$audio")"
printf 'image-name=%s\n' "$(basename "$image")"
printf 'v' > "$dir/result.mp4"
`
)

// WriteStub writes an inference stand-in script and returns the command that runs it.
func WriteStub(t *testing.T, body string) []string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "inference.sh")

	err := os.WriteFile(path, []byte(stubPreamble+body), 0o600)
	if err != nil {
		t.Fatalf("failed to write inference stub: %v", err)
	}

	return []string{"/bin/sh", path}
}

// NewLogger creates a file logger inside the test's temp dir.
func NewLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}

	t.Cleanup(func() { _ = log.Close() })

	return log
}
