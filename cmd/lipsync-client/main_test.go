package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeService(t *testing.T, status int, body string) (*httptest.Server, *http.Request) {
	t.Helper()

	captured := &http.Request{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = *r.Clone(r.Context())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return server, captured
}

// TestParseFlags verifies that command-line flags are parsed correctly.
func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want appFlags
	}{
		{
			name: "defaults",
			args: nil,
			want: appFlags{service: defaultService, timeout: defaultTimeout, logDir: os.TempDir()},
		},
		{
			name: "all flags",
			args: []string{"--service", "http://svc:9000", "--mp3", "https://a/x.mp3", "--image", "https://a/i.png", "--timeout", "30s", "--health", "--log-dir", "/var/log/lipsync"},
			want: appFlags{service: "http://svc:9000", mp3: "https://a/x.mp3", image: "https://a/i.png", timeout: 30 * time.Second, health: true, logDir: "/var/log/lipsync"},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			flags, err := parseFlags(testCase.args)
			require.NoError(t, err)
			assert.Equal(t, testCase.want, flags)
		})
	}
}

// TestArgumentValidation verifies required arguments.
func TestArgumentValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{name: "missing mp3", args: []string{"--image", "https://a/i.png"}, wantErr: errMP3Required},
		{name: "missing image", args: []string{"--mp3", "https://a/x.mp3"}, wantErr: errImageRequired},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := run(append(testCase.args, "--log-dir", t.TempDir()), &bytes.Buffer{})
			require.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

func TestRun_PrintsSyncURL(t *testing.T) {
	t.Parallel()

	server, captured := newFakeService(t, http.StatusOK, `{"sync_url":"https://signed.test/syncs/a.mp4"}`)

	var out bytes.Buffer

	logDir := t.TempDir()

	err := run([]string{"--service", server.URL, "--mp3", "https://cdn/a.mp3", "--image", "https://cdn/i.png", "--log-dir", logDir}, &out)
	require.NoError(t, err)

	assert.Equal(t, "https://signed.test/syncs/a.mp4\n", out.String())
	assert.FileExists(t, filepath.Join(logDir, logFileNameDefault))
	assert.Equal(t, http.MethodPost, captured.Method)
	assert.Equal(t, "https://cdn/a.mp3", captured.URL.Query().Get("mp3URL"))
	assert.Equal(t, "https://cdn/i.png", captured.URL.Query().Get("imageURL"))
}

func TestRun_URLsVariant(t *testing.T) {
	t.Parallel()

	server, _ := newFakeService(t, http.StatusOK, `{"urls":["https://signed.test/1.mp4","https://signed.test/2.mp4"],"stdout":"","stderr":""}`)

	var out bytes.Buffer

	err := run([]string{"--service", server.URL, "--mp3", "https://cdn/a.mp3", "--image", "https://cdn/i.png", "--log-dir", t.TempDir()}, &out)
	require.NoError(t, err)
	assert.Equal(t, "https://signed.test/1.mp4\n", out.String())
}

func TestRun_ServiceError(t *testing.T) {
	t.Parallel()

	server, _ := newFakeService(t, http.StatusInternalServerError, `{"error":{"code":"FETCH_FAILED","message":"boom"}}`)

	err := run([]string{"--service", server.URL, "--mp3", "https://cdn/a.mp3", "--image", "https://cdn/i.png", "--log-dir", t.TempDir()}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "FETCH_FAILED")
}

func TestRun_Health(t *testing.T) {
	t.Parallel()

	server, captured := newFakeService(t, http.StatusOK, `{"status":"ok"}`)

	var out bytes.Buffer

	err := run([]string{"--service", server.URL, "--health", "--log-dir", t.TempDir()}, &out)
	require.NoError(t, err)
	assert.Equal(t, outServiceHealthy+"\n", out.String())
	assert.Equal(t, healthPath, captured.URL.Path)
}

func TestRun_LoggerFailure(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	err := run([]string{"--health", "--log-dir", filepath.Join(blocker, "logs")}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to initialize logger")
}
