package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/lipsync-service/internal/core"
	"github.com/book-expert/lipsync-service/internal/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPayload = "ID3\x03\x00fake-mp3-bytes"

func newMediaServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/audio.mp3", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET request, got %s", r.Method)
		}

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte(testPayload))
	})
	mux.HandleFunc("/missing.png", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	mux.HandleFunc("/big.png", func(w http.ResponseWriter, _ *http.Request) {
		// Chunked response, no Content-Length, so the cap is enforced while reading.
		flusher, _ := w.(http.Flusher)
		for range 4 {
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
			if flusher != nil {
				flusher.Flush()
			}
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func TestHTTPFetcher_Fetch_Success(t *testing.T) {
	t.Parallel()

	server := newMediaServer(t)
	fetcher := fetch.NewWithClient(server.Client(), fetch.Options{})

	data, err := fetcher.Fetch(context.Background(), server.URL+"/audio.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte(testPayload), data)
}

func TestHTTPFetcher_Fetch_Errors(t *testing.T) {
	t.Parallel()

	server := newMediaServer(t)

	tests := []struct {
		name    string
		opts    fetch.Options
		url     string
		wantErr error
	}{
		{
			name:    "non-success status",
			url:     server.URL + "/missing.png",
			wantErr: core.ErrFetch,
		},
		{
			name:    "relative url",
			url:     "/audio.mp3",
			wantErr: core.ErrFetch,
		},
		{
			name:    "garbage url",
			url:     "://nope",
			wantErr: core.ErrFetch,
		},
		{
			name:    "unreachable host",
			url:     "http://127.0.0.1:1/audio.mp3",
			wantErr: core.ErrFetch,
		},
		{
			name:    "host outside allow-list",
			opts:    fetch.Options{AllowedHosts: []string{"storage.googleapis.com"}},
			url:     server.URL + "/audio.mp3",
			wantErr: core.ErrHostNotAllowed,
		},
		{
			name:    "body above size cap",
			opts:    fetch.Options{MaxBytes: 100},
			url:     server.URL + "/big.png",
			wantErr: core.ErrTooLarge,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			fetcher := fetch.NewWithClient(server.Client(), testCase.opts)

			data, err := fetcher.Fetch(context.Background(), testCase.url)
			require.ErrorIs(t, err, testCase.wantErr)
			require.ErrorIs(t, err, core.ErrFetch)
			assert.Nil(t, data)
		})
	}
}

func TestHTTPFetcher_AllowList(t *testing.T) {
	t.Parallel()

	server := newMediaServer(t)

	// httptest listens on 127.0.0.1.
	exact := fetch.NewWithClient(server.Client(), fetch.Options{AllowedHosts: []string{"127.0.0.1"}})
	_, err := exact.Fetch(context.Background(), server.URL+"/audio.mp3")
	require.NoError(t, err)

	wildcard := fetch.NewWithClient(server.Client(), fetch.Options{AllowedHosts: []string{"*.googleapis.com"}})
	_, err = wildcard.Fetch(context.Background(), "https://googleapis.com.evil.test/a.mp3")
	require.ErrorIs(t, err, core.ErrHostNotAllowed)
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	t.Parallel()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(slow.Close)

	fetcher := fetch.New(fetch.Options{Timeout: 50 * time.Millisecond})

	_, err := fetcher.Fetch(context.Background(), slow.URL+"/audio.mp3")
	require.ErrorIs(t, err, core.ErrFetch)
}
