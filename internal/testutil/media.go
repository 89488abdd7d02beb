package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// Media server paths.
const (
	PathAudio   = "/clip.mp3"
	PathImage   = "/face.png"
	PathMissing = "/missing.png"
)

// SilentMP3 builds MPEG-1 Layer III frames (128 kbps, 44.1 kHz, stereo) whose
// side info and main data are all zero, which decodes to silence.
func SilentMP3(frames int) []byte {
	const frameSize = 417

	var out bytes.Buffer

	for range frames {
		frame := make([]byte, frameSize)
		frame[0] = 0xFF
		frame[1] = 0xFB
		frame[2] = 0x90
		frame[3] = 0x00
		out.Write(frame)
	}

	return out.Bytes()
}

// PNG encodes a size x size grey square.
func PNG(t *testing.T, size int) []byte {
	t.Helper()

	img := image.NewGray(image.Rect(0, 0, size, size))
	for x := range size {
		for y := range size {
			img.SetGray(x, y, color.Gray{Y: 128})
		}
	}

	var out bytes.Buffer

	err := png.Encode(&out, img)
	if err != nil {
		t.Fatalf("failed to encode png fixture: %v", err)
	}

	return out.Bytes()
}

// MediaServer serves an MP3 and a PNG and counts requests.
type MediaServer struct {
	*httptest.Server

	Hits atomic.Int64
}

// NewMediaServer starts a server for the media fixtures, closed on cleanup.
func NewMediaServer(t *testing.T) *MediaServer {
	t.Helper()

	audio := SilentMP3(40)
	img := PNG(t, 16)
	media := &MediaServer{}

	mux := http.NewServeMux()
	mux.HandleFunc(PathAudio, func(w http.ResponseWriter, _ *http.Request) {
		media.Hits.Add(1)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(audio)
	})
	mux.HandleFunc(PathImage, func(w http.ResponseWriter, _ *http.Request) {
		media.Hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
	})
	mux.HandleFunc(PathMissing, func(w http.ResponseWriter, r *http.Request) {
		media.Hits.Add(1)
		http.NotFound(w, r)
	})

	media.Server = httptest.NewServer(mux)
	t.Cleanup(media.Close)

	return media
}

// AudioURL returns the URL of the MP3 fixture.
func (m *MediaServer) AudioURL() string {
	return m.URL + PathAudio
}

// ImageURL returns the URL of the PNG fixture.
func (m *MediaServer) ImageURL() string {
	return m.URL + PathImage
}

// MissingURL returns a URL that answers 404.
func (m *MediaServer) MissingURL() string {
	return m.URL + PathMissing
}
