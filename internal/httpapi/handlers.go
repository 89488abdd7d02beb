package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/book-expert/lipsync-service/internal/core"
	"github.com/book-expert/lipsync-service/internal/objectstore"
)

// Request parameter names.
const (
	ParamAudioURL = "mp3URL"
	ParamImageURL = "imageURL"
)

const (
	maxRequestBody   = 1 << 20
	contentTypeJSON  = "application/json"
	contentTypeVideo = "video/mp4"
	codeForbidden    = "FORBIDDEN"
	codeNotFound     = "NOT_FOUND"
	statusOK         = "ok"
)

const (
	logFmtSynthesisFailed = "[%s] Synthesis failed (%s): %v"
	logFmtMediaDenied     = "[%s] Media token rejected for %s: %v"
	logFmtMediaMissing    = "[%s] Media object %s unavailable: %v"
)

var errBadBody = errors.New("request body is not valid JSON")

type handlers struct {
	deps Deps
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: statusOK})
}

// synthesize accepts mp3URL and imageURL as query parameters, form fields or
// a JSON object. Query parameters win over the body.
func (h *handlers) synthesize(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		writeErr(w, http.StatusBadRequest, core.CodeInvalidRequest, err.Error(), nil)

		return
	}

	resp, err := h.deps.Synthesizer.Synthesize(r.Context(), req)
	if err != nil {
		code := core.ErrorCode(err)
		h.deps.Log.Error(logFmtSynthesisFailed, middleware.GetReqID(r.Context()), code, err)
		writeErr(w, statusFor(code), code, err.Error(), nil)

		return
	}

	if h.deps.Variant == VariantURLs {
		writeJSON(w, http.StatusOK, URLsResponse{
			URLs:   resp.URLs,
			Stdout: resp.Stdout,
			Stderr: resp.Stderr,
		})

		return
	}

	writeJSON(w, http.StatusOK, SyncURLResponse{SyncURL: resp.SyncURL})
}

// media streams an object after checking its token.
func (h *handlers) media(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetReqID(r.Context())
	key := chi.URLParam(r, "*")
	token := r.URL.Query().Get(objectstore.MediaTokenParam)

	err := h.deps.Media.Verifier.Verify(key, token)
	if err != nil {
		h.deps.Log.Warn(logFmtMediaDenied, id, key, err)
		writeErr(w, http.StatusForbidden, codeForbidden, "media link is invalid or expired", nil)

		return
	}

	data, err := h.deps.Media.Source.Download(r.Context(), key)
	if err != nil {
		h.deps.Log.Warn(logFmtMediaMissing, id, key, err)
		writeErr(w, http.StatusNotFound, codeNotFound, "media not found", nil)

		return
	}

	w.Header().Set("Content-Type", contentTypeVideo)
	http.ServeContent(w, r, path.Base(key), time.Time{}, bytes.NewReader(data))
}

func parseRequest(r *http.Request) (core.SynthesisRequest, error) {
	var req core.SynthesisRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == contentTypeJSON {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			return req, errBadBody
		}

		if len(bytes.TrimSpace(body)) > 0 {
			err = json.Unmarshal(body, &req)
			if err != nil {
				return req, errBadBody
			}
		}
	} else {
		r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBody)

		err := r.ParseForm()
		if err != nil {
			return req, err
		}

		req.AudioURL = r.PostForm.Get(ParamAudioURL)
		req.ImageURL = r.PostForm.Get(ParamImageURL)
	}

	query := r.URL.Query()
	if value := query.Get(ParamAudioURL); value != "" {
		req.AudioURL = value
	}

	if value := query.Get(ParamImageURL); value != "" {
		req.ImageURL = value
	}

	return req, nil
}

func statusFor(code string) int {
	if code == core.CodeInvalidRequest {
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}
