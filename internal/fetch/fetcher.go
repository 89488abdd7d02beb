// Package fetch downloads the caller's remote media.
//
// The fetcher never writes to disk; callers decide where the bytes go.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/book-expert/lipsync-service/internal/core"
)

// Error messages.
const (
	errFmtInvalidURL     = "%w: invalid url '%s'"
	errFmtNotAbsolute    = "%w: url '%s' must be absolute"
	errFmtHostNotAllowed = "%w: '%s'"
	errFmtRequest        = "%w: failed to build request for '%s': %v"
	errFmtTransport      = "%w: request to '%s' failed: %v"
	errFmtStatus         = "%w: '%s' returned status %s"
	errFmtRead           = "%w: reading '%s' interrupted: %v"
	errFmtTooLarge       = "%w: '%s' is larger than %d bytes"
)

const headerUserAgent = "User-Agent"

const userAgent = "lipsync-service/1.0"

// Options configures the fetcher. Zero values mean "no limit".
type Options struct {
	Timeout      time.Duration
	MaxBytes     int64
	AllowedHosts []string
}

// HTTPFetcher implements core.MediaFetcher over plain HTTP(S).
type HTTPFetcher struct {
	httpClient   *http.Client
	maxBytes     int64
	allowedHosts []string
}

// New creates a fetcher with its own http.Client.
func New(opts Options) *HTTPFetcher {
	return NewWithClient(&http.Client{Timeout: opts.Timeout}, opts)
}

// NewWithClient creates a fetcher around an existing client. Tests use it to
// point at httptest servers.
func NewWithClient(client *http.Client, opts Options) *HTTPFetcher {
	hosts := make([]string, 0, len(opts.AllowedHosts))
	for _, host := range opts.AllowedHosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host != "" {
			hosts = append(hosts, host)
		}
	}

	return &HTTPFetcher{
		httpClient:   client,
		maxBytes:     opts.MaxBytes,
		allowedHosts: hosts,
	}
}

// Fetch downloads rawURL in full. Every failure wraps core.ErrFetch.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	target, err := f.validateURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf(errFmtRequest, core.ErrFetch, rawURL, err)
	}

	req.Header.Set(headerUserAgent, userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf(errFmtTransport, core.ErrFetch, rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf(errFmtStatus, core.ErrFetch, rawURL, resp.Status)
	}

	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf(errFmtTooLarge, core.ErrTooLarge, rawURL, f.maxBytes)
	}

	return f.readBody(resp.Body, rawURL)
}

func (f *HTTPFetcher) readBody(body io.Reader, rawURL string) ([]byte, error) {
	if f.maxBytes <= 0 {
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf(errFmtRead, core.ErrFetch, rawURL, err)
		}

		return data, nil
	}

	// One byte over the cap is enough to know the body is too large.
	data, err := io.ReadAll(io.LimitReader(body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf(errFmtRead, core.ErrFetch, rawURL, err)
	}

	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf(errFmtTooLarge, core.ErrTooLarge, rawURL, f.maxBytes)
	}

	return data, nil
}

func (f *HTTPFetcher) validateURL(rawURL string) (*url.URL, error) {
	target, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf(errFmtInvalidURL, core.ErrFetch, rawURL)
	}

	if !target.IsAbs() || target.Host == "" {
		return nil, fmt.Errorf(errFmtNotAbsolute, core.ErrFetch, rawURL)
	}

	if !f.hostAllowed(target.Hostname()) {
		return nil, fmt.Errorf(errFmtHostNotAllowed, core.ErrHostNotAllowed, target.Hostname())
	}

	return target, nil
}

// hostAllowed matches exact hosts and "*.suffix" wildcards.
func (f *HTTPFetcher) hostAllowed(host string) bool {
	if len(f.allowedHosts) == 0 {
		return true
	}

	host = strings.ToLower(host)

	for _, allowed := range f.allowedHosts {
		suffix, isWildcard := strings.CutPrefix(allowed, "*.")
		if isWildcard && strings.HasSuffix(host, "."+suffix) {
			return true
		}

		if host == allowed {
			return true
		}
	}

	return false
}
