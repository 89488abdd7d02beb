// main package for the lipsync-client, a command-line caller of the lipsync service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/book-expert/logger"
)

// Flag descriptions.
const (
	flagServiceDesc = "Base URL of the lipsync service"
	flagMP3Desc     = "URL of the MP3 that drives the lips"
	flagImageDesc   = "URL of the face image"
	flagTimeoutDesc = "How long to wait for the video"
	flagHealthDesc  = "Check service health and exit"
	flagLogDirDesc  = "Directory for the client log file"
)

// Flag names.
const (
	flagService = "service"
	flagMP3     = "mp3"
	flagImage   = "image"
	flagTimeout = "timeout"
	flagHealth  = "health"
	flagLogDir  = "log-dir"
)

// Defaults.
const (
	defaultService = "http://localhost:8080"
	defaultTimeout = 15 * time.Minute
	healthPath     = "/healthz"
	errorBodyLimit = 4096
)

// File names and paths.
const (
	logFileNameDefault = "lipsync-client.log"
)

// Error and output messages.
const (
	errFmtStatus          = "service answered %d: %s"
	errFmtDecode          = "failed to decode response: %w"
	errFmtRequest         = "request failed: %w"
	errFmtBadService      = "invalid --service %q: %w"
	errFmtNoURL           = "service answered without a url: %s"
	errFailedToInitLogger = "Failed to initialize logger: %w"
	outServiceHealthy     = "lipsync service is healthy"
)

// Log messages.
const (
	logClientInitialized = "lipsync client initialized (service: %s)"
	logRequesting        = "Requesting lip-sync: mp3=%s image=%s"
	logReceived          = "Received video url: %s"
	logHealthFailed      = "Health check failed: %v"
	logSynthesisFailed   = "Synthesis request failed: %v"
)

var (
	errMP3Required   = errors.New("--mp3 must be provided")
	errImageRequired = errors.New("--image must be provided")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	service string
	mp3     string
	image   string
	timeout time.Duration
	health  bool
	logDir  string
}

// syncResponse mirrors both response shapes of the service.
type syncResponse struct {
	SyncURL string   `json:"sync_url"`
	URLs    []string `json:"urls"`
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

// run is the main application entry point, returning an error on failure.
func run(args []string, stdout io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	clientLog, err := logger.New(flags.logDir, logFileNameDefault)
	if err != nil {
		return fmt.Errorf(errFailedToInitLogger, err)
	}
	defer func() { _ = clientLog.Close() }()

	clientLog.Info(logClientInitialized, flags.service)

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	client := &http.Client{Timeout: flags.timeout}

	if flags.health {
		err = checkHealth(ctx, client, flags.service, stdout)
		if err != nil {
			clientLog.Error(logHealthFailed, err)
		}

		return err
	}

	err = validate(flags)
	if err != nil {
		clientLog.Error(logSynthesisFailed, err)

		return err
	}

	clientLog.Info(logRequesting, flags.mp3, flags.image)

	syncURL, err := synthesize(ctx, client, flags)
	if err != nil {
		clientLog.Error(logSynthesisFailed, err)

		return err
	}

	clientLog.Info(logReceived, syncURL)
	_, _ = fmt.Fprintln(stdout, syncURL)

	return nil
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	set := flag.NewFlagSet("lipsync-client", flag.ContinueOnError)
	set.StringVar(&flags.service, flagService, defaultService, flagServiceDesc)
	set.StringVar(&flags.mp3, flagMP3, "", flagMP3Desc)
	set.StringVar(&flags.image, flagImage, "", flagImageDesc)
	set.DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)
	set.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	set.StringVar(&flags.logDir, flagLogDir, os.TempDir(), flagLogDirDesc)

	err := set.Parse(args)
	if err != nil {
		return flags, err
	}

	return flags, nil
}

func validate(flags appFlags) error {
	if flags.mp3 == "" {
		return errMP3Required
	}

	if flags.image == "" {
		return errImageRequired
	}

	return nil
}

// synthesize POSTs the two URLs as query parameters and returns the result URL.
func synthesize(ctx context.Context, client *http.Client, flags appFlags) (string, error) {
	target, err := url.Parse(strings.TrimRight(flags.service, "/") + "/")
	if err != nil {
		return "", fmt.Errorf(errFmtBadService, flags.service, err)
	}

	query := target.Query()
	query.Set("mp3URL", flags.mp3)
	query.Set("imageURL", flags.image)
	target.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), nil)
	if err != nil {
		return "", fmt.Errorf(errFmtRequest, err)
	}

	body, err := do(client, req)
	if err != nil {
		return "", err
	}

	var decoded syncResponse

	err = json.Unmarshal(body, &decoded)
	if err != nil {
		return "", fmt.Errorf(errFmtDecode, err)
	}

	if decoded.SyncURL == "" && len(decoded.URLs) > 0 {
		decoded.SyncURL = decoded.URLs[0]
	}

	if decoded.SyncURL == "" {
		return "", fmt.Errorf(errFmtNoURL, strings.TrimSpace(string(body)))
	}

	return decoded.SyncURL, nil
}

// checkHealth performs a service health check and prints the result.
func checkHealth(ctx context.Context, client *http.Client, service string, stdout io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(service, "/")+healthPath, nil)
	if err != nil {
		return fmt.Errorf(errFmtRequest, err)
	}

	_, err = do(client, req)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(stdout, outServiceHealthy)

	return nil
}

func do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf(errFmtRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf(errFmtRequest, err)
	}

	if resp.StatusCode != http.StatusOK {
		if len(body) > errorBodyLimit {
			body = body[:errorBodyLimit]
		}

		return nil, fmt.Errorf(errFmtStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}
