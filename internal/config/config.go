// Package config provides the configuration structure for the lipsync-service.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Storage backends.
const (
	BackendGCS  = "gcs"
	BackendNATS = "nats"
)

// Response variants.
const (
	VariantSyncURL = "sync_url"
	VariantURLs    = "urls"
)

// Defaults applied to zero-valued fields.
const (
	defaultAddress             = ":8080"
	defaultReadTimeoutSeconds  = 30
	defaultWriteTimeoutSeconds = 900
	defaultFetchTimeoutSeconds = 60
	defaultSignedURLTTLSeconds = 3600
	defaultKeyPrefix           = "syncs/"
	defaultSynthesisSubject    = "lipsync.synthesize"
	defaultResultsBucket       = "LIPSYNC_RESULTS"
	defaultPrivateBucket       = "storm-user-private"
	defaultPublicBucket        = "storm-user-data"
	defaultFallbackURL         = "https://storage.googleapis.com/storm-user-data/fallback_sync.mp4"
	defaultWorkspaceRoot       = "/tmp/lipsync"
)

var (
	// ErrUnknownBackend indicates a storage backend other than gcs or nats.
	ErrUnknownBackend = errors.New("unknown storage backend")
	// ErrUnknownVariant indicates a response variant other than sync_url or urls.
	ErrUnknownVariant = errors.New("unknown response variant")
	// ErrCommandEmpty indicates that no inference command was configured.
	ErrCommandEmpty = errors.New("inference command cannot be empty")
	// ErrBucketEmpty indicates that the public bucket is missing.
	ErrBucketEmpty = errors.New("public bucket cannot be empty")
	// ErrMediaSecretEmpty indicates the nats backend has no token secret.
	ErrMediaSecretEmpty = errors.New("media token secret cannot be empty for the nats backend")
	// ErrNATSURLEmpty indicates the nats backend was picked without a server.
	ErrNATSURLEmpty = errors.New("nats url cannot be empty for the nats backend")
	// ErrFallbackEmpty indicates that no placeholder URL was configured.
	ErrFallbackEmpty = errors.New("fallback url cannot be empty")
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Address             string `toml:"address"`
	PublicBaseURL       string `toml:"public_base_url"`
	ReadTimeoutSeconds  int    `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `toml:"write_timeout_seconds"`
}

// FetcherConfig bounds remote media downloads.
type FetcherConfig struct {
	TimeoutSeconds int      `toml:"timeout_seconds"`
	MaxBytes       int64    `toml:"max_bytes"`
	AllowedHosts   []string `toml:"allowed_hosts"`
}

// InferenceConfig describes how to launch the lip-sync program.
type InferenceConfig struct {
	Command        []string `toml:"command"`
	WorkDir        string   `toml:"work_dir"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// StorageConfig holds the object storage settings.
type StorageConfig struct {
	Backend             string `toml:"backend"`
	PrivateBucket       string `toml:"private_bucket"`
	PublicBucket        string `toml:"public_bucket"`
	KeyPrefix           string `toml:"key_prefix"`
	SignedURLTTLSeconds int    `toml:"signed_url_ttl_seconds"`
	CredentialsFile     string `toml:"credentials_file"`
	SigningEmail        string `toml:"signing_email"`
	SigningPrivateKey   string `toml:"signing_private_key"`
	MediaTokenSecret    string `toml:"media_token_secret"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL               string `toml:"url"`
	SynthesisSubject  string `toml:"synthesis_subject"`
	ObjectStoreBucket string `toml:"object_store_bucket"`
}

// ResponseConfig picks the HTTP response shape.
type ResponseConfig struct {
	Variant     string `toml:"variant"`
	FallbackURL string `toml:"fallback_url"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir   string `toml:"base_logs_dir"`
	WorkspaceRoot string `toml:"workspace_root"`
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Fetcher   FetcherConfig   `toml:"fetcher"`
	Inference InferenceConfig `toml:"inference"`
	Storage   StorageConfig   `toml:"storage"`
	NATS      NATSConfig      `toml:"nats"`
	Response  ResponseConfig  `toml:"response"`
	Paths     PathsConfig     `toml:"paths"`
}

// Load loads the configuration for the lipsync-service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finalize(&cfg)
}

// Parse decodes a TOML document, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	err := toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	return finalize(&cfg)
}

func finalize(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyDefaults fills every zero-valued setting that has a sensible default.
func (c *Config) ApplyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = defaultAddress
	}

	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = defaultReadTimeoutSeconds
	}

	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = defaultWriteTimeoutSeconds
	}

	if c.Fetcher.TimeoutSeconds == 0 {
		c.Fetcher.TimeoutSeconds = defaultFetchTimeoutSeconds
	}

	if len(c.Inference.Command) == 0 {
		c.Inference.Command = []string{"python3", "inference.py"}
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendGCS
	}

	if c.Storage.PrivateBucket == "" {
		c.Storage.PrivateBucket = defaultPrivateBucket
	}

	if c.Storage.PublicBucket == "" {
		c.Storage.PublicBucket = defaultPublicBucket
	}

	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = defaultKeyPrefix
	}

	if c.Storage.SignedURLTTLSeconds == 0 {
		c.Storage.SignedURLTTLSeconds = defaultSignedURLTTLSeconds
	}

	if c.NATS.SynthesisSubject == "" {
		c.NATS.SynthesisSubject = defaultSynthesisSubject
	}

	if c.NATS.ObjectStoreBucket == "" {
		c.NATS.ObjectStoreBucket = defaultResultsBucket
	}

	if c.Response.Variant == "" {
		c.Response.Variant = VariantSyncURL
	}

	if c.Response.FallbackURL == "" {
		c.Response.FallbackURL = defaultFallbackURL
	}

	if c.Paths.WorkspaceRoot == "" {
		c.Paths.WorkspaceRoot = defaultWorkspaceRoot
	}
}

// Validate reports the first setting that makes the service unusable.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendGCS:
		if c.Storage.PublicBucket == "" {
			return ErrBucketEmpty
		}
	case BackendNATS:
		if c.NATS.URL == "" {
			return ErrNATSURLEmpty
		}

		if c.Storage.MediaTokenSecret == "" {
			return ErrMediaSecretEmpty
		}
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownBackend, c.Storage.Backend)
	}

	if c.Response.Variant != VariantSyncURL && c.Response.Variant != VariantURLs {
		return fmt.Errorf("%w: '%s'", ErrUnknownVariant, c.Response.Variant)
	}

	if len(c.Inference.Command) == 0 || c.Inference.Command[0] == "" {
		return ErrCommandEmpty
	}

	if c.Response.FallbackURL == "" {
		return ErrFallbackEmpty
	}

	return nil
}

// SignedURLTTL returns the signed URL lifetime.
func (c *Config) SignedURLTTL() time.Duration {
	return time.Duration(c.Storage.SignedURLTTLSeconds) * time.Second
}

// FetchTimeout returns the per-download timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetcher.TimeoutSeconds) * time.Second
}

// InferenceTimeout returns the child process bound, zero meaning unbounded.
func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.Inference.TimeoutSeconds) * time.Second
}
