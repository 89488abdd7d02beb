package core

import "time"

// SynthesisRequest is the caller's input for one lip-sync job.
type SynthesisRequest struct {
	AudioURL string `json:"mp3URL"`
	ImageURL string `json:"imageURL"`
}

// MediaKind tells image assets from audio assets.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindAudio MediaKind = "audio"
)

// LocalMediaAsset is a fetched (and for audio, normalized) file on local disk.
// An audio asset always holds WAV bytes, never the fetched MP3.
type LocalMediaAsset struct {
	Kind  MediaKind
	Path  string
	Bytes []byte
}

// RunStatus classifies how an inference run ended.
type RunStatus string

const (
	// RunProduced means at least one video was written, whatever the exit code.
	RunProduced RunStatus = "produced"
	// RunFailed means no video and a non-zero exit or a launch failure.
	RunFailed RunStatus = "failed"
	// RunNoOutput means no video although the program exited cleanly.
	RunNoOutput RunStatus = "no_output"
)

// InferenceRun records one execution of the inference program.
type InferenceRun struct {
	Args      []string
	ExitCode  int
	Stdout    string
	Stderr    string
	OutputDir string
	Videos    []string
	Status    RunStatus
	Duration  time.Duration
}

// ResultArtifact is a published video.
type ResultArtifact struct {
	LocalPath string
	RemoteKey string
	SignedURL string
	ExpiresAt time.Time
}

// SynthesisResponse is what the orchestrator hands back to a transport.
type SynthesisResponse struct {
	SyncURL  string
	URLs     []string
	Stdout   string
	Stderr   string
	Fallback bool
}
