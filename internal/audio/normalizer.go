// Package audio converts fetched audio into the PCM WAV the inference program reads.
package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"github.com/book-expert/lipsync-service/internal/core"
)

// Format represents supported audio formats.
type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
)

// go-mp3 always yields 16-bit little-endian stereo.
const (
	mp3BitDepth     = 16
	mp3Channels     = 2
	mp3BytesPerSamp = 2
)

const (
	wavFormatPCM   = 1
	wavFileName    = "audio.wav"
	filePermission = 0o600
)

// Error messages.
const (
	errFmtEmptyInput   = "%w: empty %s input"
	errFmtUnsupported  = "%w: unsupported source format '%s'"
	errFmtMismatch     = "%w: declared %s but content looks like %s"
	errFmtMP3Decode    = "%w: mp3 decode: %v"
	errFmtWAVDecode    = "%w: wav decode: %v"
	errFmtInvalidWAV   = "%w: not a valid wav stream"
	errFmtNoSamples    = "%w: stream decoded to zero samples"
	errFmtEncode       = "failed to encode wav: %w"
	errFmtWriteAsset   = "failed to write audio asset '%s': %w"
	errFmtCancelled    = "audio normalization cancelled: %w"
	formatUnrecognized = "unrecognized data"
)

// pcm is a decoded stream ready to be re-encoded.
type pcm struct {
	samples    []int
	sampleRate int
	channels   int
	bitDepth   int
}

// Normalizer implements core.AudioNormalizer.
type Normalizer struct{}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize decodes compressed fully into memory and re-encodes it as PCM WAV
// at the decoder's native sample rate and channel count. Every input goes
// through the decoder, including input that is already WAV.
func (n *Normalizer) Normalize(ctx context.Context, compressed []byte, sourceFormat string) ([]byte, error) {
	format := Format(strings.ToLower(strings.TrimSpace(sourceFormat)))

	if len(compressed) == 0 {
		return nil, fmt.Errorf(errFmtEmptyInput, core.ErrDecode, format)
	}

	detected := Detect(compressed)

	var (
		decoded *pcm
		err     error
	)

	switch format {
	case FormatMP3:
		if detected != FormatMP3 {
			return nil, fmt.Errorf(errFmtMismatch, core.ErrDecode, format, describe(detected))
		}

		decoded, err = decodeMP3(compressed)
	case FormatWAV:
		if detected != FormatWAV {
			return nil, fmt.Errorf(errFmtMismatch, core.ErrDecode, format, describe(detected))
		}

		decoded, err = decodeWAV(compressed)
	default:
		return nil, fmt.Errorf(errFmtUnsupported, core.ErrDecode, sourceFormat)
	}

	if err != nil {
		return nil, err
	}

	ctxErr := ctx.Err()
	if ctxErr != nil {
		return nil, fmt.Errorf(errFmtCancelled, ctxErr)
	}

	return encodeWAV(decoded)
}

// WriteWAV stores normalized audio in dir under the one name the pipeline
// reads. It is the only writer of that path.
func WriteWAV(dir string, wavBytes []byte) (core.LocalMediaAsset, error) {
	path := filepath.Join(dir, wavFileName)

	err := os.WriteFile(path, wavBytes, filePermission)
	if err != nil {
		return core.LocalMediaAsset{}, fmt.Errorf(errFmtWriteAsset, path, err)
	}

	return core.LocalMediaAsset{
		Kind:  core.MediaKindAudio,
		Path:  path,
		Bytes: wavBytes,
	}, nil
}

// Detect sniffs the container from magic bytes. It returns "" when unsure.
func Detect(data []byte) Format {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return FormatWAV
	}

	if len(data) >= 3 && string(data[0:3]) == "ID3" {
		return FormatMP3
	}

	// MPEG audio frame sync: eleven set bits.
	if len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return FormatMP3
	}

	return ""
}

func describe(format Format) string {
	if format == "" {
		return formatUnrecognized
	}

	return string(format)
}

func decodeMP3(data []byte) (*pcm, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf(errFmtMP3Decode, core.ErrDecode, err)
	}

	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf(errFmtMP3Decode, core.ErrDecode, err)
	}

	if len(raw) < mp3BytesPerSamp {
		return nil, fmt.Errorf(errFmtNoSamples, core.ErrDecode)
	}

	samples := make([]int, len(raw)/mp3BytesPerSamp)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(raw[i*mp3BytesPerSamp:])))
	}

	return &pcm{
		samples:    samples,
		sampleRate: decoder.SampleRate(),
		channels:   mp3Channels,
		bitDepth:   mp3BitDepth,
	}, nil
}

func decodeWAV(data []byte) (*pcm, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf(errFmtInvalidWAV, core.ErrDecode)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf(errFmtWAVDecode, core.ErrDecode, err)
	}

	if buf == nil || len(buf.Data) == 0 {
		return nil, fmt.Errorf(errFmtNoSamples, core.ErrDecode)
	}

	return &pcm{
		samples:    buf.Data,
		sampleRate: int(decoder.SampleRate),
		channels:   int(decoder.NumChans),
		bitDepth:   int(decoder.BitDepth),
	}, nil
}

func encodeWAV(decoded *pcm) ([]byte, error) {
	out := &writeSeeker{}

	encoder := wav.NewEncoder(out, decoded.sampleRate, decoded.bitDepth, decoded.channels, wavFormatPCM)

	err := encoder.Write(&goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: decoded.channels,
			SampleRate:  decoded.sampleRate,
		},
		Data:           decoded.samples,
		SourceBitDepth: decoded.bitDepth,
	})
	if err != nil {
		return nil, fmt.Errorf(errFmtEncode, err)
	}

	err = encoder.Close()
	if err != nil {
		return nil, fmt.Errorf(errFmtEncode, err)
	}

	return out.Bytes(), nil
}
