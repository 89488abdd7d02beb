package core

import (
	"errors"
	"fmt"
)

// Pipeline error taxonomy. Stages wrap these with context; transports
// classify with errors.Is.
var (
	// ErrInvalidRequest indicates missing or malformed request parameters.
	ErrInvalidRequest = errors.New("invalid synthesis request")
	// ErrFetch indicates that remote media could not be retrieved.
	ErrFetch = errors.New("media fetch failed")
	// ErrHostNotAllowed indicates a URL whose host is outside the allow-list.
	ErrHostNotAllowed = fmt.Errorf("%w: host not allowed", ErrFetch)
	// ErrTooLarge indicates a remote resource above the configured size cap.
	ErrTooLarge = fmt.Errorf("%w: resource exceeds size limit", ErrFetch)
	// ErrDecode indicates malformed, empty or mismatched audio.
	ErrDecode = errors.New("audio decode failed")
	// ErrUpload indicates an object storage write failure.
	ErrUpload = errors.New("object upload failed")
	// ErrSigning indicates a signed URL could not be minted.
	ErrSigning = errors.New("signed url generation failed")
)

// Error codes reported to callers.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeFetchFailed    = "FETCH_FAILED"
	CodeDecodeFailed   = "DECODE_FAILED"
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeSigningFailed  = "SIGNING_FAILED"
	CodeInternal       = "INTERNAL_ERROR"
)

// ErrorCode classifies err into one of the caller-facing codes.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrFetch):
		return CodeFetchFailed
	case errors.Is(err, ErrDecode):
		return CodeDecodeFailed
	case errors.Is(err, ErrUpload):
		return CodeUploadFailed
	case errors.Is(err, ErrSigning):
		return CodeSigningFailed
	default:
		return CodeInternal
	}
}
