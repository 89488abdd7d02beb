package core_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/book-expert/lipsync-service/internal/core"
)

func TestErrorCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "invalid request", err: fmt.Errorf("%w: mp3URL is required", core.ErrInvalidRequest), want: core.CodeInvalidRequest},
		{name: "fetch", err: fmt.Errorf("image: %w", core.ErrFetch), want: core.CodeFetchFailed},
		{name: "host not allowed", err: fmt.Errorf("audio: %w", core.ErrHostNotAllowed), want: core.CodeFetchFailed},
		{name: "too large", err: core.ErrTooLarge, want: core.CodeFetchFailed},
		{name: "decode", err: fmt.Errorf("%w: empty stream", core.ErrDecode), want: core.CodeDecodeFailed},
		{name: "upload", err: fmt.Errorf("%w: syncs/a.mp4: denied", core.ErrUpload), want: core.CodeUploadFailed},
		{name: "signing", err: core.ErrSigning, want: core.CodeSigningFailed},
		{name: "unclassified", err: errors.New("disk full"), want: core.CodeInternal},
		{name: "nil", err: nil, want: core.CodeInternal},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.want, core.ErrorCode(testCase.err))
		})
	}
}
