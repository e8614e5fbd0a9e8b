package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MimeLyc/subflow/internal/engine"
	"github.com/MimeLyc/subflow/internal/subtitle"
	"github.com/MimeLyc/subflow/internal/translator"
)

func TestClassify(t *testing.T) {
	engErr := &engine.Error{Kind: engine.KindCompletion, Cause: errors.New("HTTP 502")}

	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"unsupported", &subtitle.UnsupportedFormatError{Ext: ".txt"}, ErrUnsupportedFormat},
		{"parse", fmt.Errorf("read: %w", &subtitle.ParseError{Format: subtitle.FormatSRT, Line: 3, Reason: "x"}), ErrParse},
		{"engine", engErr, ErrEngine},
		{"translation failed", &translator.TranslationFailed{BatchIndex: 2, Primary: engErr, Fallback: engErr}, ErrTranslationFailed},
		{"not found", fmt.Errorf("open: %w", fs.ErrNotExist), ErrFileNotFound},
		{"cancelled", fmt.Errorf("translate: %w", context.Canceled), ErrCancelled},
		{"job error", NewError(ErrFileWrite, "disk full"), ErrFileWrite},
		{"wrapped job error keeps its cause type", NewErrorWithCause(ErrUnknown, "x", engErr), ErrEngine},
		{"plain", errors.New("boom"), ErrUnknown},
		{"nil", nil, ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
			assert.NotEmpty(t, Advice(tt.err))
		})
	}
}

func TestJobError_Error(t *testing.T) {
	err := NewErrorWithCause(ErrFileWrite, "write output", errors.New("disk full")).WithContext("path", "/out.srt")
	assert.Equal(t, "[FileWrite] write output | context: path=/out.srt | cause: disk full", err.Error())
	assert.True(t, IsErrorType(err, ErrFileWrite))
	assert.False(t, IsErrorType(nil, ErrFileWrite))
}

func TestWrapError_KeepsExistingJobError(t *testing.T) {
	inner := NewError(ErrParse, "bad block")
	wrapped := WrapError(fmt.Errorf("outer: %w", inner), ErrUnknown, "ignored")
	assert.Same(t, inner, wrapped)
}

func TestSafeExecute(t *testing.T) {
	err := SafeExecute(func() error { panic("nil map") })
	assert.Equal(t, ErrUnknown, Classify(err))
	assert.Contains(t, err.Error(), "runtime error: nil map")

	assert.NoError(t, SafeExecute(func() error { return nil }))
}

func TestDefaultErrorHandler(t *testing.T) {
	h := NewDefaultErrorHandler()
	assert.True(t, h.Handle(&subtitle.UnsupportedFormatError{Ext: ".doc"}))
	assert.False(t, h.Handle(errors.New("who knows")))
}
