package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/MimeLyc/subflow/internal/engine"
	"github.com/MimeLyc/subflow/internal/subtitle"
	"github.com/MimeLyc/subflow/internal/translator"
	"github.com/MimeLyc/subflow/pkg/log"
)

type ErrorType int

const (
	ErrUnknown ErrorType = iota
	ErrUnsupportedFormat
	ErrParse
	ErrEngine
	ErrTranslationFailed
	ErrFileNotFound
	ErrFileRead
	ErrFileWrite
	ErrValidation
	ErrConfig
	ErrCancelled
)

// JobError is the typed error a FAILED job carries
type JobError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *JobError {
	return &JobError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *JobError {
	return &JobError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *JobError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *JobError) Unwrap() error {
	return e.Cause
}

func (e *JobError) WithContext(key string, value any) *JobError {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrUnsupportedFormat:
		return "UnsupportedFormat"
	case ErrParse:
		return "Parse"
	case ErrEngine:
		return "Engine"
	case ErrTranslationFailed:
		return "TranslationFailed"
	case ErrFileNotFound:
		return "FileNotFound"
	case ErrFileRead:
		return "FileRead"
	case ErrFileWrite:
		return "FileWrite"
	case ErrValidation:
		return "Validation"
	case ErrConfig:
		return "Config"
	case ErrCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Classify maps any pipeline error onto the taxonomy. A JobError keeps its own type.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrUnknown
	}

	var jobErr *JobError
	if errors.As(err, &jobErr) && jobErr.Type != ErrUnknown {
		return jobErr.Type
	}

	var (
		unsupported *subtitle.UnsupportedFormatError
		parseErr    *subtitle.ParseError
		failed      *translator.TranslationFailed
		engErr      *engine.Error
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCancelled
	case errors.As(err, &unsupported):
		return ErrUnsupportedFormat
	case errors.As(err, &parseErr):
		return ErrParse
	case errors.As(err, &failed):
		return ErrTranslationFailed
	case errors.As(err, &engErr):
		return ErrEngine
	case errors.Is(err, fs.ErrNotExist):
		return ErrFileNotFound
	}
	return ErrUnknown
}

// Advice returns a user-facing hint for err
func Advice(err error) string {
	switch Classify(err) {
	case ErrUnsupportedFormat:
		return "Only .srt, .ass, .ssa and .vtt subtitle files can be translated"
	case ErrParse:
		return "The subtitle file is malformed; check the reported line for a missing timing line"
	case ErrEngine:
		return "Please check the API key, the model name and network connectivity of the engine"
	case ErrTranslationFailed:
		return "Both engines failed for the same batch; check engine status or try a smaller batch size"
	case ErrFileNotFound:
		return "Please check that the file path is correct and ensure the file exists with read permissions"
	case ErrFileRead:
		return "Please check file permissions to ensure read access and verify the file is not corrupted"
	case ErrFileWrite:
		return "Please ensure the output directory exists and has write permissions"
	case ErrValidation:
		return "Please verify the target language, engines and batch size of the request"
	case ErrConfig:
		return "Please check that configuration files or environment variables are set correctly"
	case ErrCancelled:
		return "The job was cancelled before it finished; no output was written"
	default:
		return "Please review detailed error information and check relevant configuration and files"
	}
}

type ErrorHandler interface {
	Handle(err error) bool
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

// Handle logs err with its advice. It reports false for errors outside the taxonomy.
func (h *DefaultErrorHandler) Handle(err error) bool {
	if Classify(err) == ErrUnknown {
		log.Error("Unknown Error: %v", err)
		return false
	}

	log.Error("Error Detail: %v\n advice: %s", err, Advice(err))
	return true
}

func IsErrorType(err error, errorType ErrorType) bool {
	return err != nil && Classify(err) == errorType
}

// WrapError tags err with errorType unless it already is a JobError
func WrapError(err error, errorType ErrorType, message string) *JobError {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr
	}
	return NewErrorWithCause(errorType, message, err)
}

// SafeExecute turns a panic in fn into an ErrUnknown JobError
func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
