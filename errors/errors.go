// Package errors provides unified error handling for the speech-processing
// service. It implements structured error types with stable error codes,
// HTTP status mapping, and retryable detection. Capability-level failures
// are translated into this fixed taxonomy at the coordinator boundary;
// raw backend errors never reach callers.
package errors

import (
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error. It is never
	// serialized; internal traces stay out of status responses.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Common Error Constructors ---

// Validation creates a new AppError for a rejected submission.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeValidation, Message: message,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// UnsupportedFormat creates a new AppError for an upload with a disallowed extension.
func UnsupportedFormat(ext string, supported []string) *AppError {
	return &AppError{
		Code: ErrCodeValidation, Message: fmt.Sprintf("Unsupported file format: %s", ext),
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"extension": ext, "supported_formats": supported},
	}
}

// FileTooLarge creates a new AppError for an upload exceeding the size ceiling.
func FileTooLarge(sizeMB, maxMB float64) *AppError {
	return &AppError{
		Code: ErrCodeValidation, Message: fmt.Sprintf("File too large: %.1fMB (max %.0fMB)", sizeMB, maxMB),
		HTTPStatus: http.StatusRequestEntityTooLarge, Retryable: false,
		Details: map[string]any{"file_size_mb": sizeMB, "max_size_mb": maxMB},
	}
}

// JobNotFound creates a new AppError for an unknown job id.
func JobNotFound(id string) *AppError {
	return &AppError{
		Code: ErrCodeJobNotFound, Message: fmt.Sprintf("Job %s not found", id),
		HTTPStatus: http.StatusNotFound, Retryable: false,
		Details: map[string]any{"job_id": id},
	}
}

// InvalidState creates a new AppError for an illegal job state transition.
func InvalidState(id, from, event string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidState, Message: fmt.Sprintf("Cannot apply %s to job in state %s", event, from),
		HTTPStatus: http.StatusConflict, Retryable: false,
		Details: map[string]any{"job_id": id, "status": from, "event": event},
	}
}

// AudioProcessing creates a new AppError for a decode/resample failure.
func AudioProcessing(message string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeAudioProcessing, Message: message,
		HTTPStatus: http.StatusUnprocessableEntity, Retryable: false, Cause: cause,
	}
}

// ModelLoad creates a new AppError for a capability initialization failure.
func ModelLoad(capability, key string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeModelLoad, Message: fmt.Sprintf("Failed to load %s capability", capability),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: false, Cause: cause,
		Details: map[string]any{"capability": capability, "config_key": key},
	}
}

// Transcription creates a new AppError for a speech-recognition failure.
func Transcription(cause error) *AppError {
	return &AppError{
		Code: ErrCodeTranscription, Message: "Speech recognition failed.",
		HTTPStatus: http.StatusBadGateway, Retryable: true, Cause: cause,
	}
}

// Diarization creates a new AppError for a speaker-diarization failure.
func Diarization(cause error) *AppError {
	return &AppError{
		Code: ErrCodeDiarization, Message: "Speaker diarization failed.",
		HTTPStatus: http.StatusBadGateway, Retryable: true, Cause: cause,
	}
}

// Translation creates a new AppError for a translation failure.
func Translation(cause error) *AppError {
	return &AppError{
		Code: ErrCodeTranslation, Message: "Translation failed.",
		HTTPStatus: http.StatusBadGateway, Retryable: true, Cause: cause,
	}
}

// Canceled creates a new AppError for a cooperatively canceled job.
func Canceled() *AppError {
	return &AppError{
		Code: ErrCodeCanceled, Message: "Job was canceled.",
		HTTPStatus: http.StatusConflict, Retryable: false,
	}
}

// Internal creates a new AppError for an unexpected worker failure.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred. Please try again or contact support.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}
