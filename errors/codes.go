package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Submission errors. These are rejected before a job exists and never
// enter the job state machine.
const (
	// ErrCodeValidation indicates a rejected upload (bad extension, size, options).
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	// ErrCodeJobNotFound indicates the requested job does not exist.
	ErrCodeJobNotFound ErrorCode = "JOB_NOT_FOUND"
	// ErrCodeInvalidState indicates an illegal job state transition.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
)

// Pipeline errors. These fail (or degrade) a running job.
const (
	// ErrCodeAudioProcessing indicates a decode/resample/chunk failure.
	ErrCodeAudioProcessing ErrorCode = "AUDIO_PROCESSING_ERROR"
	// ErrCodeModelLoad indicates a capability failed to initialize. Fatal,
	// never retried, and cached so future loads of the same configuration
	// short-circuit.
	ErrCodeModelLoad ErrorCode = "MODEL_LOAD_ERROR"
	// ErrCodeTranscription indicates the speech-recognition capability failed.
	ErrCodeTranscription ErrorCode = "TRANSCRIPTION_ERROR"
	// ErrCodeDiarization indicates the diarization capability failed.
	ErrCodeDiarization ErrorCode = "DIARIZATION_ERROR"
	// ErrCodeTranslation indicates the translation capability failed.
	ErrCodeTranslation ErrorCode = "TRANSLATION_ERROR"
	// ErrCodeCanceled indicates cooperative cancellation was observed.
	ErrCodeCanceled ErrorCode = "CANCELED"
	// ErrCodeInternal indicates an unexpected worker failure.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// retryableCodes marks codes eligible for the coordinator's single retry.
// Capability call failures are presumed transient once; everything else is
// terminal on first occurrence.
var retryableCodes = map[ErrorCode]bool{
	ErrCodeTranscription: true,
	ErrCodeDiarization:   true,
	ErrCodeTranslation:   true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
