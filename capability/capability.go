// Package capability manages process-wide handles to model-backed
// inference capabilities (speech recognition, diarization, translation).
//
// Instances are created lazily and keyed by configuration, with
// single-flight initialization: when two workers race to first-use the
// same configuration, exactly one performs the expensive load and the
// other blocks on it and reuses the result. A failed load is cached as
// fatal so future requests for the same key short-circuit instead of
// re-attempting the load.
package capability

import "context"

// Provider is the minimal contract every capability backend implements.
type Provider interface {
	// Name returns the backend name (e.g. "whisper", "pyannote").
	Name() string

	// IsAvailable probes whether the backend can currently serve calls.
	IsAvailable(ctx context.Context) bool
}

// Factory creates a provider instance for a configuration key.
type Factory[T Provider] func(ctx context.Context, key string) (T, error)
