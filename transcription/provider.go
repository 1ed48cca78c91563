// Package transcription defines the speech-recognition provider interface
// and common types for interacting with speech-to-text backends.
package transcription

import (
	"context"

	"github.com/skillsenselab/scribed/capability"
)

// Provider is the interface that transcription backends must implement.
type Provider interface {
	capability.Provider // embeds Name() and IsAvailable()

	// Transcribe sends audio for transcription and returns the result.
	Transcribe(ctx context.Context, req Request) (*Response, error)
}
