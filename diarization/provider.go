// Package diarization defines the speaker-diarization provider interface
// and the merge algorithm that fuses speaker turns with transcript
// segments.
package diarization

import (
	"context"

	"github.com/skillsenselab/scribed/capability"
)

// Provider is the interface that diarization backends must implement.
type Provider interface {
	capability.Provider // embeds Name() and IsAvailable()

	// Diarize sends audio for speaker diarization and returns the result.
	Diarize(ctx context.Context, req Request) (*Response, error)
}
