// Package job holds the job model, the durable store with its state
// machine, and the progress projection served to pollers and
// subscribers.
//
// A job is mutated only by the worker executing it; the store's lock
// exists to publish consistent snapshots to any number of concurrent
// readers, never to coordinate writers.
package job

import (
	"time"

	"github.com/skillsenselab/scribed/audio"
	"github.com/skillsenselab/scribed/errors"
	"github.com/skillsenselab/scribed/transcription"
)

// Status is the job lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is legal.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Options are the caller-supplied processing parameters.
type Options struct {
	// Language is an optional source language hint (e.g. "en").
	Language string `json:"language,omitempty"`
	// ModelSize selects the recognition model.
	ModelSize string `json:"model_size"`
	// EnableDiarization requests speaker labels.
	EnableDiarization bool `json:"enable_diarization"`
	// NumSpeakers is an optional exact speaker count hint.
	NumSpeakers int `json:"num_speakers,omitempty"`
	// MinSpeakers and MaxSpeakers bound auto-detection when NumSpeakers
	// is unset.
	MinSpeakers int `json:"min_speakers,omitempty"`
	MaxSpeakers int `json:"max_speakers,omitempty"`
}

// Job is one submitted transcription request and its lifecycle state.
type Job struct {
	ID       string  `json:"job_id"`
	Status   Status  `json:"status"`
	Progress int     `json:"progress"`
	Options  Options `json:"options"`

	// Result is set iff Status is completed; Error iff failed.
	Result *transcription.Result `json:"result,omitempty"`
	Error  *errors.AppError      `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// ProcessingSeconds is the wall time between start and completion.
	ProcessingSeconds float64 `json:"processing_seconds,omitempty"`

	// SourcePath is the uploaded file; Asset is the normalized form,
	// attached by the worker after preprocessing. Neither is serialized.
	SourcePath string       `json:"-"`
	Asset      *audio.Asset `json:"-"`
}
