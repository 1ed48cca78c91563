// Package audio validates uploaded media and normalizes it into the
// canonical form the inference capabilities consume: mono 16 kHz WAV,
// chunked when the input exceeds a duration threshold.
package audio

import (
	"os"

	"github.com/skillsenselab/scribed/logger"
)

// Asset is a normalized audio file owned by a job for its lifetime.
type Asset struct {
	// Path is the normalized WAV file consumed by capabilities.
	Path string `json:"path"`
	// SourcePath is the original uploaded file.
	SourcePath string `json:"source_path"`
	// SourceFormat is the container/codec name reported by the prober.
	SourceFormat string `json:"source_format"`
	// Duration is the audio length in seconds.
	Duration float64 `json:"duration"`
	// SampleRate is the normalized sample rate in Hz.
	SampleRate int `json:"sample_rate"`
	// Channels is the normalized channel count.
	Channels int `json:"channels"`
	// Chunks is the ordered chunk sequence. Empty means the asset is
	// consumed whole.
	Chunks []Chunk `json:"chunks,omitempty"`
}

// Chunk is one slice of a long asset. Offset maps chunk-local timestamps
// back onto the original file's timeline.
type Chunk struct {
	Index    int     `json:"index"`
	Path     string  `json:"path"`
	Offset   float64 `json:"offset"`
	Duration float64 `json:"duration"`
}

// Remove deletes the asset's files from disk. Missing files are ignored;
// other removal failures are logged and swallowed, cleanup is best
// effort.
func (a *Asset) Remove() {
	paths := []string{a.Path, a.SourcePath}
	for _, c := range a.Chunks {
		paths = append(paths, c.Path)
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove asset file", map[string]interface{}{
				logger.FieldPath:  p,
				logger.FieldError: err.Error(),
			})
		}
	}
}
