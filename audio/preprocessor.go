package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skillsenselab/scribed/errors"
	"github.com/skillsenselab/scribed/logger"
)

// SupportedExtensions is the fixed allow-list for uploads.
var SupportedExtensions = []string{".wav", ".mp3", ".m4a", ".flac", ".ogg", ".aac", ".wma", ".mp4", ".mkv", ".webm"}

// Config holds audio preprocessing configuration.
type Config struct {
	// TargetSampleRate is the sample rate required by the recognition
	// capability, in Hz.
	TargetSampleRate int `yaml:"target_sample_rate" mapstructure:"target_sample_rate"`
	// TargetChannels is the channel count required by the recognition
	// capability.
	TargetChannels int `yaml:"target_channels" mapstructure:"target_channels"`
	// MaxUploadMB is the upload size ceiling in megabytes.
	MaxUploadMB int `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	// ChunkThreshold is the duration in seconds above which an asset is
	// split into chunks.
	ChunkThreshold float64 `yaml:"chunk_threshold" mapstructure:"chunk_threshold"`
	// ChunkWindow is the chunk length in seconds.
	ChunkWindow float64 `yaml:"chunk_window" mapstructure:"chunk_window"`
	// FFmpegBin and FFprobeBin name the decode/probe binaries, resolved
	// via PATH when not absolute.
	FFmpegBin  string `yaml:"ffmpeg_bin" mapstructure:"ffmpeg_bin"`
	FFprobeBin string `yaml:"ffprobe_bin" mapstructure:"ffprobe_bin"`
}

// ApplyDefaults sets sensible default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TargetSampleRate == 0 {
		c.TargetSampleRate = 16000
	}
	if c.TargetChannels == 0 {
		c.TargetChannels = 1
	}
	if c.MaxUploadMB == 0 {
		c.MaxUploadMB = 500
	}
	if c.ChunkThreshold == 0 {
		c.ChunkThreshold = 600
	}
	if c.ChunkWindow == 0 {
		c.ChunkWindow = 600
	}
	if c.FFmpegBin == "" {
		c.FFmpegBin = "ffmpeg"
	}
	if c.FFprobeBin == "" {
		c.FFprobeBin = "ffprobe"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.ChunkWindow < 0 || c.ChunkThreshold < 0 {
		return fmt.Errorf("audio.chunk_window and audio.chunk_threshold must be non-negative")
	}
	if c.MaxUploadMB < 0 {
		return fmt.Errorf("audio.max_upload_mb must be non-negative")
	}
	return nil
}

// ValidateUpload checks the declared filename and byte size against the
// allow-list and ceiling. It runs before any job is created; failures
// are VALIDATION_ERROR and never enter the job state machine.
func (c Config) ValidateUpload(declaredName string, size int64) error {
	ext := strings.ToLower(filepath.Ext(declaredName))
	if !extensionAllowed(ext) {
		return errors.UnsupportedFormat(ext, SupportedExtensions)
	}
	if size <= 0 {
		return errors.Validation("Empty file received")
	}
	maxBytes := int64(c.MaxUploadMB) * 1024 * 1024
	if size > maxBytes {
		return errors.FileTooLarge(float64(size)/(1024*1024), float64(c.MaxUploadMB))
	}
	return nil
}

func extensionAllowed(ext string) bool {
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Preprocessor normalizes uploads into Assets.
type Preprocessor struct {
	cfg    Config
	dir    string
	runner Runner
	log    *logger.Logger
}

// NewPreprocessor creates a preprocessor writing normalized files and
// chunks into dir.
func NewPreprocessor(cfg Config, dir string) *Preprocessor {
	cfg.ApplyDefaults()
	return &Preprocessor{
		cfg:    cfg,
		dir:    dir,
		runner: execRunner{},
		log:    logger.WithComponent("audio"),
	}
}

// WithRunner substitutes the subprocess runner. Used by tests.
func (p *Preprocessor) WithRunner(r Runner) *Preprocessor {
	p.runner = r
	return p
}

// Prepare probes, normalizes and (when long enough) chunks the input
// file, returning the Asset the job owns from here on. Decode failures
// and zero-duration input are AUDIO_PROCESSING_ERROR.
func (p *Preprocessor) Prepare(ctx context.Context, sourcePath string) (*Asset, error) {
	info, err := probe(ctx, p.runner, p.cfg.FFprobeBin, sourcePath)
	if err != nil {
		return nil, errors.AudioProcessing("Cannot decode audio file", err)
	}
	if info.Duration <= 0 {
		return nil, errors.AudioProcessing("Audio file has zero duration", nil)
	}

	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	normalized := filepath.Join(p.dir, stem+"_16k.wav")

	start := time.Now()
	_, err = p.runner.Run(ctx, p.cfg.FFmpegBin,
		"-y",
		"-i", sourcePath,
		"-ac", fmt.Sprintf("%d", p.cfg.TargetChannels),
		"-ar", fmt.Sprintf("%d", p.cfg.TargetSampleRate),
		"-vn",
		"-f", "wav",
		normalized,
	)
	if err != nil {
		return nil, errors.AudioProcessing("Failed to normalize audio", err)
	}
	p.log.Debug("Normalized audio", map[string]interface{}{
		logger.FieldPath:     normalized,
		logger.FieldDuration: time.Since(start).Milliseconds(),
	})

	asset := &Asset{
		Path:         normalized,
		SourcePath:   sourcePath,
		SourceFormat: info.FormatName,
		Duration:     info.Duration,
		SampleRate:   p.cfg.TargetSampleRate,
		Channels:     p.cfg.TargetChannels,
	}

	if info.Duration > p.cfg.ChunkThreshold {
		if err := p.chunk(ctx, asset, stem); err != nil {
			asset.Remove()
			return nil, err
		}
	}
	return asset, nil
}

// chunk slices the normalized file into non-overlapping windows. Chunk
// offsets are recorded so the coordinator can map chunk-local segment
// timestamps back onto the original timeline.
func (p *Preprocessor) chunk(ctx context.Context, asset *Asset, stem string) error {
	specs := PlanChunks(asset.Duration, p.cfg.ChunkWindow)
	for _, spec := range specs {
		path := filepath.Join(p.dir, fmt.Sprintf("%s_chunk_%03d.wav", stem, spec.Index))
		_, err := p.runner.Run(ctx, p.cfg.FFmpegBin,
			"-y",
			"-ss", fmt.Sprintf("%.3f", spec.Offset),
			"-t", fmt.Sprintf("%.3f", spec.Duration),
			"-i", asset.Path,
			"-c", "copy",
			path,
		)
		if err != nil {
			return errors.AudioProcessing(fmt.Sprintf("Failed to cut chunk %d", spec.Index), err)
		}
		asset.Chunks = append(asset.Chunks, Chunk{
			Index:    spec.Index,
			Path:     path,
			Offset:   spec.Offset,
			Duration: spec.Duration,
		})
	}
	p.log.Debug("Chunked audio", map[string]interface{}{
		"chunks": len(asset.Chunks),
	})
	return nil
}

// ChunkSpec describes one planned chunk before cutting.
type ChunkSpec struct {
	Index    int
	Offset   float64
	Duration float64
}

// PlanChunks divides duration into consecutive windows. The final chunk
// carries the remainder; a remainder under one second is folded into the
// previous chunk to avoid a degenerate tail.
func PlanChunks(duration, window float64) []ChunkSpec {
	if window <= 0 || duration <= window {
		return []ChunkSpec{{Index: 0, Offset: 0, Duration: duration}}
	}

	var specs []ChunkSpec
	offset := 0.0
	for offset < duration {
		length := window
		remaining := duration - offset
		if remaining < window {
			length = remaining
		}
		// Fold a sub-second tail into the previous chunk.
		if length < 1 && len(specs) > 0 {
			specs[len(specs)-1].Duration += length
			break
		}
		specs = append(specs, ChunkSpec{Index: len(specs), Offset: offset, Duration: length})
		offset += length
	}
	return specs
}

// CleanupOld removes files in dir older than maxAge. The scheduler's
// janitor calls this periodically for the upload and processed
// directories.
func CleanupOld(dir string, maxAge time.Duration) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	deleted := 0
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
				deleted++
			}
		}
	}
	if deleted > 0 {
		logger.Info("Cleaned up old files", map[string]interface{}{
			"dir":     dir,
			"deleted": deleted,
		})
	}
	return deleted
}
