package scheduler

import (
	"context"
	"fmt"
	"strings"

	"github.com/skillsenselab/scribed/audio"
	"github.com/skillsenselab/scribed/capability"
	"github.com/skillsenselab/scribed/diarization"
	"github.com/skillsenselab/scribed/errors"
	"github.com/skillsenselab/scribed/job"
	"github.com/skillsenselab/scribed/logger"
	"github.com/skillsenselab/scribed/resilience"
	"github.com/skillsenselab/scribed/transcription"
)

// DefaultModelSize is used when a job does not request a model.
const DefaultModelSize = "base"

// DiarizationKey is the registry key for the diarization capability.
// Unlike transcription there is a single diarization configuration.
const DiarizationKey = "default"

// Progress checkpoints. Transcription advances linearly from
// progressTranscribing to progressTranscribed as chunks finish.
const (
	progressPreprocessed = 10
	progressTranscribing = 15
	progressTranscribed  = 70
	progressDiarized     = 90
	progressFinalizing   = 95
)

// Coordinator drives one job through the pipeline: preprocess, transcribe
// each chunk, diarize, merge, assemble the result. It owns the retry and
// degradation policy for capability calls.
type Coordinator struct {
	store  *job.Store
	pre    *audio.Preprocessor
	asr    *capability.Registry[transcription.Provider]
	diar   *capability.Registry[diarization.Provider]
	merger *diarization.Merger
	retry  resilience.RetryConfig
	log    *logger.Logger
}

func NewCoordinator(
	store *job.Store,
	pre *audio.Preprocessor,
	asr *capability.Registry[transcription.Provider],
	diar *capability.Registry[diarization.Provider],
	merger *diarization.Merger,
) *Coordinator {
	return &Coordinator{
		store:  store,
		pre:    pre,
		asr:    asr,
		diar:   diar,
		merger: merger,
		retry:  resilience.CapabilityRetryConfig(),
		log:    logger.WithComponent("coordinator"),
	}
}

// Process runs the pipeline for one job and returns the assembled result.
// Transcription failure is fatal for the job; diarization failure degrades
// to an unattributed transcript with a warning.
func (c *Coordinator) Process(ctx context.Context, j job.Job) (*transcription.Result, error) {
	log := c.log.WithJob(j.ID)

	asset, err := c.pre.Prepare(ctx, j.SourcePath)
	if err != nil {
		return nil, c.stepError(ctx, err)
	}
	// The store owns the asset from here; it is removed with the job.
	if err := c.store.AttachAsset(j.ID, asset); err != nil {
		asset.Remove()
		return nil, err
	}
	c.progress(j.ID, progressPreprocessed)

	model := j.Options.ModelSize
	if model == "" {
		model = DefaultModelSize
	}

	segments, text, language, err := c.transcribe(ctx, j, asset, model)
	if err != nil {
		return nil, c.stepError(ctx, err)
	}
	c.progress(j.ID, progressTranscribed)

	result := &transcription.Result{
		Text:     text,
		Segments: segments,
		Language: language,
		Duration: asset.Duration,
	}

	if j.Options.EnableDiarization && len(segments) > 0 {
		merged, warning := c.diarize(ctx, j, asset, segments)
		if err := ctx.Err(); err != nil {
			return nil, errors.Canceled()
		}
		if warning != "" {
			result.Warnings = append(result.Warnings, warning)
			log.Warn("Diarization degraded", map[string]interface{}{
				"warning": warning,
			})
		} else {
			result.Segments = merged
		}
	}
	c.progress(j.ID, progressDiarized)

	if len(result.Segments) == 0 {
		// No speech detected. The result is still a success: empty
		// transcript, duration from the asset.
		result.Segments = []transcription.Segment{}
	}
	c.progress(j.ID, progressFinalizing)
	return result, nil
}

// transcribe runs every chunk through the transcription capability in
// order, offsetting timestamps back into the full-recording timeline.
func (c *Coordinator) transcribe(ctx context.Context, j job.Job, asset *audio.Asset, model string) ([]transcription.Segment, string, string, error) {
	chunks := asset.Chunks
	if len(chunks) == 0 {
		chunks = []audio.Chunk{{Index: 0, Path: asset.Path, Offset: 0, Duration: asset.Duration}}
	}

	var (
		segments []transcription.Segment
		texts    []string
		language = j.Options.Language
	)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, "", "", errors.Canceled()
		}

		req := transcription.Request{
			AudioPath:      chunk.Path,
			Language:       language,
			Model:          model,
			WordTimestamps: true,
		}
		resp, err := resilience.Retry(ctx, c.retry, func() (*transcription.Response, error) {
			provider, release, err := c.asr.Acquire(ctx, model)
			if err != nil {
				return nil, err
			}
			defer release()
			return provider.Transcribe(ctx, req)
		})
		if err != nil {
			return nil, "", "", err
		}

		for _, seg := range resp.Segments {
			seg.ID = len(segments)
			seg.Start += chunk.Offset
			seg.End += chunk.Offset
			for w := range seg.Words {
				seg.Words[w].Start += chunk.Offset
				seg.Words[w].End += chunk.Offset
			}
			segments = append(segments, seg)
		}
		if t := strings.TrimSpace(resp.Text); t != "" {
			texts = append(texts, t)
		}
		// Language detection from the first chunk pins later chunks, so
		// a multilingual recording cannot flip language mid-transcript.
		if language == "" && resp.Language != "" {
			language = resp.Language
		}

		c.progress(j.ID, progressTranscribing+(i+1)*(progressTranscribed-progressTranscribing)/len(chunks))
	}

	return segments, strings.Join(texts, " "), language, nil
}

// diarize attributes speakers to segments. On failure it returns the
// warning recorded on the result; the job still completes.
func (c *Coordinator) diarize(ctx context.Context, j job.Job, asset *audio.Asset, segments []transcription.Segment) ([]transcription.Segment, string) {
	req := diarization.Request{
		AudioPath:   asset.Path,
		NumSpeakers: j.Options.NumSpeakers,
		MinSpeakers: j.Options.MinSpeakers,
		MaxSpeakers: j.Options.MaxSpeakers,
	}
	resp, err := resilience.Retry(ctx, c.retry, func() (*diarization.Response, error) {
		provider, release, err := c.diar.Acquire(ctx, DiarizationKey)
		if err != nil {
			return nil, err
		}
		defer release()
		return provider.Diarize(ctx, req)
	})
	if err != nil {
		return nil, fmt.Sprintf("speaker diarization unavailable: %s", errSummary(err))
	}

	merged, err := c.merger.Merge(segments, resp.Turns)
	if err != nil {
		return nil, fmt.Sprintf("speaker attribution discarded: %s", errSummary(err))
	}
	return merged, ""
}

// stepError maps a cancellation observed mid-pipeline to CANCELED so the
// job records the right terminal cause.
func (c *Coordinator) stepError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Canceled()
	}
	return err
}

func (c *Coordinator) progress(id string, pct int) {
	if err := c.store.SetProgress(id, pct); err != nil {
		c.log.Debug("Progress update dropped", map[string]interface{}{
			logger.FieldJobID: id,
			logger.FieldError: err.Error(),
		})
	}
}

func errSummary(err error) string {
	if appErr, ok := errors.AsAppError(err); ok {
		return appErr.Message
	}
	return err.Error()
}
