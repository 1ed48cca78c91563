package job

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skillsenselab/scribed/audio"
	"github.com/skillsenselab/scribed/errors"
	"github.com/skillsenselab/scribed/logger"
	"github.com/skillsenselab/scribed/transcription"
)

// Store is the in-memory job record with atomic state transitions.
// Every read returns a value snapshot; a poller never observes a
// partially-updated job. Events are published to the hub inside the
// store lock, so subscribers see transitions in commit order.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	hub  *Hub
	log  *logger.Logger
}

// NewStore creates an empty store publishing transitions to hub.
// A nil hub disables event publication.
func NewStore(hub *Hub) *Store {
	return &Store{
		jobs: make(map[string]*Job),
		hub:  hub,
		log:  logger.WithComponent("jobstore"),
	}
}

// Create registers a new pending job and returns its snapshot.
func (s *Store) Create(opts Options, sourcePath string) Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	j := &Job{
		ID:         uuid.NewString(),
		Status:     StatusPending,
		Progress:   0,
		Options:    opts,
		CreatedAt:  time.Now().UTC(),
		SourcePath: sourcePath,
	}
	s.jobs[j.ID] = j

	s.log.Info("Created job", map[string]interface{}{
		logger.FieldJobID: j.ID,
		"model_size":      opts.ModelSize,
		"diarization":     opts.EnableDiarization,
	})
	return *j
}

// Get returns a snapshot of the job.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, errors.JobNotFound(id)
	}
	return *j, nil
}

// Start transitions pending -> processing.
func (s *Store) Start(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return errors.JobNotFound(id)
	}
	if j.Status != StatusPending {
		return errors.InvalidState(id, string(j.Status), "start")
	}

	now := time.Now().UTC()
	j.Status = StatusProcessing
	j.StartedAt = &now
	s.publish(j)
	return nil
}

// SetProgress records progress for a processing job. Values lower than
// the last recorded one are dropped without error, enforcing
// monotonicity; values outside [0,100] are clamped.
func (s *Store) SetProgress(id string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return errors.JobNotFound(id)
	}
	if j.Status != StatusProcessing {
		return errors.InvalidState(id, string(j.Status), "progress")
	}

	if progress > 100 {
		progress = 100
	}
	if progress <= j.Progress {
		return nil
	}
	j.Progress = progress
	s.publish(j)
	return nil
}

// Complete transitions processing -> completed and attaches the result.
func (s *Store) Complete(id string, result *transcription.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return errors.JobNotFound(id)
	}
	if j.Status != StatusProcessing {
		return errors.InvalidState(id, string(j.Status), "complete")
	}

	s.finish(j)
	j.Status = StatusCompleted
	j.Progress = 100
	j.Result = result
	s.publish(j)

	s.log.Info("Job completed", map[string]interface{}{
		logger.FieldJobID: id,
		"segments":        len(result.Segments),
		"duration_s":      result.Duration,
	})
	return nil
}

// Fail transitions processing -> failed and attaches the error.
func (s *Store) Fail(id string, jobErr *errors.AppError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return errors.JobNotFound(id)
	}
	if j.Status != StatusProcessing {
		return errors.InvalidState(id, string(j.Status), "fail")
	}

	s.finish(j)
	j.Status = StatusFailed
	j.Error = jobErr
	s.publish(j)

	s.log.Warn("Job failed", map[string]interface{}{
		logger.FieldJobID: id,
		"code":            string(jobErr.Code),
		logger.FieldError: jobErr.Message,
	})
	return nil
}

// AttachAsset records the normalized asset on the job. Called by the
// owning worker after preprocessing.
func (s *Store) AttachAsset(id string, asset *audio.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return errors.JobNotFound(id)
	}
	j.Asset = asset
	return nil
}

// Delete removes a terminal job and releases its audio asset.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return errors.JobNotFound(id)
	}
	if !j.Status.Terminal() {
		s.mu.Unlock()
		return errors.InvalidState(id, string(j.Status), "delete")
	}
	delete(s.jobs, id)
	asset := j.Asset
	s.mu.Unlock()

	if asset != nil {
		asset.Remove()
	}
	s.log.Info("Deleted job", map[string]interface{}{
		logger.FieldJobID: id,
	})
	return nil
}

// Processing returns snapshots of all jobs currently in processing.
// Used by the stuck-job reconciler.
func (s *Store) Processing() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Job
	for _, j := range s.jobs {
		if j.Status == StatusProcessing {
			out = append(out, *j)
		}
	}
	return out
}

// finish stamps completion time and processing duration.
func (s *Store) finish(j *Job) {
	now := time.Now().UTC()
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.ProcessingSeconds = now.Sub(*j.StartedAt).Seconds()
	}
}

// publish emits the current state to subscribers. Caller holds s.mu.
func (s *Store) publish(j *Job) {
	if s.hub != nil {
		s.hub.Publish(*j)
	}
}

// Subscribe registers for snapshots of one job's transitions. The
// returned cancel function must be called when done. Subscribing to a
// job already in a terminal state replays the terminal snapshot
// immediately, preserving at-least-once terminal delivery.
func (s *Store) Subscribe(id string) (<-chan Job, func(), error) {
	s.mu.RLock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.RUnlock()
		return nil, nil, errors.JobNotFound(id)
	}
	snapshot := *j
	ch, cancel := s.hub.subscribe(id)
	s.mu.RUnlock()

	if snapshot.Status.Terminal() {
		s.hub.replay(id, snapshot)
	}
	return ch, cancel, nil
}
