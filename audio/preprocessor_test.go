package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/skillsenselab/scribed/errors"
)

func TestValidateUpload(t *testing.T) {
	cfg := Config{MaxUploadMB: 10}
	cfg.ApplyDefaults()

	tests := []struct {
		name     string
		filename string
		size     int64
		wantCode errors.ErrorCode
	}{
		{"valid wav", "meeting.wav", 1024, ""},
		{"valid mp3 uppercase", "Interview.MP3", 1024, ""},
		{"unsupported extension", "notes.txt", 1024, errors.ErrCodeValidation},
		{"no extension", "audiofile", 1024, errors.ErrCodeValidation},
		{"empty file", "meeting.wav", 0, errors.ErrCodeValidation},
		{"too large", "meeting.wav", 11 * 1024 * 1024, errors.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cfg.ValidateUpload(tt.filename, tt.size)
			if tt.wantCode == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected an error")
			}
			if errors.CodeOf(err) != tt.wantCode {
				t.Errorf("code = %s, want %s", errors.CodeOf(err), tt.wantCode)
			}
		})
	}
}

func TestPlanChunks(t *testing.T) {
	tests := []struct {
		name      string
		duration  float64
		window    float64
		wantCount int
	}{
		{"shorter than window", 300, 600, 1},
		{"exactly one window", 600, 600, 1},
		{"two windows", 1200, 600, 2},
		{"two windows plus tail", 1450, 600, 3},
		{"sub-second tail folds", 1200.5, 600, 2},
		{"zero window", 100, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			specs := PlanChunks(tt.duration, tt.window)
			if len(specs) != tt.wantCount {
				t.Fatalf("chunks = %d, want %d", len(specs), tt.wantCount)
			}

			// Offsets form a contiguous cover of the full duration.
			total := 0.0
			for i, s := range specs {
				if s.Index != i {
					t.Errorf("chunk %d has index %d", i, s.Index)
				}
				if math.Abs(s.Offset-total) > 1e-9 {
					t.Errorf("chunk %d offset = %f, want %f", i, s.Offset, total)
				}
				total += s.Duration
			}
			if math.Abs(total-tt.duration) > 1e-9 {
				t.Errorf("chunks cover %f, want %f", total, tt.duration)
			}
		})
	}
}

// fakeRunner replays canned tool output keyed by the binary name.
type fakeRunner struct {
	probeJSON string
	probeErr  error
	ffmpegErr error
	calls     []string
}

func (f *fakeRunner) Run(_ context.Context, binary string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, binary+" "+strings.Join(args, " "))
	if strings.Contains(binary, "ffprobe") {
		if f.probeErr != nil {
			return nil, f.probeErr
		}
		return []byte(f.probeJSON), nil
	}
	if f.ffmpegErr != nil {
		return nil, f.ffmpegErr
	}
	// Touch the output file so Remove has something to clean up.
	out := args[len(args)-1]
	_ = os.WriteFile(out, []byte("riff"), 0o644)
	return nil, nil
}

func probeJSON(duration float64) string {
	return fmt.Sprintf(`{
		"format": {"duration": "%f", "format_name": "mp3"},
		"streams": [{"codec_type": "audio", "sample_rate": "44100", "channels": 2}]
	}`, duration)
}

func TestPrepare_Normalizes(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{probeJSON: probeJSON(120)}
	p := NewPreprocessor(Config{}, dir).WithRunner(runner)

	asset, err := p.Prepare(context.Background(), filepath.Join(dir, "input.mp3"))
	if err != nil {
		t.Fatal(err)
	}

	if asset.Duration != 120 {
		t.Errorf("duration = %f, want 120", asset.Duration)
	}
	if asset.SampleRate != 16000 || asset.Channels != 1 {
		t.Errorf("normalization target = %d Hz / %d ch", asset.SampleRate, asset.Channels)
	}
	if asset.SourceFormat != "mp3" {
		t.Errorf("source format = %q", asset.SourceFormat)
	}
	if len(asset.Chunks) != 0 {
		t.Errorf("short input must not be chunked, got %d chunks", len(asset.Chunks))
	}
}

func TestPrepare_ChunksLongInput(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{probeJSON: probeJSON(1500)}
	p := NewPreprocessor(Config{ChunkThreshold: 600, ChunkWindow: 600}, dir).WithRunner(runner)

	asset, err := p.Prepare(context.Background(), filepath.Join(dir, "long.mp3"))
	if err != nil {
		t.Fatal(err)
	}

	if len(asset.Chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(asset.Chunks))
	}
	if asset.Chunks[1].Offset != 600 || asset.Chunks[2].Offset != 1200 {
		t.Errorf("offsets = %f, %f", asset.Chunks[1].Offset, asset.Chunks[2].Offset)
	}
	if asset.Chunks[2].Duration != 300 {
		t.Errorf("tail duration = %f, want 300", asset.Chunks[2].Duration)
	}
}

func TestPrepare_DecodeFailure(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{probeErr: fmt.Errorf("moov atom not found")}
	p := NewPreprocessor(Config{}, dir).WithRunner(runner)

	_, err := p.Prepare(context.Background(), filepath.Join(dir, "broken.m4a"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.CodeOf(err) != errors.ErrCodeAudioProcessing {
		t.Errorf("code = %s, want AUDIO_PROCESSING_ERROR", errors.CodeOf(err))
	}
}

func TestPrepare_ZeroDuration(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{probeJSON: probeJSON(0)}
	p := NewPreprocessor(Config{}, dir).WithRunner(runner)

	_, err := p.Prepare(context.Background(), filepath.Join(dir, "silent.wav"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.CodeOf(err) != errors.ErrCodeAudioProcessing {
		t.Errorf("code = %s, want AUDIO_PROCESSING_ERROR", errors.CodeOf(err))
	}
}

func TestCleanupOld(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.wav")
	fresh := filepath.Join(dir, "fresh.wav")
	if err := os.WriteFile(old, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fresh, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	stale := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatal(err)
	}

	deleted := CleanupOld(dir, 24*time.Hour)
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old file should be gone")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh file should remain")
	}
}
