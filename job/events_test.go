package job

import (
	"testing"
	"time"

	"github.com/skillsenselab/scribed/transcription"
)

func collect(t *testing.T, ch <-chan Job, timeout time.Duration) []Job {
	t.Helper()
	var out []Job
	deadline := time.After(timeout)
	for {
		select {
		case j, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, j)
		case <-deadline:
			t.Fatalf("timed out waiting for channel close, got %d snapshots", len(out))
		}
	}
}

func TestSubscribeObservesTransitionsInOrder(t *testing.T) {
	s := newTestStore()
	j := s.Create(Options{}, "/tmp/in.wav")

	ch, cancel, err := s.Subscribe(j.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	if err := s.Start(j.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.SetProgress(j.ID, 25); err != nil {
		t.Fatal(err)
	}
	if err := s.SetProgress(j.ID, 75); err != nil {
		t.Fatal(err)
	}
	if err := s.Complete(j.ID, &transcription.Result{Text: "done"}); err != nil {
		t.Fatal(err)
	}

	got := collect(t, ch, 2*time.Second)
	if len(got) != 4 {
		t.Fatalf("got %d snapshots, want 4", len(got))
	}

	// Progress never moves backwards across the stream.
	last := -1
	for _, snap := range got {
		if snap.Progress < last {
			t.Fatalf("progress regressed: %d -> %d", last, snap.Progress)
		}
		last = snap.Progress
	}
	final := got[len(got)-1]
	if final.Status != StatusCompleted || final.Progress != 100 {
		t.Fatalf("final snapshot = %s/%d", final.Status, final.Progress)
	}
}

func TestLateSubscribeReplaysTerminalState(t *testing.T) {
	s := newTestStore()
	j := s.Create(Options{}, "/tmp/in.wav")
	if err := s.Start(j.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Complete(j.ID, &transcription.Result{Text: "done"}); err != nil {
		t.Fatal(err)
	}

	ch, cancel, err := s.Subscribe(j.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	got := collect(t, ch, 2*time.Second)
	if len(got) != 1 {
		t.Fatalf("got %d snapshots, want 1 terminal replay", len(got))
	}
	if got[0].Status != StatusCompleted {
		t.Fatalf("replayed status = %s", got[0].Status)
	}
}

func TestSlowSubscriberStillGetsTerminalSnapshot(t *testing.T) {
	s := newTestStore()
	j := s.Create(Options{}, "/tmp/in.wav")

	ch, cancel, err := s.Subscribe(j.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	if err := s.Start(j.ID); err != nil {
		t.Fatal(err)
	}
	// Overflow the subscriber buffer without draining it.
	for p := 1; p <= subscriberBuffer+20; p++ {
		if err := s.SetProgress(j.ID, p); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Complete(j.ID, &transcription.Result{}); err != nil {
		t.Fatal(err)
	}

	got := collect(t, ch, 2*time.Second)
	if len(got) == 0 {
		t.Fatal("no snapshots delivered")
	}
	final := got[len(got)-1]
	if final.Status != StatusCompleted {
		t.Fatalf("last snapshot = %s, want completed", final.Status)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	s := newTestStore()
	j := s.Create(Options{}, "/tmp/in.wav")

	ch, cancel, err := s.Subscribe(j.ID)
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	// Cancel is idempotent.
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}

	// Publishing after cancel must not panic.
	if err := s.Start(j.ID); err != nil {
		t.Fatal(err)
	}
}

func TestReporterSurface(t *testing.T) {
	s := newTestStore()
	r := NewReporter(s)
	j := s.Create(Options{}, "/tmp/in.wav")

	got, err := r.Status(j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != j.ID {
		t.Fatalf("reporter returned wrong job: %s", got.ID)
	}

	if _, _, err := r.Subscribe("missing"); err == nil {
		t.Fatal("expected error subscribing to unknown job")
	}
}
