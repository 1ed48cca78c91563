package diarization

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/skillsenselab/scribed/transcription"
)

// DefaultDominanceThreshold is the fraction of a segment's duration a
// single speaker turn must cover for the whole segment to be assigned to
// that speaker without splitting.
const DefaultDominanceThreshold = 0.8

// MergeConfig holds the merge policy knobs.
type MergeConfig struct {
	// DominanceThreshold is the majority-overlap fraction in (0,1].
	DominanceThreshold float64 `yaml:"dominance_threshold" mapstructure:"dominance_threshold"`
}

// ApplyDefaults sets sensible default values for unset fields.
func (c *MergeConfig) ApplyDefaults() {
	if c.DominanceThreshold <= 0 || c.DominanceThreshold > 1 {
		c.DominanceThreshold = DefaultDominanceThreshold
	}
}

// Merger fuses independently-timed transcript segments and speaker turns
// into one labeled sequence. The algorithm is deterministic: the same
// (segments, turns) pair always yields the same output.
type Merger struct {
	cfg MergeConfig
}

// NewMerger creates a merger with the given policy.
func NewMerger(cfg MergeConfig) *Merger {
	cfg.ApplyDefaults()
	return &Merger{cfg: cfg}
}

// Merge assigns speaker labels to segments using the majority-overlap
// rule, splitting segments that genuinely straddle a speaker boundary.
// The returned sequence is renumbered with contiguous ids and validated
// against the ordering/non-overlap invariant before being returned; a
// violation the merger cannot repair is an error, never a bad result.
func (m *Merger) Merge(segments []transcription.Segment, turns []Turn) ([]transcription.Segment, error) {
	sorted := make([]Turn, len(turns))
	copy(sorted, turns)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := make([]transcription.Segment, 0, len(segments))
	for _, seg := range segments {
		out = append(out, m.assign(seg, sorted, 0)...)
	}

	normalize(out)
	if err := validateOrdering(out); err != nil {
		return nil, err
	}
	return out, nil
}

// maxSplitDepth bounds recursion for pathological turn sequences; a
// segment is split at most this many times before falling back to the
// dominant speaker.
const maxSplitDepth = 8

// assign applies majority-overlap to one segment, splitting recursively
// when no speaker dominates.
func (m *Merger) assign(seg transcription.Segment, turns []Turn, depth int) []transcription.Segment {
	type overlapped struct {
		turn    Turn
		overlap float64
	}

	var hits []overlapped
	for _, t := range turns {
		o := overlap(seg.Start, seg.End, t.Start, t.End)
		if o > 0 {
			hits = append(hits, overlapped{turn: t, overlap: o})
		}
	}

	// Silence gap in diarization output: speaker stays unset.
	if len(hits) == 0 {
		seg.Speaker = ""
		return []transcription.Segment{seg}
	}

	best := hits[0]
	for _, h := range hits[1:] {
		if h.overlap > best.overlap {
			best = h
		}
	}

	duration := seg.End - seg.Start
	if len(hits) == 1 || duration <= 0 || best.overlap >= m.cfg.DominanceThreshold*duration || depth >= maxSplitDepth {
		seg.Speaker = best.turn.Speaker
		return []transcription.Segment{seg}
	}

	// The segment straddles a speaker boundary. Find the first boundary
	// between consecutive overlapping turns that falls inside the segment
	// and split there; the right-hand piece may straddle again and is
	// handled by recursion.
	split, ok := m.splitPoint(seg, hits[0].turn, hits[1].turn)
	if !ok {
		seg.Speaker = best.turn.Speaker
		return []transcription.Segment{seg}
	}

	left, right, ok := splitSegment(seg, split)
	if !ok {
		seg.Speaker = best.turn.Speaker
		return []transcription.Segment{seg}
	}

	result := m.assign(left, turns, depth+1)
	return append(result, m.assign(right, turns, depth+1)...)
}

// splitPoint computes where to cut a straddling segment: the temporal
// midpoint between the two turns' facing boundaries, snapped to the
// nearest word boundary when word timestamps exist.
func (m *Merger) splitPoint(seg transcription.Segment, first, second Turn) (float64, bool) {
	// Facing boundaries: end of the earlier turn, start of the later one.
	// For adjacent or overlapping turns the midpoint degenerates to the
	// shared boundary.
	boundary := (first.End + second.Start) / 2

	if boundary <= seg.Start || boundary >= seg.End {
		return 0, false
	}

	if len(seg.Words) < 2 {
		return boundary, true
	}

	// Snap to the word boundary (end of word i / start of word i+1)
	// nearest the turn boundary, as long as it stays inside the segment.
	bestPoint := -1.0
	bestDist := math.MaxFloat64
	for i := 0; i < len(seg.Words)-1; i++ {
		candidate := seg.Words[i].End
		if candidate <= seg.Start || candidate >= seg.End {
			continue
		}
		if d := math.Abs(candidate - boundary); d < bestDist {
			bestDist = d
			bestPoint = candidate
		}
	}
	if bestPoint < 0 {
		return boundary, true
	}
	return bestPoint, true
}

// splitSegment cuts seg at t into two pieces, dividing words by timing
// and text by word list or, without word data, proportionally by
// whitespace tokens.
func splitSegment(seg transcription.Segment, t float64) (left, right transcription.Segment, ok bool) {
	if t <= seg.Start || t >= seg.End {
		return left, right, false
	}

	left = seg
	right = seg
	left.End = t
	right.Start = t

	if len(seg.Words) > 0 {
		var leftWords, rightWords []transcription.Word
		for _, w := range seg.Words {
			if w.End <= t {
				leftWords = append(leftWords, w)
			} else {
				rightWords = append(rightWords, w)
			}
		}
		if len(leftWords) == 0 || len(rightWords) == 0 {
			return left, right, false
		}
		left.Words = leftWords
		right.Words = rightWords
		left.Text = joinWords(leftWords)
		right.Text = joinWords(rightWords)
		return left, right, true
	}

	// No word timing: divide the token list by the time fraction of the
	// left piece. Deterministic, not semantic.
	tokens := strings.Fields(seg.Text)
	if len(tokens) < 2 {
		return left, right, false
	}
	fraction := (t - seg.Start) / (seg.End - seg.Start)
	cut := int(math.Round(fraction * float64(len(tokens))))
	if cut < 1 {
		cut = 1
	}
	if cut >= len(tokens) {
		cut = len(tokens) - 1
	}
	left.Text = strings.Join(tokens[:cut], " ")
	right.Text = strings.Join(tokens[cut:], " ")
	left.Words = nil
	right.Words = nil
	return left, right, true
}

func joinWords(words []transcription.Word) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = strings.TrimSpace(w.Word)
	}
	return strings.Join(parts, " ")
}

// overlap returns the length of the intersection of [aStart,aEnd) and
// [bStart,bEnd), or 0 when they are disjoint.
func overlap(aStart, aEnd, bStart, bEnd float64) float64 {
	start := math.Max(aStart, bStart)
	end := math.Min(aEnd, bEnd)
	if end <= start {
		return 0
	}
	return end - start
}

// normalize sorts segments by start, repairs marginal overlaps
// introduced by floating-point boundary math, and renumbers ids
// contiguously.
func normalize(segments []transcription.Segment) {
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })
	for i := range segments {
		if i > 0 && segments[i].Start < segments[i-1].End {
			segments[i].Start = segments[i-1].End
		}
		segments[i].ID = i
	}
}

// validateOrdering enforces the hard postcondition: strictly ordered,
// non-overlapping, positive-length intervals with contiguous ids.
func validateOrdering(segments []transcription.Segment) error {
	for i, seg := range segments {
		if seg.ID != i {
			return fmt.Errorf("merge postcondition: segment %d has id %d", i, seg.ID)
		}
		if seg.End <= seg.Start {
			return fmt.Errorf("merge postcondition: segment %d has non-positive interval [%f,%f)", i, seg.Start, seg.End)
		}
		if i > 0 && seg.Start < segments[i-1].End {
			return fmt.Errorf("merge postcondition: segment %d overlaps its predecessor", i)
		}
	}
	return nil
}
