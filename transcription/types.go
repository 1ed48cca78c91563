package transcription

// Request holds parameters for a transcription call.
type Request struct {
	// AudioPath is the path to the audio file to transcribe.
	AudioPath string `json:"audio_path"`
	// Language is the expected language of the audio (e.g. "en").
	// Empty means auto-detect.
	Language string `json:"language,omitempty"`
	// Model is the transcription model size to use.
	Model string `json:"model,omitempty"`
	// WordTimestamps requests word-level timing in the response.
	WordTimestamps bool `json:"word_timestamps,omitempty"`
}

// Response holds the result of a transcription call.
type Response struct {
	// Text is the full transcription text.
	Text string `json:"text"`
	// Segments contains time-aligned transcript segments, ordered by start.
	Segments []Segment `json:"segments,omitempty"`
	// Duration is the audio duration in seconds.
	Duration float64 `json:"duration,omitempty"`
	// Language is the detected or specified language.
	Language string `json:"language,omitempty"`
}

// Segment represents a time-aligned portion of a transcript.
type Segment struct {
	// ID is the sequence index, contiguous across a job.
	ID int `json:"id"`
	// Text is the transcribed text for this segment.
	Text string `json:"text"`
	// Start is the segment start time in seconds.
	Start float64 `json:"start"`
	// End is the segment end time in seconds. Always > Start.
	End float64 `json:"end"`
	// Confidence is the recognition confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// Speaker is the speaker label assigned by diarization, if any.
	Speaker string `json:"speaker,omitempty"`
	// Words are word-level timestamps nested within the segment interval.
	Words []Word `json:"words,omitempty"`
}

// Word is an individual word with timing.
type Word struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Result is a complete transcription attached to a finished job.
// It is immutable once attached.
type Result struct {
	// Text is the concatenation of segment texts.
	Text string `json:"text"`
	// Segments is strictly ordered by start and non-overlapping.
	Segments []Segment `json:"segments"`
	// Language is the detected or declared language.
	Language string `json:"language"`
	// Duration is the total audio duration in seconds.
	Duration float64 `json:"duration"`
	// Warnings carries non-fatal degradations (e.g. diarization skipped).
	Warnings []string `json:"warnings,omitempty"`
}
