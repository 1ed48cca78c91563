package export

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/skillsenselab/scribed/transcription"
)

func sampleResult() *transcription.Result {
	return &transcription.Result{
		Text:     "Hello there. General Kenobi.",
		Language: "en",
		Duration: 8.5,
		Segments: []transcription.Segment{
			{ID: 0, Text: "Hello there.", Start: 0.25, End: 2.5, Confidence: 0.95, Speaker: "SPEAKER_00"},
			{ID: 1, Text: "General Kenobi.", Start: 3.0, End: 5.75, Confidence: 0.9, Speaker: "SPEAKER_01"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"txt", FormatTXT, false},
		{"JSON", FormatJSON, false},
		{" srt ", FormatSRT, false},
		{"pdf", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseFormat(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormat(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseFormat(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestRenderTXTWithSpeakers(t *testing.T) {
	out, err := Render(FormatTXT, sampleResult(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := "[SPEAKER_00]: Hello there.\n\n[SPEAKER_01]: General Kenobi."
	if string(out) != want {
		t.Fatalf("txt = %q, want %q", out, want)
	}
}

func TestRenderTXTWithoutSpeakers(t *testing.T) {
	result := sampleResult()
	for i := range result.Segments {
		result.Segments[i].Speaker = ""
	}
	out, err := Render(FormatTXT, result, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := "Hello there.\n\nGeneral Kenobi."
	if string(out) != want {
		t.Fatalf("txt = %q, want %q", out, want)
	}
}

func TestRenderTXTDisplayNames(t *testing.T) {
	names := map[string]string{"SPEAKER_00": "Obi-Wan"}
	out, err := Render(FormatTXT, sampleResult(), names)
	if err != nil {
		t.Fatal(err)
	}
	got := string(out)
	if !strings.Contains(got, "[Obi-Wan]: Hello there.") {
		t.Fatalf("mapped speaker missing: %q", got)
	}
	// Unmapped speakers keep their raw label.
	if !strings.Contains(got, "[SPEAKER_01]: General Kenobi.") {
		t.Fatalf("unmapped speaker missing: %q", got)
	}
}

func TestRenderJSON(t *testing.T) {
	names := map[string]string{"SPEAKER_00": "Obi-Wan"}
	out, err := Render(FormatJSON, sampleResult(), names)
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		Text         string                  `json:"text"`
		Segments     []transcription.Segment `json:"segments"`
		Duration     float64                 `json:"duration"`
		SpeakerNames map[string]string       `json:"speaker_names"`
	}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Text != "Hello there. General Kenobi." {
		t.Fatalf("text = %q", decoded.Text)
	}
	if len(decoded.Segments) != 2 {
		t.Fatalf("segments = %d", len(decoded.Segments))
	}
	if decoded.SpeakerNames["SPEAKER_00"] != "Obi-Wan" {
		t.Fatalf("speaker_names = %v", decoded.SpeakerNames)
	}
}

func TestRenderSRT(t *testing.T) {
	out, err := Render(FormatSRT, sampleResult(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"1",
		"00:00:00,250 --> 00:00:02,500",
		"[SPEAKER_00] Hello there.",
		"",
		"2",
		"00:00:03,000 --> 00:00:05,750",
		"[SPEAKER_01] General Kenobi.",
	}, "\n")
	if string(out) != want {
		t.Fatalf("srt =\n%q\nwant\n%q", out, want)
	}
}

func TestSRTTimestampRollover(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{59.999, "00:00:59,999"},
		{61.5, "00:01:01,500"},
		{3661.25, "01:01:01,250"},
		{-1, "00:00:00,000"},
	}
	for _, tc := range cases {
		if got := srtTimestamp(tc.seconds); got != tc.want {
			t.Errorf("srtTimestamp(%f) = %s, want %s", tc.seconds, got, tc.want)
		}
	}
}

func TestRenderEmptyResult(t *testing.T) {
	empty := &transcription.Result{Segments: []transcription.Segment{}, Duration: 12}
	for _, f := range Formats {
		out, err := Render(f, empty, nil)
		if err != nil {
			t.Fatalf("Render(%s, empty): %v", f, err)
		}
		if f == FormatJSON {
			var m map[string]interface{}
			if err := json.Unmarshal(out, &m); err != nil {
				t.Fatalf("empty JSON invalid: %v", err)
			}
		}
	}
}
