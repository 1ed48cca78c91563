// Package export renders completed transcription results into the
// supported download formats. Renderers are pure functions of the result.
package export

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skillsenselab/scribed/errors"
	"github.com/skillsenselab/scribed/transcription"
)

// Format identifies an export renderer.
type Format string

const (
	FormatTXT  Format = "txt"
	FormatJSON Format = "json"
	FormatSRT  Format = "srt"
)

// Formats lists the supported export formats.
var Formats = []Format{FormatTXT, FormatJSON, FormatSRT}

// ParseFormat validates a user-supplied format string.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", errors.Validation(fmt.Sprintf("Unsupported export format %q (supported: txt, json, srt)", s))
}

// ContentType returns the MIME type for a format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Render produces the serialized export. speakerNames optionally maps
// speaker labels (e.g. "SPEAKER_00") to display names; it affects the
// JSON payload and the speaker prefixes in TXT and SRT.
func Render(f Format, result *transcription.Result, speakerNames map[string]string) ([]byte, error) {
	switch f {
	case FormatTXT:
		return renderTXT(result, speakerNames), nil
	case FormatJSON:
		return renderJSON(result, speakerNames)
	case FormatSRT:
		return renderSRT(result, speakerNames), nil
	default:
		return nil, errors.Validation(fmt.Sprintf("Unsupported export format %q", f))
	}
}

// renderTXT joins segments with blank lines. Attributed segments are
// prefixed "[speaker]: ", unattributed segments are bare text.
func renderTXT(result *transcription.Result, speakerNames map[string]string) []byte {
	lines := make([]string, 0, len(result.Segments))
	for _, seg := range result.Segments {
		text := strings.TrimSpace(seg.Text)
		if name := displayName(seg.Speaker, speakerNames); name != "" {
			lines = append(lines, fmt.Sprintf("[%s]: %s", name, text))
		} else {
			lines = append(lines, text)
		}
	}
	return []byte(strings.Join(lines, "\n\n"))
}

// jsonExport is the JSON payload: the full result plus the optional
// speaker display-name mapping.
type jsonExport struct {
	*transcription.Result
	SpeakerNames map[string]string `json:"speaker_names,omitempty"`
}

func renderJSON(result *transcription.Result, speakerNames map[string]string) ([]byte, error) {
	out, err := json.MarshalIndent(jsonExport{Result: result, SpeakerNames: speakerNames}, "", "  ")
	if err != nil {
		return nil, errors.Internal(err)
	}
	return out, nil
}

// renderSRT emits one 1-indexed cue per segment.
func renderSRT(result *transcription.Result, speakerNames map[string]string) []byte {
	var b strings.Builder
	for i, seg := range result.Segments {
		text := strings.TrimSpace(seg.Text)
		if name := displayName(seg.Speaker, speakerNames); name != "" {
			text = fmt.Sprintf("[%s] %s", name, text)
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, srtTimestamp(seg.Start), srtTimestamp(seg.End), text)
	}
	return []byte(strings.TrimRight(b.String(), "\n"))
}

// srtTimestamp formats seconds as HH:MM:SS,mmm.
func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds*1000 + 0.5)
	h := ms / 3600000
	m := (ms % 3600000) / 60000
	s := (ms % 60000) / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

func displayName(speaker string, names map[string]string) string {
	if speaker == "" {
		return ""
	}
	if name, ok := names[speaker]; ok && name != "" {
		return name
	}
	return speaker
}
