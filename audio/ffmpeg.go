package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"syscall"
)

// Runner executes a media tool subprocess and returns its stdout.
// It exists so tests can substitute canned tool output.
type Runner interface {
	Run(ctx context.Context, binary string, args ...string) ([]byte, error)
}

// execRunner invokes real subprocesses. The process group setup mirrors
// cooperative cancellation: when the job context is canceled the whole
// tool process tree receives SIGTERM.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w: %s", binary, err, truncate(stderr.String(), 512))
	}
	return stdout.Bytes(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// probeResult is the subset of ffprobe's JSON output we consume.
type probeResult struct {
	Duration   float64
	SampleRate int
	Channels   int
	FormatName string
}

type ffprobeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

// probe inspects a media file with ffprobe.
func probe(ctx context.Context, runner Runner, bin, path string) (*probeResult, error) {
	out, err := runner.Run(ctx, bin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, err
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	result := &probeResult{FormatName: parsed.Format.FormatName}
	if parsed.Format.Duration != "" {
		result.Duration, err = strconv.ParseFloat(parsed.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("parse duration %q: %w", parsed.Format.Duration, err)
		}
	}
	for _, s := range parsed.Streams {
		if s.CodecType == "audio" {
			result.Channels = s.Channels
			if s.SampleRate != "" {
				result.SampleRate, _ = strconv.Atoi(s.SampleRate)
			}
			break
		}
	}
	if result.Channels == 0 {
		return nil, fmt.Errorf("no audio stream in %s", path)
	}
	return result, nil
}
