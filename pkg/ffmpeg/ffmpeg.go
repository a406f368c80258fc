package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

var ErrNoVideoStream = errors.New("no video stream")

// ProbeResult is the subset of ffprobe output the pipeline validates uploads with.
type ProbeResult struct {
	Duration   time.Duration
	Width      int
	Height     int
	CodecName  string
	FormatName string
}

type FFProbe struct {
	pathToBinary string
}

func NewFFProbe(pathToBinary string) *FFProbe {
	if pathToBinary == "" {
		pathToBinary = "ffprobe"
	}
	return &FFProbe{pathToBinary: pathToBinary}
}

// Available reports whether the binary can be found.
func (f *FFProbe) Available() bool {
	_, err := exec.LookPath(f.pathToBinary)
	return err == nil
}

func (f *FFProbe) Probe(ctx context.Context, inputFile string) (*ProbeResult, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "format=duration,format_name:stream=width,height,codec_name",
		"-of", "json",
		inputFile,
	}
	output, err := f.Exec(ctx, args)
	if err != nil {
		return nil, err
	}
	return ParseProbe(output)
}

func (f *FFProbe) Exec(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, f.pathToBinary, args...)

	var stderr []byte
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			stderr = exitErr.Stderr
		}
		return nil, fmt.Errorf("ffprobe command failed: %w, output: %s", err, string(stderr))
	}
	return output, nil
}

type probeOutput struct {
	Streams []struct {
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

// ParseProbe decodes `ffprobe -of json` output.
func ParseProbe(data []byte) (*ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return nil, ErrNoVideoStream
	}

	res := &ProbeResult{
		Width:      out.Streams[0].Width,
		Height:     out.Streams[0].Height,
		CodecName:  out.Streams[0].CodecName,
		FormatName: out.Format.FormatName,
	}
	if out.Format.Duration != "" {
		secs, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse duration %q: %w", out.Format.Duration, err)
		}
		res.Duration = time.Duration(secs * float64(time.Second))
	}
	return res, nil
}
