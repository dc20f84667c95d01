package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	targetWidth  = 1920
	targetHeight = 1080
)

// Scaler bounds oversized videos to full HD before detection.
type Scaler interface {
	EnsureBounded(ctx context.Context, videoPath string) (string, error)
}

// Executor abstracts command execution for testability.
type Executor interface {
	Output(ctx context.Context, binary string, args []string) ([]byte, error)
	Run(ctx context.Context, binary string, args []string) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps ffprobe and ffmpeg.
type Client struct {
	ffmpegBinary  string
	ffprobeBinary string
	exec          Executor
}

// New constructs a scaler client.
func New(ffmpegBinary, ffprobeBinary string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(ffmpegBinary) == "" {
		return nil, errors.New("ffmpeg binary required")
	}
	if strings.TrimSpace(ffprobeBinary) == "" {
		return nil, errors.New("ffprobe binary required")
	}
	client := &Client{
		ffmpegBinary:  ffmpegBinary,
		ffprobeBinary: ffprobeBinary,
		exec:          commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// EnsureBounded returns a path to a video no larger than 1920x1080. Videos
// already within bounds come back unchanged; oversized ones are re-encoded
// next to the original with an _FHD suffix. Probe or encode failures return
// an error with the original path so callers can continue on the source.
func (c *Client) EnsureBounded(ctx context.Context, videoPath string) (string, error) {
	width, height, err := c.probeDimensions(ctx, videoPath)
	if err != nil {
		return videoPath, fmt.Errorf("probe %s: %w", filepath.Base(videoPath), err)
	}
	if width <= targetWidth && height <= targetHeight {
		return videoPath, nil
	}

	scaledPath := ScaledPath(videoPath)
	args := []string{
		"-y",
		"-i", videoPath,
		"-vf", fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", targetWidth, targetHeight),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "copy",
		scaledPath,
	}
	if err := c.exec.Run(ctx, c.ffmpegBinary, args); err != nil {
		return videoPath, fmt.Errorf("scale %s: %w", filepath.Base(videoPath), err)
	}
	return scaledPath, nil
}

// ScaledPath derives the full HD sibling path for a video.
func ScaledPath(videoPath string) string {
	ext := filepath.Ext(videoPath)
	return strings.TrimSuffix(videoPath, ext) + "_FHD" + ext
}

func (c *Client) probeDimensions(ctx context.Context, videoPath string) (int, int, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		videoPath,
	}
	output, err := c.exec.Output(ctx, c.ffprobeBinary, args)
	if err != nil {
		return 0, 0, err
	}
	parts := strings.SplitN(strings.TrimSpace(string(output)), "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unexpected probe output %q", strings.TrimSpace(string(output)))
	}
	width, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("parse width: %w", err)
	}
	height, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("parse height: %w", err)
	}
	return width, height, nil
}

type commandExecutor struct{}

func (commandExecutor) Output(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return output, nil
}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(output))
		if trimmed != "" {
			return fmt.Errorf("%w: %s", err, tail(trimmed))
		}
		return err
	}
	return nil
}

// tail keeps the last few lines of encoder output, where ffmpeg puts the
// actual failure reason.
func tail(output string) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= 5 {
		return output
	}
	return strings.Join(lines[len(lines)-5:], "\n")
}
