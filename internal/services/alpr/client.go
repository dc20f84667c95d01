package alpr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"

	"platewatch/internal/services/detector"
)

// Validator decides whether a vehicle crop carries a readable, well-formed
// license plate.
type Validator interface {
	HasPlate(ctx context.Context, img gocv.Mat, class detector.Class) (bool, string, error)
}

// Executor abstracts command execution for testability.
type Executor interface {
	Output(ctx context.Context, binary string, args []string) ([]byte, error)
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

// Client wraps an external ALPR CLI. The tool takes an image path and prints
// one JSON object per recognized plate.
type Client struct {
	binary        string
	detectorModel string
	ocrModel      string
	exec          Executor
}

// New constructs an ALPR client.
func New(binary, detectorModel, ocrModel string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("alpr binary required")
	}
	client := &Client{
		binary:        binary,
		detectorModel: detectorModel,
		ocrModel:      ocrModel,
		exec:          commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type recognition struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// HasPlate runs the ALPR tool against the crop and returns whether any
// recognized text matches the plate format for the vehicle class. The first
// valid plate found is returned in normalized form.
func (c *Client) HasPlate(ctx context.Context, img gocv.Mat, class detector.Class) (bool, string, error) {
	if img.Empty() {
		return false, "", errors.New("empty image")
	}

	tmpDir, err := os.MkdirTemp("", "platewatch-alpr-")
	if err != nil {
		return false, "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	imagePath := filepath.Join(tmpDir, "crop.jpg")
	if ok := gocv.IMWrite(imagePath, img); !ok {
		return false, "", errors.New("write crop image")
	}

	args := []string{"--format", "json"}
	if c.detectorModel != "" {
		args = append(args, "--detector-model", c.detectorModel)
	}
	if c.ocrModel != "" {
		args = append(args, "--ocr-model", c.ocrModel)
	}
	args = append(args, imagePath)

	output, err := c.exec.Output(ctx, c.binary, args)
	if err != nil {
		return false, "", fmt.Errorf("run %s: %w", c.binary, err)
	}

	plate, found := firstValidPlate(output, class)
	return found, plate, nil
}

// firstValidPlate scans JSON-lines output for a recognition whose text
// matches the class plate format. Malformed lines are skipped; the tool
// mixes diagnostics into stdout on some platforms.
func firstValidPlate(output []byte, class detector.Class) (string, bool) {
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var rec recognition
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if ValidPlate(rec.Text, class) {
			return NormalizePlate(rec.Text), true
		}
	}
	return "", false
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
