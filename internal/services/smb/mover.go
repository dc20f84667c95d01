package smb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

const maxRemoteNameLength = 200

// statusCollision appears in smbclient output when a remote directory
// already exists. Re-running a transfer into the same folder is fine.
const statusCollision = "NT_STATUS_OBJECT_NAME_COLLISION"

// Status describes the outcome of a transfer.
type Status string

const (
	StatusMoved   Status = "moved"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result reports where a transfer landed.
type Result struct {
	Status      Status
	Destination string
	Message     string
}

// Mover sends finished job output to remote storage.
type Mover interface {
	Move(ctx context.Context, title string, videoFiles []string, shotsDir string) (*Result, error)
}

// Executor abstracts command execution for testability.
type Executor interface {
	CombinedOutput(ctx context.Context, binary string, args []string) ([]byte, error)
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

// Config holds SMB connection settings.
type Config struct {
	Binary   string
	Server   string
	Share    string
	Path     string
	Username string
	Password string
	Domain   string
}

// Client uploads files with the smbclient CLI.
type Client struct {
	cfg  Config
	exec Executor
}

// New constructs an SMB client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "smbclient"
	}
	if strings.TrimSpace(cfg.Server) == "" || strings.TrimSpace(cfg.Share) == "" {
		return nil, errors.New("smb server and share required")
	}
	client := &Client{cfg: cfg, exec: commandExecutor{}}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Move uploads the job's video files and shot images into a per-title remote
// directory, then removes the local copies. A pre-existing remote directory
// is reused. Local files are deleted only after their upload succeeds.
func (c *Client) Move(ctx context.Context, title string, videoFiles []string, shotsDir string) (*Result, error) {
	remoteDir := SanitizeName(title)
	if remoteDir == "" {
		return &Result{Status: StatusFailed, Message: "empty title after sanitizing"}, errors.New("empty remote directory name")
	}

	if err := c.mkdir(ctx, remoteDir); err != nil {
		return &Result{Status: StatusFailed, Message: err.Error()}, fmt.Errorf("create remote directory: %w", err)
	}

	uploaded := 0
	for _, local := range videoFiles {
		if _, err := os.Stat(local); err != nil {
			continue
		}
		if err := c.put(ctx, local, remoteDir, filepath.Base(local)); err != nil {
			return &Result{Status: StatusFailed, Message: err.Error()}, fmt.Errorf("upload %s: %w", filepath.Base(local), err)
		}
		if err := os.Remove(local); err != nil {
			return &Result{Status: StatusFailed, Message: err.Error()}, fmt.Errorf("remove %s: %w", local, err)
		}
		uploaded++
	}

	shots, err := listShots(shotsDir)
	if err != nil {
		return &Result{Status: StatusFailed, Message: err.Error()}, err
	}
	if len(shots) > 0 {
		shotsRemote := remoteDir + "\\shots"
		if err := c.mkdir(ctx, shotsRemote); err != nil {
			return &Result{Status: StatusFailed, Message: err.Error()}, fmt.Errorf("create shots directory: %w", err)
		}
		for _, local := range shots {
			if err := c.put(ctx, local, shotsRemote, filepath.Base(local)); err != nil {
				return &Result{Status: StatusFailed, Message: err.Error()}, fmt.Errorf("upload %s: %w", filepath.Base(local), err)
			}
			if err := os.Remove(local); err != nil {
				return &Result{Status: StatusFailed, Message: err.Error()}, fmt.Errorf("remove %s: %w", local, err)
			}
			uploaded++
		}
		// Best effort; the directory may hold unrelated files.
		_ = os.Remove(shotsDir)
	}

	destination := fmt.Sprintf("//%s/%s/%s", c.cfg.Server, c.cfg.Share, remotePathJoin(c.cfg.Path, remoteDir))
	if uploaded == 0 {
		return &Result{Status: StatusSkipped, Destination: destination, Message: "nothing to upload"}, nil
	}
	return &Result{
		Status:      StatusMoved,
		Destination: destination,
		Message:     fmt.Sprintf("uploaded %d files", uploaded),
	}, nil
}

func (c *Client) mkdir(ctx context.Context, remoteDir string) error {
	output, err := c.run(ctx, fmt.Sprintf(`mkdir "%s"`, remoteDir))
	if err != nil {
		if strings.Contains(output, statusCollision) {
			return nil
		}
		return err
	}
	return nil
}

func (c *Client) put(ctx context.Context, localPath, remoteDir, remoteName string) error {
	_, err := c.run(ctx, fmt.Sprintf(`cd "%s"; put "%s" "%s"`, remoteDir, localPath, remoteName))
	return err
}

func (c *Client) run(ctx context.Context, command string) (string, error) {
	service := fmt.Sprintf("//%s/%s", c.cfg.Server, c.cfg.Share)
	args := []string{service, "-U", c.credential()}
	if c.cfg.Domain != "" {
		args = append(args, "-W", c.cfg.Domain)
	}
	if c.cfg.Path != "" {
		args = append(args, "-D", c.cfg.Path)
	}
	args = append(args, "-c", command)

	output, err := c.exec.CombinedOutput(ctx, c.cfg.Binary, args)
	text := string(output)
	if err != nil {
		trimmed := strings.TrimSpace(text)
		if trimmed != "" {
			return text, fmt.Errorf("%w: %s", err, trimmed)
		}
		return text, err
	}
	if status := failureStatus(text); status != "" {
		return text, fmt.Errorf("smbclient reported %s", status)
	}
	return text, nil
}

func (c *Client) credential() string {
	if c.cfg.Password != "" {
		return c.cfg.Username + "%" + c.cfg.Password
	}
	return c.cfg.Username
}

// failureStatus extracts the first fatal NT_STATUS code from smbclient
// output. smbclient exits zero for some failures, so output is the truth.
func failureStatus(output string) string {
	for _, field := range strings.Fields(output) {
		if strings.HasPrefix(field, "NT_STATUS_") && field != statusCollision && field != "NT_STATUS_OK" {
			return field
		}
	}
	return ""
}

// SanitizeName makes a title safe for use as a remote directory name.
// Characters SMB rejects become underscores and the result is capped at 200
// characters.
func SanitizeName(title string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(title) {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			b.WriteRune('_')
		default:
			if r < 0x20 {
				b.WriteRune('_')
				continue
			}
			b.WriteRune(r)
		}
	}
	name := strings.Trim(b.String(), ". ")
	if len(name) > maxRemoteNameLength {
		name = name[:maxRemoteNameLength]
	}
	return name
}

func remotePathJoin(base, dir string) string {
	if base == "" {
		return dir
	}
	return strings.TrimSuffix(base, "/") + "/" + dir
}

func listShots(shotsDir string) ([]string, error) {
	if shotsDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(shotsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read shots directory: %w", err)
	}
	var shots []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		shots = append(shots, filepath.Join(shotsDir, entry.Name()))
	}
	sort.Strings(shots)
	return shots, nil
}

type commandExecutor struct{}

func (commandExecutor) CombinedOutput(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	return cmd.CombinedOutput()
}
