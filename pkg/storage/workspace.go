package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"gopkg.in/yaml.v3"
)

// ConfigFile is the client configuration inside the boardsync home.
const ConfigFile = "config.yaml"

// Workspace is the boardsync home directory holding the client config and
// the listen journal.
type Workspace struct {
	home        string
	retryConfig retry.Config
}

func NewWorkspace(home string) *Workspace {
	return &Workspace{
		home: home,
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  10 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
}

// Home returns the workspace directory.
func (w *Workspace) Home() string {
	return w.home
}

// ResolvePath returns the path of filename directly inside the home and
// rejects anything that would escape it.
func (w *Workspace) ResolvePath(filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("filename cannot be empty")
	}
	base := filepath.Clean(w.home)
	clean := filepath.Clean(filepath.Join(base, filename))
	if !strings.HasPrefix(clean, base) || filepath.Dir(clean) != base {
		return "", fmt.Errorf("invalid file path: %s", filename)
	}
	return clean, nil
}

func (w *Workspace) Initialize() error {
	if err := os.MkdirAll(w.home, 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", w.home, err)
	}
	return nil
}

func (w *Workspace) IsInitialized() bool {
	info, err := os.Stat(w.home)
	return err == nil && info.IsDir()
}

// Journal returns the listen journal stored in the workspace.
func (w *Workspace) Journal() *FileJournal {
	return NewFileJournal(w.home)
}

// LoadYAML decodes filename into v. It reports false without error when the
// file does not exist. Transient read failures are retried.
func (w *Workspace) LoadYAML(filename string, v any) (bool, error) {
	path, err := w.ResolvePath(filename)
	if err != nil {
		return false, err
	}
	retryer := retry.New[[]byte](w.retryConfig)
	var missing bool
	data, err := retryer.Do(context.Background(), func(ctx context.Context) ([]byte, error) {
		// #nosec G304 -- path is resolved via ResolvePath
		b, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			missing = true
			return nil, nil
		}
		return b, err
	})
	if missing {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", filename, err)
	}
	return true, nil
}

// SaveYAML encodes v into filename with owner-only permissions.
func (w *Workspace) SaveYAML(filename string, v any) error {
	if err := w.Initialize(); err != nil {
		return err
	}
	path, err := w.ResolvePath(filename)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filename, err)
	}
	return os.WriteFile(path, data, 0600)
}
