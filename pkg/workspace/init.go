// Package workspace manages the .hive folder: config file, node and
// environment documents and saved run results.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/blackcoderx/hive/pkg/sandbox"
	"github.com/blackcoderx/hive/pkg/storage"
	"github.com/blackcoderx/hive/pkg/transport"
)

// FolderName is the workspace folder created in the working directory.
const FolderName = ".hive"

// DefaultEnvironment is created on first initialisation.
const DefaultEnvironment = "dev"

// Config is the content of .hive/config.json.
type Config struct {
	SSLVerify         bool        `json:"ssl_verify"`
	ScriptTimeout     string      `json:"script_timeout"`
	RequestTimeout    string      `json:"request_timeout"`
	ActiveEnvironment string      `json:"active_environment"`
	LogLevel          string      `json:"log_level"`
	Redis             RedisConfig `json:"redis"`
}

// RedisConfig points environment storage at a shared Redis instead of the
// local files. An empty Addr keeps the files.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// DefaultConfig returns the config written on first use.
func DefaultConfig() Config {
	return Config{
		SSLVerify:         true,
		ScriptTimeout:     sandbox.DefaultTimeout.String(),
		RequestTimeout:    transport.DefaultTimeout.String(),
		ActiveEnvironment: DefaultEnvironment,
		LogLevel:          "info",
	}
}

// ConfigPath returns the config file inside dir.
func ConfigPath(dir string) string {
	return filepath.Join(dir, "config.json")
}

// RunsDir returns where collection run results are saved.
func RunsDir(dir string) string {
	return filepath.Join(dir, "runs")
}

// Initialize creates dir with a default config, the document folders and a
// default environment if it does not exist yet. Progress messages go to out.
// It reports whether anything was created.
func Initialize(dir string, out io.Writer) (bool, error) {
	created := false
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		fmt.Fprintf(out, "🔧 Initializing %s folder for the first time...\n", filepath.Base(dir))

		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, fmt.Errorf("failed to create %s folder: %w", dir, err)
		}
		if err := writeConfig(ConfigPath(dir), DefaultConfig()); err != nil {
			return false, err
		}
		created = true
	} else if err != nil {
		return false, err
	}

	store := storage.NewFileStore(dir)

	// Ensure subdirectories exist (for folders created by older versions)
	for _, sub := range []string{store.NodesDir(), store.EnvironmentsDir(), RunsDir(dir)} {
		if err := os.MkdirAll(sub, 0755); err != nil {
			return false, fmt.Errorf("failed to create %s: %w", sub, err)
		}
	}

	if created {
		if err := createDefaultEnvironment(store); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "✓ %s folder initialized successfully!\n", filepath.Base(dir))
	}
	return created, nil
}

func createDefaultEnvironment(store *storage.FileStore) error {
	env := &storage.Environment{
		ID:        DefaultEnvironment,
		Name:      "Development",
		Values:    storage.Values{},
		UpdatedAt: time.Now().UTC(),
	}
	if err := store.SaveEnvironment(context.Background(), env); err != nil {
		return fmt.Errorf("failed to write dev environment: %w", err)
	}
	return nil
}

func writeConfig(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
