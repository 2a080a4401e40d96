package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	SpoolDir string `toml:"spool_dir"`
	LogDir   string `toml:"log_dir"`
}

// Server contains HTTP API configuration.
type Server struct {
	Bind     string `toml:"bind"`
	APIToken string `toml:"api_token"`
}

// Database contains store driver configuration. The sqlite driver keeps all
// state in a single file under the data directory; the postgres driver is for
// multi-instance deployments.
type Database struct {
	Driver       string `toml:"driver"`
	Path         string `toml:"path"`
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// Catalog contains configuration for the granule catalog service.
type Catalog struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	PageSize       int    `toml:"page_size"`
	RequestTimeout int    `toml:"request_timeout"`
}

// ObjectStore contains configuration for payload persistence.
type ObjectStore struct {
	Backend   string `toml:"backend"`
	Bucket    string `toml:"bucket"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Executor contains configuration for signaling external workflow runtimes.
type Executor struct {
	Kind           string `toml:"kind"`
	Endpoint       string `toml:"endpoint"`
	AMQPURL        string `toml:"amqp_url"`
	Exchange       string `toml:"exchange"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Orchestrator contains job and work item policy settings.
type Orchestrator struct {
	PreviewThreshold   int      `toml:"preview_threshold"`
	WorkItemRetryLimit int      `toml:"work_item_retry_limit"`
	DefaultPageSize    int      `toml:"default_page_size"`
	MaxPageSize        int      `toml:"max_page_size"`
	ClaimTimeout       int      `toml:"claim_timeout"`
	ReclaimInterval    int      `toml:"reclaim_interval"`
	AdminUsernames     []string `toml:"admin_usernames"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for strata.
//
// Configuration sections by subsystem:
//   - Paths: data, spool, and log directories
//   - Server: API bind address and worker auth token
//   - Database: sqlite or postgres store settings
//   - Catalog: granule catalog endpoint and paging
//   - ObjectStore: fs or s3 payload persistence
//   - Executor: none/http/amqp workflow runtime signaling
//   - Orchestrator: preview, retry, paging, and reclaim policy
//   - Logging: log format and level
type Config struct {
	Paths        Paths        `toml:"paths"`
	Server       Server       `toml:"server"`
	Database     Database     `toml:"database"`
	Catalog      Catalog      `toml:"catalog"`
	ObjectStore  ObjectStore  `toml:"object_store"`
	Executor     Executor     `toml:"executor"`
	Orchestrator Orchestrator `toml:"orchestrator"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/strata/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/strata/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("strata.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.ObjectStore.Backend == "fs" {
		dirs = append(dirs, c.Paths.SpoolDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the sqlite database file location.
func (c *Config) DatabasePath() string {
	return c.Database.Path
}

// LockPath returns the daemon instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "stratad.lock")
}

// IsAdmin reports whether the username carries administrative privileges.
func (c *Config) IsAdmin(username string) bool {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return false
	}
	for _, admin := range c.Orchestrator.AdminUsernames {
		if strings.EqualFold(strings.TrimSpace(admin), trimmed) {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
