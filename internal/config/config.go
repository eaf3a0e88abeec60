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
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	IntakeDir  string `toml:"intake_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// LocalStorage configures the filesystem storage backend.
type LocalStorage struct {
	Root string `toml:"root"`
}

// S3Storage configures the S3-compatible storage backend.
type S3Storage struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Secure    bool   `toml:"secure"`
}

// Storage selects and configures the asset storage backend.
type Storage struct {
	Backend string       `toml:"backend"`
	Local   LocalStorage `toml:"local"`
	S3      S3Storage    `toml:"s3"`
}

// OptimizerTool is one entry in a per-format optimizer chain. The tool is
// expected to rewrite {src} in place.
type OptimizerTool struct {
	Binary         string   `toml:"binary"`
	Args           []string `toml:"args"`
	Optional       bool     `toml:"optional"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// VariantRule derives an additional format/size rendition from an optimized
// transform. Args templates may reference {src}, {dst}, {quality}, {width}.
type VariantRule struct {
	Format         string   `toml:"format"`
	Sources        []string `toml:"sources"`
	Binary         string   `toml:"binary"`
	Args           []string `toml:"args"`
	Quality        int      `toml:"quality"`
	Widths         []int    `toml:"widths"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Filter configures the in-process pre-filter applied before optimizers run.
type Filter struct {
	Enabled     bool `toml:"enabled"`
	MaxWidth    int  `toml:"max_width"`
	JPEGQuality int  `toml:"jpeg_quality"`
}

// Placeholder configures lazy-load placeholder generation.
type Placeholder struct {
	Enabled     bool `toml:"enabled"`
	Width       int  `toml:"width"`
	PaletteSize int  `toml:"palette_size"`
}

// Workflow contains worker timing, retry, and cleanup settings.
type Workflow struct {
	QueuePollInterval  int  `toml:"queue_poll_interval"`
	ErrorRetryInterval int  `toml:"error_retry_interval"`
	MaxAttempts        int  `toml:"max_attempts"`
	StaleStagingHours  int  `toml:"stale_staging_hours"`
	SkipLarger         bool `toml:"skip_larger"`
}

// Config encapsulates all configuration values for imagemill.
//
// Configuration sections by subsystem:
//   - Paths: staging, log, and intake directories
//   - Logging: log format and level
//   - Storage: local or S3 asset storage backend
//   - Optimizers: per-format external optimizer chains
//   - Variants: derivative format/size creation rules
//   - Filter: in-process resize/re-encode before optimizers
//   - Placeholder: lazy-load placeholder generation
//   - Workflow: worker polling, retries, staging cleanup
type Config struct {
	Paths       Paths                      `toml:"paths"`
	Logging     Logging                    `toml:"logging"`
	Storage     Storage                    `toml:"storage"`
	Optimizers  map[string][]OptimizerTool `toml:"optimizer"`
	Variants    []VariantRule              `toml:"variant"`
	Filter      Filter                     `toml:"filter"`
	Placeholder Placeholder                `toml:"placeholder"`
	Workflow    Workflow                   `toml:"workflow"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/imagemill/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. It reports the resolved
// path and whether a file actually existed there.
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

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("imagemill.toml")
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

func (c *Config) normalize() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.IntakeDir, err = expandPath(c.Paths.IntakeDir); err != nil {
		return err
	}
	if c.Storage.Local.Root, err = expandPath(c.Storage.Local.Root); err != nil {
		return err
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Storage.S3.Prefix = strings.Trim(strings.TrimSpace(c.Storage.S3.Prefix), "/")

	normalized := make(map[string][]OptimizerTool, len(c.Optimizers))
	for format, chain := range c.Optimizers {
		normalized[strings.ToLower(strings.TrimSpace(format))] = chain
	}
	c.Optimizers = normalized

	for i := range c.Variants {
		rule := &c.Variants[i]
		rule.Format = strings.ToLower(strings.TrimSpace(rule.Format))
		for j, src := range rule.Sources {
			rule.Sources[j] = strings.ToLower(strings.TrimSpace(src))
		}
		if len(rule.Widths) == 0 {
			rule.Widths = []int{0}
		}
	}
	return nil
}

// EnsureDirectories creates required directories for worker operation.
// The local storage root is created on a best-effort basis so commands can
// run when external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.IntakeDir) != "" {
		if err := os.MkdirAll(c.Paths.IntakeDir, 0o755); err != nil {
			return fmt.Errorf("create intake directory %q: %w", c.Paths.IntakeDir, err)
		}
	}
	if c.Storage.Backend == StorageBackendLocal && strings.TrimSpace(c.Storage.Local.Root) != "" {
		_ = os.MkdirAll(c.Storage.Local.Root, 0o755)
	}
	return nil
}

// ChainFor returns the optimizer chain configured for a format.
func (c *Config) ChainFor(format string) []OptimizerTool {
	return c.Optimizers[strings.ToLower(strings.TrimSpace(format))]
}

// VariantsFor returns the variant rules applicable to a source format.
func (c *Config) VariantsFor(format string) []VariantRule {
	format = strings.ToLower(strings.TrimSpace(format))
	var rules []VariantRule
	for _, rule := range c.Variants {
		for _, src := range rule.Sources {
			if src == format {
				rules = append(rules, rule)
				break
			}
		}
	}
	return rules
}

// VariantFormats returns the distinct target formats across all variant rules.
func (c *Config) VariantFormats() []string {
	seen := make(map[string]struct{}, len(c.Variants))
	var formats []string
	for _, rule := range c.Variants {
		if _, ok := seen[rule.Format]; ok {
			continue
		}
		seen[rule.Format] = struct{}{}
		formats = append(formats, rule.Format)
	}
	return formats
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
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
