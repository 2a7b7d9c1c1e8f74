// Package config handles the .editorbridge directory and its project
// configuration. Every project served by the bridge gets a .editorbridge/
// folder next to its content root.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	// Dir is the name of the directory created in each project.
	Dir = ".editorbridge"

	DefaultContentRoot  = "Assets"
	DefaultOutputDir    = "Assets/CollectedInfo"
	DefaultAddress      = "127.0.0.1:5000"
	DefaultMaxBodyBytes = 1 << 20
	DefaultLimit        = 1000
	DefaultHistory      = 32
)

// configNames are tried in order when loading a project.
var configNames = []string{"config.yaml", "config.yml", "config.jsonc", "config.json"}

const defaultProjectConfigYAML = `# editorbridge project configuration
version: 1

# Editor content directory, relative to the project root.
content_root: Assets

bridge:
  # One listener per address. EDITORBRIDGE_ADDRESSES overrides this list.
  addresses:
    - 127.0.0.1:5000
  max_body_bytes: 1048576

collect:
  # Items beyond the limit are counted as skipped and never processed.
  limit: 1000
  # Used when a collect request does not name an output path.
  output_dir: Assets/CollectedInfo
  # 0 means one worker per CPU.
  workers: 0
  # Finished runs kept for /runs.
  history: 32

sink:
  # json writes AllAssetInfo.json, sqlite writes catalog.db.
  kinds:
    - json
  # none, zstd or lz4
  compression: none

foreground:
  # Command that raises the editor window, e.g. [wmctrl, -a, Unity].
  command: []
`

// BridgeConfig configures the HTTP listeners.
type BridgeConfig struct {
	Addresses    []string `yaml:"addresses" json:"addresses"`
	MaxBodyBytes int64    `yaml:"max_body_bytes" json:"max_body_bytes"`
}

// CollectConfig configures orchestrated collection runs.
type CollectConfig struct {
	Limit     int    `yaml:"limit" json:"limit"`
	OutputDir string `yaml:"output_dir" json:"output_dir"`
	Workers   int    `yaml:"workers" json:"workers"`
	History   int    `yaml:"history" json:"history"`
}

// SinkConfig selects persistence for finished runs.
type SinkConfig struct {
	Kinds       []string `yaml:"kinds" json:"kinds"`
	Compression string   `yaml:"compression" json:"compression"`
}

// ForegroundConfig names the command that raises the editor window.
type ForegroundConfig struct {
	Command []string `yaml:"command" json:"command"`
}

// ProjectConfig models .editorbridge/config.yaml.
type ProjectConfig struct {
	Version     int              `yaml:"version" json:"version"`
	ContentRoot string           `yaml:"content_root" json:"content_root"`
	Bridge      BridgeConfig     `yaml:"bridge" json:"bridge"`
	Collect     CollectConfig    `yaml:"collect" json:"collect"`
	Sink        SinkConfig       `yaml:"sink" json:"sink"`
	Foreground  ForegroundConfig `yaml:"foreground" json:"foreground"`
}

// Config holds the runtime configuration for one project.
type Config struct {
	// ProjectDir is the editor project root (the parent of the content root).
	ProjectDir string

	// BridgeDir is ProjectDir/.editorbridge.
	BridgeDir string

	// Source is the config file that was loaded, empty when defaults apply.
	Source string

	Project ProjectConfig
}

// InitDir creates the .editorbridge directory structure and writes the
// default config when none exists.
//
// Structure created:
// .editorbridge/
// ├── config.yaml
// ├── logs/    <- editorbridge.log and collect.log
// └── state/
func InitDir(projectDir string) error {
	bridgeDir := filepath.Join(projectDir, Dir)
	for _, dir := range []string{
		filepath.Join(bridgeDir, "logs"),
		filepath.Join(bridgeDir, "state"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	for _, name := range configNames {
		if _, err := os.Stat(filepath.Join(bridgeDir, name)); err == nil {
			return nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: stat %s: %w", name, err)
		}
	}
	return os.WriteFile(filepath.Join(bridgeDir, "config.yaml"), []byte(defaultProjectConfigYAML), 0o644)
}

// Load reads the project configuration for projectDir. A missing config
// file yields defaults.
func Load(projectDir string) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve project dir: %w", err)
	}
	cfg := &Config{
		ProjectDir: abs,
		BridgeDir:  filepath.Join(abs, Dir),
		Project:    defaultProjectConfig(),
	}
	for _, name := range configNames {
		path := filepath.Join(cfg.BridgeDir, name)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	cfg.Project.normalize()
	return cfg, nil
}

// LoadFile reads an explicit config file. projectDir anchors relative paths.
func LoadFile(projectDir, path string) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve project dir: %w", err)
	}
	cfg := &Config{
		ProjectDir: abs,
		BridgeDir:  filepath.Join(abs, Dir),
		Project:    defaultProjectConfig(),
	}
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	parsed, err := parse(path, data)
	if err != nil {
		return err
	}
	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.Project = parsed
	c.Source = path
	return nil
}

func parse(path string, data []byte) (ProjectConfig, error) {
	var parsed ProjectConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &parsed); err != nil {
			return parsed, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return parsed, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return parsed, nil
}

// LogsDir returns the directory holding the daemon log and the journal.
func (c *Config) LogsDir() string {
	return filepath.Join(c.BridgeDir, "logs")
}

// JournalPath returns the collection journal file.
func (c *Config) JournalPath() string {
	return filepath.Join(c.LogsDir(), "collect.log")
}

// ContentRoot returns the absolute content directory.
func (c *Config) ContentRoot() string {
	return c.Resolve(c.Project.ContentRoot)
}

// OutputDir returns the absolute default output directory.
func (c *Config) OutputDir() string {
	return c.Resolve(c.Project.Collect.OutputDir)
}

// Resolve anchors a project-relative path at ProjectDir.
func (c *Config) Resolve(candidate string) string {
	return resolvePath(c.ProjectDir, candidate)
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{Version: 1}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if strings.TrimSpace(pc.ContentRoot) == "" {
		pc.ContentRoot = DefaultContentRoot
	}
	if len(pc.Bridge.Addresses) == 0 {
		pc.Bridge.Addresses = []string{DefaultAddress}
	}
	if pc.Bridge.MaxBodyBytes == 0 {
		pc.Bridge.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if pc.Collect.Limit == 0 {
		pc.Collect.Limit = DefaultLimit
	}
	if strings.TrimSpace(pc.Collect.OutputDir) == "" {
		pc.Collect.OutputDir = DefaultOutputDir
	}
	if pc.Collect.History == 0 {
		pc.Collect.History = DefaultHistory
	}
	if len(pc.Sink.Kinds) == 0 {
		pc.Sink.Kinds = []string{"json"}
	}
	if strings.TrimSpace(pc.Sink.Compression) == "" {
		pc.Sink.Compression = "none"
	}
}

func (pc *ProjectConfig) normalize() {
	pc.ContentRoot = filepath.Clean(strings.TrimSpace(pc.ContentRoot))
	pc.Collect.OutputDir = filepath.Clean(strings.TrimSpace(pc.Collect.OutputDir))
	pc.Bridge.Addresses = trimAll(pc.Bridge.Addresses)
	kinds := trimAll(pc.Sink.Kinds)
	for i := range kinds {
		kinds[i] = strings.ToLower(kinds[i])
	}
	pc.Sink.Kinds = dedupe(kinds)
	pc.Sink.Compression = strings.ToLower(strings.TrimSpace(pc.Sink.Compression))
	pc.Foreground.Command = trimAll(pc.Foreground.Command)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if len(pc.Bridge.Addresses) == 0 {
		return fmt.Errorf("bridge.addresses must name at least one address")
	}
	if pc.Bridge.MaxBodyBytes < 0 {
		return fmt.Errorf("bridge.max_body_bytes must be >= 0")
	}
	if pc.Collect.Limit < 1 {
		return fmt.Errorf("collect.limit must be >= 1")
	}
	if pc.Collect.Workers < 0 {
		return fmt.Errorf("collect.workers must be >= 0")
	}
	if pc.Collect.History < 0 {
		return fmt.Errorf("collect.history must be >= 0")
	}
	for i, kind := range pc.Sink.Kinds {
		switch kind {
		case "json", "sqlite":
		default:
			return fmt.Errorf("sink.kinds[%d]: unknown sink %q", i, kind)
		}
	}
	switch pc.Sink.Compression {
	case "none", "zstd", "lz4":
	default:
		return fmt.Errorf("sink.compression must be 'none', 'zstd' or 'lz4'")
	}
	return nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}
