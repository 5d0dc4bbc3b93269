// internal/config/config.go
//
// This package handles configuration and the project folder layout.
// A packsync project is a folder holding the base workbooks, the portal
// downloads and an optional packsync.yaml that overrides the defaults.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kingrea/packsync/internal/reshape"
	"github.com/kingrea/packsync/internal/workbook"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFile is the optional settings file inside the project folder.
	ConfigFile = "packsync.yaml"

	// HomeEnv names the project folder when --dir is not given.
	HomeEnv = "PACKSYNC_HOME"

	// InputLatest makes the pack job read the newest file in the downloads folder.
	InputLatest = "latest"

	defaultBasesDir     = "Bases"
	defaultDownloadsDir = "Dados"
	defaultLogsDir      = "logs"
	defaultSheet        = "A14"
	defaultModelColumn  = "order_type"
	defaultModelValue   = "PRE"
	defaultSkippedModel = "611"
)

const defaultProjectConfigYAML = `# packsync project configuration
version: 1

paths:
  # Folder with the *BASE* workbooks that receive the A14 sheet.
  bases: Bases
  # Folder where portal downloads are saved.
  downloads: Dados

pack:
  # Report to reshape. Use "latest" to take the newest file in downloads.
  input: Dados/A14.xls
  sheet: A14
  filter:
    column: CODICE_FAMIGLIA
    value: PKG
  marker: CODICE_OPTIONAL
  delimiter: "*"

targets:
  marker: BASE
  extensions: [.xlsb, .xlsx, .xlsm]

models:
  # Sequencer model reports saved as <downloads>/<key>.csv.
  # Leave empty to convert every CSV in the downloads folder.
  keys: []
  skip: ["611"]
  filter:
    column: order_type
    value: PRE
`

// FilterConfig selects rows by one column value.
type FilterConfig struct {
	Column string `yaml:"column"`
	Value  string `yaml:"value"`
}

// PathsConfig locates the project folders.
type PathsConfig struct {
	Bases     string `yaml:"bases"`
	Downloads string `yaml:"downloads"`
	Logs      string `yaml:"logs,omitempty"`
}

// PackConfig drives the A14 reshape.
type PackConfig struct {
	Input     string       `yaml:"input"`
	Sheet     string       `yaml:"sheet"`
	Filter    FilterConfig `yaml:"filter"`
	Marker    string       `yaml:"marker"`
	Delimiter string       `yaml:"delimiter"`
}

// TargetsConfig picks the workbooks that receive the sheet.
type TargetsConfig struct {
	Marker     string   `yaml:"marker"`
	Extensions []string `yaml:"extensions"`
}

// ModelsConfig drives the per-model CSV conversion.
type ModelsConfig struct {
	Keys   []string     `yaml:"keys"`
	Skip   []string     `yaml:"skip"`
	Filter FilterConfig `yaml:"filter"`
}

// ProjectConfig models packsync.yaml.
type ProjectConfig struct {
	Version int           `yaml:"version"`
	Paths   PathsConfig   `yaml:"paths"`
	Pack    PackConfig    `yaml:"pack"`
	Targets TargetsConfig `yaml:"targets"`
	Models  ModelsConfig  `yaml:"models"`
}

// Config holds the runtime configuration.
type Config struct {
	// ProjectDir is the folder packsync operates on.
	ProjectDir string

	Project ProjectConfig
}

// ResolveProjectDir picks the project folder: the explicit value, then
// $PACKSYNC_HOME, then the working directory.
func ResolveProjectDir(explicit string) (string, error) {
	dir := strings.TrimSpace(explicit)
	if dir == "" {
		dir = strings.TrimSpace(os.Getenv(HomeEnv))
	}
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("config: working directory: %w", err)
		}
		dir = cwd
	}
	return filepath.Abs(dir)
}

// Init creates the project folders and writes a default packsync.yaml
// unless one exists.
//
// Structure created:
// <project>/
// ├── Bases/        <- *BASE* workbooks updated with the A14 sheet
// ├── Dados/        <- portal downloads and converted model workbooks
// ├── logs/         <- packsync.log and activity.log
// └── packsync.yaml
func Init(projectDir string) error {
	for _, dir := range []string{defaultBasesDir, defaultDownloadsDir, defaultLogsDir} {
		if err := os.MkdirAll(filepath.Join(projectDir, dir), 0o755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(projectDir, ConfigFile))
}

// NewConfig loads the project configuration, falling back to defaults when
// packsync.yaml is missing.
func NewConfig(projectDir string) (*Config, error) {
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", projectDir, err)
	}
	cfg := &Config{ProjectDir: abs, Project: defaultProjectConfig()}
	cfg.Project.normalize(abs)
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.ProjectDir, ConfigFile)
}

// BasesDir returns the folder holding the target workbooks.
func (c *Config) BasesDir() string { return c.Project.Paths.Bases }

// DownloadsDir returns the folder holding portal downloads.
func (c *Config) DownloadsDir() string { return c.Project.Paths.Downloads }

// LogsDir returns the folder for log files.
func (c *Config) LogsDir() string { return c.Project.Paths.Logs }

// ReshapeOptions translates the pack settings.
func (c *Config) ReshapeOptions() reshape.Options {
	p := c.Project.Pack
	return reshape.Options{
		Filter:    reshape.Criterion{Column: p.Filter.Column, Value: p.Filter.Value},
		Marker:    p.Marker,
		Delimiter: p.Delimiter,
	}
}

// Selector translates the target settings.
func (c *Config) Selector() workbook.Selector {
	return workbook.Selector{Marker: c.Project.Targets.Marker, Extensions: c.Project.Targets.Extensions}
}

// ModelFilter is the exact-match criterion for model reports.
func (c *Config) ModelFilter() reshape.Criterion {
	f := c.Project.Models.Filter
	return reshape.Criterion{Column: f.Column, Value: f.Value, Exact: true}
}

// Skipped reports whether a model key is configured to be skipped.
func (c *Config) Skipped(key string) bool {
	return contains(c.Project.Models.Skip, key)
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func defaultProjectConfig() ProjectConfig {
	pc := ProjectConfig{}
	pc.applyDefaults()
	return pc
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	setDefault(&pc.Paths.Bases, defaultBasesDir)
	setDefault(&pc.Paths.Downloads, defaultDownloadsDir)
	setDefault(&pc.Paths.Logs, defaultLogsDir)
	setDefault(&pc.Pack.Input, filepath.Join(defaultDownloadsDir, "A14.xls"))
	setDefault(&pc.Pack.Sheet, defaultSheet)
	setDefault(&pc.Pack.Filter.Column, reshape.DefaultFilterColumn)
	setDefault(&pc.Pack.Filter.Value, reshape.DefaultFilterValue)
	setDefault(&pc.Pack.Marker, reshape.DefaultMarker)
	setDefault(&pc.Pack.Delimiter, reshape.DefaultDelimiter)
	setDefault(&pc.Targets.Marker, workbook.DefaultMarker)
	if len(pc.Targets.Extensions) == 0 {
		pc.Targets.Extensions = append([]string(nil), workbook.DefaultExtensions...)
	}
	if pc.Models.Skip == nil {
		pc.Models.Skip = []string{defaultSkippedModel}
	}
	setDefault(&pc.Models.Filter.Column, defaultModelColumn)
	setDefault(&pc.Models.Filter.Value, defaultModelValue)
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Paths.Bases = resolvePath(base, pc.Paths.Bases)
	pc.Paths.Downloads = resolvePath(base, pc.Paths.Downloads)
	pc.Paths.Logs = resolvePath(base, pc.Paths.Logs)
	if !strings.EqualFold(strings.TrimSpace(pc.Pack.Input), InputLatest) {
		pc.Pack.Input = resolvePath(base, pc.Pack.Input)
	} else {
		pc.Pack.Input = InputLatest
	}
	pc.Pack.Sheet = strings.TrimSpace(pc.Pack.Sheet)
	pc.Pack.Filter.Column = strings.TrimSpace(pc.Pack.Filter.Column)
	pc.Models.Filter.Column = strings.TrimSpace(pc.Models.Filter.Column)
	for i, ext := range pc.Targets.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		pc.Targets.Extensions[i] = ext
	}
	pc.Models.Keys = trimAll(pc.Models.Keys)
	pc.Models.Skip = trimAll(pc.Models.Skip)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.Pack.Sheet == "" {
		return fmt.Errorf("pack.sheet is required")
	}
	if len([]rune(pc.Pack.Sheet)) > 31 || strings.ContainsAny(pc.Pack.Sheet, `:\/?*[]`) {
		return fmt.Errorf("pack.sheet %q is not a valid sheet name", pc.Pack.Sheet)
	}
	if pc.Pack.Filter.Column == "" {
		return fmt.Errorf("pack.filter.column is required")
	}
	if pc.Pack.Marker == "" {
		return fmt.Errorf("pack.marker is required")
	}
	if pc.Targets.Marker == "" {
		return fmt.Errorf("targets.marker is required")
	}
	for i, ext := range pc.Targets.Extensions {
		if ext == "" {
			return fmt.Errorf("targets.extensions[%d] is empty", i)
		}
	}
	if pc.Models.Filter.Column == "" {
		return fmt.Errorf("models.filter.column is required")
	}
	return nil
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return true
		}
	}
	return false
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

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}
