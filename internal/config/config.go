// Package config handles smartfolder configuration loading and
// normalization. The CLI hands it a JSON config file (YAML is accepted
// for the same shape); the output is the normalized FolderSpec list
// the supervisor wires into watchers and queues.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smartfolderhq/smartfolder/internal/state"
)

// Defaults applied during normalization.
const (
	DefaultModel             = "openai/gpt-4o-mini"
	DefaultProvider          = "openai"
	DefaultMaxToolCalls      = 10
	DefaultTemperature       = 0.2
	DefaultDebounceMs        = 1500
	DefaultDiscoveryInterval = 5000
)

// DefaultIgnoreGlobs are always applied on top of user-supplied globs.
func DefaultIgnoreGlobs() []string {
	return []string{"**/node_modules/**", "**/.git/**", "**/.smartfolder/**"}
}

// AllTools lists the nine tool ids in registry order.
func AllTools() []string {
	return []string{
		"read_file", "write_file", "rename_file", "move_file",
		"grep", "sed", "head", "tail", "create_folder",
	}
}

// envWhitelist is the closed set of environment variable names configs
// may reference via $NAME tokens. Anything else fails validation.
var envWhitelist = map[string]bool{
	"AI_GATEWAY_API_KEY":    true,
	"SMARTFOLDER_HOME":      true,
	"SMARTFOLDER_LOG_LEVEL": true,
	"HOME":                  true,
	"USER":                  true,
}

// EnvVarNotAllowedError reports a $NAME reference outside the whitelist.
type EnvVarNotAllowedError struct {
	Name string
}

func (e *EnvVarNotAllowedError) Error() string {
	return fmt.Sprintf("environment variable not allowed in config: $%s", e.Name)
}

// AIConfig holds model and gateway settings.
type AIConfig struct {
	Provider     string   `json:"provider" yaml:"provider"`
	Model        string   `json:"model" yaml:"model"`
	APIKey       string   `json:"apiKey" yaml:"apiKey"`
	BaseURL      string   `json:"baseUrl,omitempty" yaml:"baseUrl"`
	Temperature  float64  `json:"temperature" yaml:"temperature"`
	MaxToolCalls int      `json:"maxToolCalls" yaml:"maxToolCalls"`
	DefaultTools []string `json:"defaultTools,omitempty" yaml:"defaultTools"`
}

// FolderEntry is the raw per-folder block from the config file.
type FolderEntry struct {
	Path           string            `json:"path" yaml:"path"`
	Prompt         string            `json:"prompt" yaml:"prompt"`
	Tools          []string          `json:"tools,omitempty" yaml:"tools"`
	Ignore         []string          `json:"ignore,omitempty" yaml:"ignore"`
	DebounceMs     int               `json:"debounceMs,omitempty" yaml:"debounceMs"`
	PollIntervalMs int               `json:"pollIntervalMs,omitempty" yaml:"pollIntervalMs"`
	Env            map[string]string `json:"env,omitempty" yaml:"env"`
	DryRun         *bool             `json:"dryRun,omitempty" yaml:"dryRun"`
}

// GlobalDefaults are fallbacks for fields a folder entry leaves unset.
type GlobalDefaults struct {
	Tools          []string          `json:"tools,omitempty" yaml:"tools"`
	Ignore         []string          `json:"ignore,omitempty" yaml:"ignore"`
	DebounceMs     int               `json:"debounceMs,omitempty" yaml:"debounceMs"`
	PollIntervalMs int               `json:"pollIntervalMs,omitempty" yaml:"pollIntervalMs"`
	Env            map[string]string `json:"env,omitempty" yaml:"env"`
	DryRun         bool              `json:"dryRun,omitempty" yaml:"dryRun"`
	Content        ContentLimits     `json:"content,omitempty" yaml:"content"`
}

// ContentLimits overrides the body-size thresholds used when deciding
// how much of a file accompanies the prompt. Zero fields keep the
// built-in defaults.
type ContentLimits struct {
	FullTextMaxBytes    int64 `json:"fullTextMaxBytes,omitempty" yaml:"fullTextMaxBytes"`
	PartialTextMaxBytes int64 `json:"partialTextMaxBytes,omitempty" yaml:"partialTextMaxBytes"`
	ImageMaxBytes       int64 `json:"imageMaxBytes,omitempty" yaml:"imageMaxBytes"`
	PDFMaxBytes         int64 `json:"pdfMaxBytes,omitempty" yaml:"pdfMaxBytes"`
	AudioMaxBytes       int64 `json:"audioMaxBytes,omitempty" yaml:"audioMaxBytes"`
	VideoMaxBytes       int64 `json:"videoMaxBytes,omitempty" yaml:"videoMaxBytes"`
	HeadLines           int   `json:"headLines,omitempty" yaml:"headLines"`
	TailLines           int   `json:"tailLines,omitempty" yaml:"tailLines"`
}

func (l ContentLimits) validate() error {
	values := []int64{
		l.FullTextMaxBytes, l.PartialTextMaxBytes, l.ImageMaxBytes,
		l.PDFMaxBytes, l.AudioMaxBytes, l.VideoMaxBytes,
		int64(l.HeadLines), int64(l.TailLines),
	}
	for _, v := range values {
		if v < 0 {
			return fmt.Errorf("globalDefaults.content: thresholds must not be negative")
		}
	}
	return nil
}

// File is the raw config file shape.
type File struct {
	AI                  AIConfig       `json:"ai" yaml:"ai"`
	Folders             []FolderEntry  `json:"folders,omitempty" yaml:"folders"`
	RootDirectories     []string       `json:"rootDirectories,omitempty" yaml:"rootDirectories"`
	GlobalDefaults      GlobalDefaults `json:"globalDefaults,omitempty" yaml:"globalDefaults"`
	DiscoveryIntervalMs int            `json:"discoveryIntervalMs,omitempty" yaml:"discoveryIntervalMs"`
}

// FolderSpec is a normalized watched-folder description. One per
// watched directory; everything downstream consumes this shape.
type FolderSpec struct {
	Path         string
	Prompt       string
	Tools        []string
	IgnoreGlobs  []string
	Debounce     time.Duration
	PollInterval time.Duration
	Env          map[string]string
	DryRun       bool
	StateDir     string
	HistoryPath  string
}

// Config is the normalized configuration the supervisor runs on.
type Config struct {
	AI                AIConfig
	Folders           []FolderSpec
	RootDirectories   []string
	GlobalDefaults    GlobalDefaults
	DiscoveryInterval time.Duration
}

// Load reads, expands, validates, and normalizes a config file. The
// format is chosen by extension: .yaml/.yml parse as YAML, everything
// else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var file File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	return Normalize(&file)
}

// Normalize expands env tokens, validates the raw file, and produces
// the normalized Config.
func Normalize(file *File) (*Config, error) {
	if err := expandFile(file); err != nil {
		return nil, err
	}
	if err := validate(file); err != nil {
		return nil, err
	}

	cfg := &Config{
		AI:                file.AI,
		RootDirectories:   file.RootDirectories,
		GlobalDefaults:    file.GlobalDefaults,
		DiscoveryInterval: time.Duration(file.DiscoveryIntervalMs) * time.Millisecond,
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = DefaultProvider
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = DefaultModel
	}
	if cfg.AI.MaxToolCalls <= 0 {
		cfg.AI.MaxToolCalls = DefaultMaxToolCalls
	}
	if cfg.AI.Temperature == 0 {
		cfg.AI.Temperature = DefaultTemperature
	}
	if len(cfg.AI.DefaultTools) == 0 {
		cfg.AI.DefaultTools = AllTools()
	}
	if cfg.DiscoveryInterval <= 0 {
		cfg.DiscoveryInterval = DefaultDiscoveryInterval * time.Millisecond
	}

	for _, entry := range file.Folders {
		spec, err := NewFolderSpec(entry, cfg)
		if err != nil {
			return nil, err
		}
		cfg.Folders = append(cfg.Folders, *spec)
	}

	for i, root := range cfg.RootDirectories {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve root directory %q: %w", root, err)
		}
		cfg.RootDirectories[i] = abs
	}

	return cfg, nil
}

// NewFolderSpec normalizes one folder entry against the config's
// defaults. Discovery uses it too, with a synthetic entry built from a
// smartfolder.md file.
func NewFolderSpec(entry FolderEntry, cfg *Config) (*FolderSpec, error) {
	if entry.Path == "" {
		return nil, fmt.Errorf("folder entry missing path")
	}
	abs, err := filepath.Abs(entry.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve folder path %q: %w", entry.Path, err)
	}

	defaults := cfg.GlobalDefaults

	tools := entry.Tools
	if len(tools) == 0 {
		tools = defaults.Tools
	}
	if len(tools) == 0 {
		tools = cfg.AI.DefaultTools
	}
	for _, id := range tools {
		if !isKnownTool(id) {
			return nil, fmt.Errorf("folder %s: unknown tool %q", abs, id)
		}
	}

	ignore := append([]string{}, DefaultIgnoreGlobs()...)
	ignore = append(ignore, defaults.Ignore...)
	ignore = append(ignore, entry.Ignore...)

	debounceMs := entry.DebounceMs
	if debounceMs <= 0 {
		debounceMs = defaults.DebounceMs
	}
	if debounceMs <= 0 {
		debounceMs = DefaultDebounceMs
	}

	pollMs := entry.PollIntervalMs
	if pollMs <= 0 {
		pollMs = defaults.PollIntervalMs
	}

	env := map[string]string{}
	for k, v := range defaults.Env {
		env[k] = v
	}
	for k, v := range entry.Env {
		env[k] = v
	}

	dryRun := defaults.DryRun
	if entry.DryRun != nil {
		dryRun = *entry.DryRun
	}

	return &FolderSpec{
		Path:         abs,
		Prompt:       entry.Prompt,
		Tools:        tools,
		IgnoreGlobs:  ignore,
		Debounce:     time.Duration(debounceMs) * time.Millisecond,
		PollInterval: time.Duration(pollMs) * time.Millisecond,
		Env:          env,
		DryRun:       dryRun,
		StateDir:     state.StateDir(abs),
		HistoryPath:  state.HistoryPath(abs),
	}, nil
}

func validate(file *File) error {
	hasFolders := len(file.Folders) > 0
	hasRoots := len(file.RootDirectories) > 0
	if hasFolders && hasRoots {
		return fmt.Errorf("config may set folders or rootDirectories, not both")
	}
	if !hasFolders && !hasRoots {
		return fmt.Errorf("config must set one of folders or rootDirectories")
	}
	if file.AI.Temperature < 0 || file.AI.Temperature > 2 {
		return fmt.Errorf("ai.temperature %v out of range [0, 2]", file.AI.Temperature)
	}
	if file.AI.MaxToolCalls < 0 {
		return fmt.Errorf("ai.maxToolCalls must not be negative")
	}
	for _, id := range file.AI.DefaultTools {
		if !isKnownTool(id) {
			return fmt.Errorf("ai.defaultTools: unknown tool %q", id)
		}
	}
	return file.GlobalDefaults.Content.validate()
}

func isKnownTool(id string) bool {
	for _, known := range AllTools() {
		if id == known {
			return true
		}
	}
	return false
}

// envTokenRe matches $NAME and ${NAME} tokens in config strings.
var envTokenRe = regexp.MustCompile(`\$\{?([A-Za-z_][A-Za-z0-9_]*)\}?`)

// ExpandEnv substitutes whitelisted $NAME tokens in s. A reference to
// any other variable fails with [*EnvVarNotAllowedError].
func ExpandEnv(s string) (string, error) {
	var expandErr error
	out := envTokenRe.ReplaceAllStringFunc(s, func(token string) string {
		name := envTokenRe.FindStringSubmatch(token)[1]
		if !envWhitelist[name] {
			if expandErr == nil {
				expandErr = &EnvVarNotAllowedError{Name: name}
			}
			return token
		}
		return os.Getenv(name)
	})
	if expandErr != nil {
		return "", expandErr
	}
	return out, nil
}

// expandFile applies ExpandEnv to every string field that may carry a
// $NAME token. Prompts are exempt: their text goes to the model, not
// the environment.
func expandFile(file *File) error {
	fields := []*string{&file.AI.APIKey, &file.AI.BaseURL}
	for i := range file.Folders {
		fields = append(fields, &file.Folders[i].Path)
		for k := range file.Folders[i].Env {
			expanded, err := ExpandEnv(file.Folders[i].Env[k])
			if err != nil {
				return err
			}
			file.Folders[i].Env[k] = expanded
		}
	}
	for i := range file.RootDirectories {
		fields = append(fields, &file.RootDirectories[i])
	}
	for k := range file.GlobalDefaults.Env {
		expanded, err := ExpandEnv(file.GlobalDefaults.Env[k])
		if err != nil {
			return err
		}
		file.GlobalDefaults.Env[k] = expanded
	}

	for _, f := range fields {
		expanded, err := ExpandEnv(*f)
		if err != nil {
			return err
		}
		*f = expanded
	}
	return nil
}

// ResolveAPIKey returns the gateway credential: the config value if
// set, then AI_GATEWAY_API_KEY, then the token file fallback.
func ResolveAPIKey(cfg *Config) (string, error) {
	if cfg.AI.APIKey != "" {
		return cfg.AI.APIKey, nil
	}
	if key := os.Getenv("AI_GATEWAY_API_KEY"); key != "" {
		return key, nil
	}
	token, err := state.ReadToken()
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", fmt.Errorf("no API key: set AI_GATEWAY_API_KEY or create %s", state.TokenPath())
	}
	return token, nil
}
