package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/wolfeidau/assetpipe/internal/assets"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

const (
	// DefaultFile is looked up in the working directory when no config is given
	DefaultFile = "assetpipe.yaml"

	defaultPort     = 9001
	defaultDebounce = 100 * time.Millisecond
)

// Duration decodes "100ms" style strings from both YAML and TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// StepConfig names a transform step and its options.
type StepConfig struct {
	Step    string         `yaml:"step" toml:"step"`
	Options map[string]any `yaml:"options,omitempty" toml:"options,omitempty"`
}

// RuleConfig is the declarative form of an assets.Rule.
type RuleConfig struct {
	Test    string       `yaml:"test" toml:"test"`
	Exclude []string     `yaml:"exclude,omitempty" toml:"exclude,omitempty"`
	Use     []StepConfig `yaml:"use" toml:"use"`
}

// DevServerConfig configures `assetpipe dev`.
type DevServerConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
	// Hot instruments scripts and injects the live-reload client
	Hot *bool `yaml:"hot" toml:"hot"`
	// FallbackToIndex serves index.html for unknown paths
	FallbackToIndex *bool `yaml:"fallbackToIndex" toml:"fallbackToIndex"`
	// ContentBase is the directory static files and index.html are served from
	ContentBase string   `yaml:"contentBase" toml:"contentBase"`
	Debounce    Duration `yaml:"debounce" toml:"debounce"`
	// IndexTemplate optionally replaces the built-in index page template
	IndexTemplate string `yaml:"indexTemplate,omitempty" toml:"indexTemplate,omitempty"`
	Title         string `yaml:"title" toml:"title"`
}

// Config models assetpipe.yaml (or assetpipe.toml).
type Config struct {
	SourceRoot     string              `yaml:"sourceRoot" toml:"sourceRoot"`
	EntryPoints    map[string][]string `yaml:"entryPoints" toml:"entryPoints"`
	OutputRoot     string              `yaml:"outputRoot" toml:"outputRoot"`
	PublicBasePath string              `yaml:"publicBasePath" toml:"publicBasePath"`
	Strict         bool                `yaml:"strict" toml:"strict"`
	Concurrency    int                 `yaml:"concurrency,omitempty" toml:"concurrency,omitempty"`
	Rules          []RuleConfig        `yaml:"rules" toml:"rules"`
	DevServer      DevServerConfig     `yaml:"devServer" toml:"devServer"`

	// dir relative paths are resolved against, the config file's directory
	dir string
}

// DefaultRules mirror the stock project layout: sass and css extracted to a
// stylesheet, markdown embedded as text, script dialects transpiled and icons
// copied.
func DefaultRules() []RuleConfig {
	return []RuleConfig{
		{
			Test: `\.(scss|css)$`,
			Use:  []StepConfig{{Step: "style-compiler"}, {Step: "extract-to-file"}},
		},
		{
			Test: `\.md$`,
			Use:  []StepConfig{{Step: "text-embedder"}},
		},
		{
			Test:    `\.(ts|tsx|jsx)$`,
			Exclude: []string{`node_modules`},
			Use:     []StepConfig{{Step: "transpiler", Options: map[string]any{"target": "es2020"}}},
		},
		{
			Test:    `\.(js|mjs|cjs)$`,
			Exclude: []string{`node_modules`},
			Use:     []StepConfig{{Step: "transpiler"}},
		},
		{
			Test: `\.(ico|svg)(\?v=[0-9]\.[0-9]\.[0-9])?$`,
			Use:  []StepConfig{{Step: "passthrough"}},
		},
	}
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML or TOML config file, chosen by extension, and fills in
// defaults for everything it leaves out.
func Load(path string) (*Config, error) {
	logger := log.With().Str("configPath", path).Logger()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, &assets.ConfigError{Field: "file", Err: fmt.Errorf("failed to parse TOML: %w", err)}
		}
	case ".yaml", ".yml", ".json":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &assets.ConfigError{Field: "file", Err: fmt.Errorf("failed to parse YAML: %w", err)}
		}
	default:
		return nil, &assets.ConfigError{Field: "file", Err: fmt.Errorf("unsupported config format %q", filepath.Ext(path))}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	cfg.dir = filepath.Dir(abs)
	cfg.applyDefaults()

	logger.Debug().
		Int("entry_points", len(cfg.EntryPoints)).
		Int("rules", len(cfg.Rules)).
		Msg("Config loaded")

	return cfg, nil
}

// LoadOrDefault loads path, falling back to Default when the file is absent.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info().Str("configPath", path).Msg("No config file found, using defaults")
		return Default(), nil
	}
	return cfg, err
}

func (c *Config) applyDefaults() {
	if c.dir == "" {
		c.dir = "."
	}
	if c.SourceRoot == "" {
		c.SourceRoot = "."
	}
	if len(c.EntryPoints) == 0 {
		c.EntryPoints = map[string][]string{"index": {"./src/index.js"}}
	}
	if c.OutputRoot == "" {
		c.OutputRoot = "public"
	}
	if c.PublicBasePath == "" {
		c.PublicBasePath = "/"
	}
	if !strings.HasSuffix(c.PublicBasePath, "/") {
		c.PublicBasePath += "/"
	}
	if c.Rules == nil {
		c.Rules = DefaultRules()
	}

	ds := &c.DevServer
	if ds.Host == "" {
		ds.Host = "localhost"
	}
	if ds.Port == 0 {
		ds.Port = defaultPort
	}
	if ds.Hot == nil {
		ds.Hot = ptr(true)
	}
	if ds.FallbackToIndex == nil {
		ds.FallbackToIndex = ptr(true)
	}
	if ds.ContentBase == "" {
		ds.ContentBase = "."
	}
	if ds.Debounce <= 0 {
		ds.Debounce = Duration(defaultDebounce)
	}
	if ds.Title == "" {
		ds.Title = "assetpipe"
	}
}

// Path resolves p against the directory of the config file.
func (c *Config) Path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dir, p)
}

// SourceDir is the absolute source root.
func (c *Config) SourceDir() string { return c.Path(c.SourceRoot) }

// OutputDir is the absolute output root.
func (c *Config) OutputDir() string { return c.Path(c.OutputRoot) }

// ContentDir is the directory the dev server serves static files from.
func (c *Config) ContentDir() string { return c.Path(c.DevServer.ContentBase) }

// HotEnabled reports whether live reload is on.
func (c *Config) HotEnabled() bool { return c.DevServer.Hot != nil && *c.DevServer.Hot }

// FallbackToIndex reports whether unknown paths serve index.html.
func (c *Config) FallbackToIndex() bool {
	return c.DevServer.FallbackToIndex != nil && *c.DevServer.FallbackToIndex
}

// Debounce is the watcher quiet period.
func (c *Config) Debounce() time.Duration { return time.Duration(c.DevServer.Debounce) }

// Entries returns the entry points sorted by name.
func (c *Config) Entries() []assets.EntryPoint {
	names := make([]string, 0, len(c.EntryPoints))
	for name := range c.EntryPoints {
		names = append(names, name)
	}
	slices.Sort(names)

	entries := make([]assets.EntryPoint, 0, len(names))
	for _, name := range names {
		entries = append(entries, assets.EntryPoint{Name: name, Files: slices.Clone(c.EntryPoints[name])})
	}
	return entries
}

// CompileRules turns the declared rules into matchable assets.Rules.
func (c *Config) CompileRules() ([]assets.Rule, error) {
	rules := make([]assets.Rule, 0, len(c.Rules))
	for i, rc := range c.Rules {
		test, err := regexp.Compile(rc.Test)
		if err != nil {
			return nil, &assets.ConfigError{Field: fmt.Sprintf("rules[%d].test", i), Err: err}
		}

		rule := assets.Rule{Test: test}
		for j, ex := range rc.Exclude {
			re, err := regexp.Compile(ex)
			if err != nil {
				return nil, &assets.ConfigError{Field: fmt.Sprintf("rules[%d].exclude[%d]", i, j), Err: err}
			}
			rule.Exclude = append(rule.Exclude, re)
		}
		for _, sc := range rc.Use {
			rule.Use = append(rule.Use, assets.StepRef{Step: sc.Step, Options: transform.Options(sc.Options)})
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// BuildOptions converts the config into builder options for mode.
func (c *Config) BuildOptions(mode assets.Mode) (assets.Options, error) {
	rules, err := c.CompileRules()
	if err != nil {
		return assets.Options{}, err
	}

	src := c.SourceDir()
	info, err := os.Stat(src)
	if err != nil {
		return assets.Options{}, &assets.ConfigError{Field: "sourceRoot", Err: err}
	}
	if !info.IsDir() {
		return assets.Options{}, &assets.ConfigError{Field: "sourceRoot", Err: fmt.Errorf("%s is not a directory", src)}
	}

	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	return assets.Options{
		SourceFS:    os.DirFS(src),
		EntryPoints: c.Entries(),
		Rules:       rules,
		Strict:      c.Strict,
		OutputDir:   c.OutputDir(),
		PublicPath:  c.PublicBasePath,
		Mode:        mode,
		Hot:         mode == assets.ModeDevelopment && c.HotEnabled(),
		Concurrency: concurrency,
	}, nil
}

func ptr[T any](v T) *T { return &v }
