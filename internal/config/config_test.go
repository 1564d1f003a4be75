package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/assetpipe/internal/assets"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o600))
	return p
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.Equal(t, ".", cfg.SourceRoot)
	require.Equal(t, "public", cfg.OutputRoot)
	require.Equal(t, "/", cfg.PublicBasePath)
	require.Equal(t, []assets.EntryPoint{{Name: "index", Files: []string{"./src/index.js"}}}, cfg.Entries())
	require.Equal(t, 9001, cfg.DevServer.Port)
	require.True(t, cfg.HotEnabled())
	require.True(t, cfg.FallbackToIndex())
	require.Equal(t, 100*time.Millisecond, cfg.Debounce())

	rules, err := cfg.CompileRules()
	require.NoError(t, err)
	require.Len(t, rules, 5)

	tests := []struct {
		path string
		want []string
	}{
		{path: "src/styles.scss", want: []string{"style-compiler", "extract-to-file"}},
		{path: "src/README.md", want: []string{"text-embedder"}},
		{path: "src/app.tsx", want: []string{"transpiler"}},
		{path: "src/index.js", want: []string{"transpiler"}},
		{path: "assets/icon.svg?v=1.0.0", want: []string{"passthrough"}},
		{path: "node_modules/lib/index.js", want: nil},
		{path: "assets/icon.svg?v=10.0.0", want: nil},
	}
	m := assets.NewMatcher(rules, false)
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var got []string
			for _, r := range m.Match(tt.path) {
				for _, ref := range r.Use {
					got = append(got, ref.Step)
				}
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "assetpipe.yaml", `
sourceRoot: web
outputRoot: dist
publicBasePath: /static
strict: true
entryPoints:
  main: [./src/main.ts]
  admin: [./src/admin.js, ./src/admin.scss]
rules:
  - test: '\.ts$'
    exclude: ['vendor']
    use:
      - step: transpiler
        options:
          target: es2017
          hot: false
devServer:
  port: 8080
  hot: false
  debounce: 250ms
`)

	cfg, err := Load(p)
	require.NoError(t, err)

	require.Equal(t, filepath.Join(dir, "web"), cfg.SourceDir())
	require.Equal(t, filepath.Join(dir, "dist"), cfg.OutputDir())
	require.Equal(t, "/static/", cfg.PublicBasePath)
	require.True(t, cfg.Strict)
	require.Equal(t, []assets.EntryPoint{
		{Name: "admin", Files: []string{"./src/admin.js", "./src/admin.scss"}},
		{Name: "main", Files: []string{"./src/main.ts"}},
	}, cfg.Entries())

	require.Equal(t, 8080, cfg.DevServer.Port)
	require.False(t, cfg.HotEnabled())
	require.True(t, cfg.FallbackToIndex())
	require.Equal(t, 250*time.Millisecond, cfg.Debounce())

	rules, err := cfg.CompileRules()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.True(t, rules[0].Matches("src/main.ts"))
	require.False(t, rules[0].Matches("vendor/lib.ts"))
	require.Equal(t, "es2017", rules[0].Use[0].Options.String("target", ""))
	require.False(t, rules[0].Use[0].Options.Bool("hot", true))
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "assetpipe.toml", `
outputRoot = "build"

[entryPoints]
index = ["./src/index.js"]

[[rules]]
test = '\.md$'
use = [{ step = "text-embedder" }]

[devServer]
port = 3000
debounce = "50ms"
fallbackToIndex = false
`)

	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "build"), cfg.OutputDir())
	require.Equal(t, 3000, cfg.DevServer.Port)
	require.Equal(t, 50*time.Millisecond, cfg.Debounce())
	require.False(t, cfg.FallbackToIndex())
	require.True(t, cfg.HotEnabled())
	require.Len(t, cfg.Rules, 1)
	require.Equal(t, "text-embedder", cfg.Rules[0].Use[0].Step)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeFile(t, dir, "bad.yaml", "rules: [\n"))
	require.ErrorIs(t, err, assets.ErrConfig)

	_, err = Load(writeFile(t, dir, "bad.toml", "rules = \n"))
	require.ErrorIs(t, err, assets.ErrConfig)

	_, err = Load(writeFile(t, dir, "assetpipe.ini", "x=1"))
	require.ErrorIs(t, err, assets.ErrConfig)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), DefaultFile))
	require.NoError(t, err)
	require.Equal(t, "public", cfg.OutputRoot)
}

func TestCompileRulesInvalidPattern(t *testing.T) {
	cfg := Default()
	cfg.Rules = []RuleConfig{{Test: `\.(js`, Use: []StepConfig{{Step: "transpiler"}}}}

	_, err := cfg.CompileRules()
	var cerr *assets.ConfigError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, "rules[0].test", cerr.Field)

	cfg.Rules = []RuleConfig{{Test: `\.js$`, Exclude: []string{`[`}, Use: []StepConfig{{Step: "transpiler"}}}}
	_, err = cfg.CompileRules()
	require.ErrorIs(t, err, assets.ErrConfig)
}

func TestBuildOptions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/index.js", "console.log(1);\n")
	p := writeFile(t, dir, "assetpipe.yaml", "outputRoot: out\n")

	cfg, err := Load(p)
	require.NoError(t, err)

	opts, err := cfg.BuildOptions(assets.ModeDevelopment)
	require.NoError(t, err)
	require.True(t, opts.Hot)
	require.Equal(t, filepath.Join(dir, "out"), opts.OutputDir)
	require.Positive(t, opts.Concurrency)

	data, err := fs.ReadFile(opts.SourceFS, "src/index.js")
	require.NoError(t, err)
	require.Equal(t, "console.log(1);\n", string(data))

	opts, err = cfg.BuildOptions(assets.ModeProduction)
	require.NoError(t, err)
	require.False(t, opts.Hot)

	cfg.SourceRoot = "nope"
	_, err = cfg.BuildOptions(assets.ModeProduction)
	require.ErrorIs(t, err, assets.ErrConfig)
}
