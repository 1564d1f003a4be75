package transform

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

var requirePattern = regexp.MustCompile(`\brequire\("([^"]+)"\)`)

const hotFooter = "if (module.hot) {\n  module.hot.accept();\n}\n"

var loaders = map[string]api.Loader{
	"js":  api.LoaderJS,
	"mjs": api.LoaderJS,
	"cjs": api.LoaderJS,
	"jsx": api.LoaderJSX,
	"ts":  api.LoaderTS,
	"mts": api.LoaderTS,
	"tsx": api.LoaderTSX,
}

var targets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// Transpiler compiles JS dialects to CommonJS modules with esbuild.
type Transpiler struct{}

func (t *Transpiler) Name() string { return "transpiler" }

func (t *Transpiler) Apply(_ context.Context, env *Env, in *Asset, opts Options) (*Asset, error) {
	ext := strings.TrimPrefix(path.Ext(StripQuery(in.Path)), ".")
	loader, ok := loaders[opts.String("loader", ext)]
	if !ok {
		return nil, fmt.Errorf("no loader for %q, set the loader option", in.Path)
	}

	target, ok := targets[opts.String("target", "es2020")]
	if !ok {
		return nil, fmt.Errorf("unsupported target %q", opts.String("target", ""))
	}

	result := api.Transform(string(in.Contents), api.TransformOptions{
		Loader:            loader,
		Format:            api.FormatCommonJS,
		Target:            target,
		Sourcefile:        in.Path,
		MinifyWhitespace:  env.Minify,
		MinifyIdentifiers: env.Minify,
		MinifySyntax:      env.Minify,
	})
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMalformedInput, messages(result.Errors))
	}

	out := in.Clone()
	out.Kind = KindScript
	out.Module = nil
	out.Contents = result.Code
	if env.Hot && opts.Bool("hot", true) {
		out.Contents = append(out.Contents, []byte(hotFooter)...)
	}
	out.Imports = scanRequires(in.Path, out.Contents)
	return out, nil
}

// scanRequires collects relative require calls in first appearance order.
func scanRequires(from string, code []byte) []Import {
	var imports []Import
	seen := map[string]bool{}
	for _, m := range requirePattern.FindAllSubmatch(code, -1) {
		spec := string(m[1])
		if !IsRelative(spec) || seen[spec] {
			continue
		}
		seen[spec] = true
		imports = append(imports, Import{Specifier: spec, Path: ResolveRelative(from, spec)})
	}
	return imports
}
