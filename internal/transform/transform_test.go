package transform

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// resolverFor serves style imports from an in-memory set of files, running
// the style compiler on each like the executor would.
func resolverFor(files map[string]string) ResolveFunc {
	var resolve ResolveFunc
	resolve = func(ctx context.Context, p string) (*Asset, error) {
		src, ok := files[p]
		if !ok {
			return nil, fmt.Errorf("read %s: %w", p, fs.ErrNotExist)
		}
		env := &Env{Resolve: resolve}
		return (&StyleCompiler{}).Apply(ctx, env, &Asset{Path: p, Contents: []byte(src)}, nil)
	}
	return resolve
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, []string{"style-compiler", "extract-to-file", "text-embedder", "transpiler", "passthrough"}, r.Names())

	s, err := r.Lookup("transpiler")
	require.NoError(t, err)
	require.Equal(t, "transpiler", s.Name())

	_, err = r.Lookup("elm")
	require.Error(t, err)

	r.Register(&Passthrough{})
	require.Len(t, r.Names(), 5)
}

func TestStyleCompilerInlinesImports(t *testing.T) {
	files := map[string]string{
		"src/_vars.scss":      ".vars { color: red; }",
		"src/base/reset.css":  "html { margin: 0; }",
		"src/styles.scss":     "",
		"src/theme/dark.scss": "@import \"../base/reset.css\";\n.dark { color: black; }",
	}
	env := &Env{Resolve: resolverFor(files)}
	src := "@import url(https://fonts.example.com/font.css);\n@import \"vars\";\n@import url(\"theme/dark.scss\");\n// comment\nbody { color: blue; }\n"

	out, err := (&StyleCompiler{}).Apply(context.Background(), env, &Asset{Path: "src/styles.scss", Contents: []byte(src)}, nil)
	require.NoError(t, err)
	require.Equal(t, KindStyle, out.Kind)

	css := string(out.Contents)
	require.Contains(t, css, ".vars")
	require.Contains(t, css, "html")
	require.Contains(t, css, ".dark")
	require.Contains(t, css, "body")
	require.Contains(t, css, "fonts.example.com")
	require.NotContains(t, css, "comment")
	require.Less(t, strings.Index(css, ".vars"), strings.Index(css, "body"))

	require.Equal(t, []string{"src/_vars.scss", "src/theme/dark.scss", "src/base/reset.css"}, out.Deps)
	require.True(t, strings.HasPrefix(string(out.Module), "__assetpipe.style("))
}

func TestStyleCompilerErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "missing import", src: `@import "missing";`},
		{name: "unterminated statement", src: `@import "vars"`},
		{name: "unterminated string", src: `@import "vars;`},
		{name: "unquoted target", src: `@import vars;`},
		{name: "empty target", src: `@import "";`},
		{name: "unterminated url", src: `@import url("vars";`},
	}

	env := &Env{Resolve: resolverFor(map[string]string{"src/_vars.scss": ".a{}"})}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&StyleCompiler{}).Apply(context.Background(), env, &Asset{Path: "src/styles.scss", Contents: []byte(tt.src)}, nil)
			require.ErrorIs(t, err, ErrMalformedInput)
		})
	}
}

func TestStyleCompilerDetectsCycles(t *testing.T) {
	files := map[string]string{
		"a.scss": `@import "b";`,
		"b.scss": `@import "a";`,
	}
	env := &Env{Resolve: resolverFor(files)}

	_, err := (&StyleCompiler{}).Apply(context.Background(), env, &Asset{Path: "a.scss", Contents: []byte(files["a.scss"])}, nil)
	require.ErrorIs(t, err, ErrMalformedInput)
	require.Contains(t, err.Error(), "import cycle")
}

func TestStyleCompilerMinifies(t *testing.T) {
	env := &Env{Minify: true}
	out, err := (&StyleCompiler{}).Apply(context.Background(), env, &Asset{Path: "a.css", Contents: []byte("body {\n  color: red;\n}\n")}, nil)
	require.NoError(t, err)
	require.Equal(t, "body{color:red}\n", string(out.Contents))
}

func TestExtractToFile(t *testing.T) {
	out, err := (&ExtractToFile{}).Apply(context.Background(), &Env{}, &Asset{Path: "a.css", Kind: KindStyle, Contents: []byte("a{}")}, Options{"chunk": true})
	require.NoError(t, err)
	require.True(t, out.Extract)
	require.True(t, out.Chunk)
	require.Equal(t, "a{}", string(out.Contents))

	_, err = (&ExtractToFile{}).Apply(context.Background(), &Env{}, &Asset{Path: "a.css", Kind: KindFile}, nil)
	require.ErrorIs(t, err, ErrMalformedInput)
}

func TestTextEmbedder(t *testing.T) {
	out, err := (&TextEmbedder{}).Apply(context.Background(), &Env{}, &Asset{Path: "README.md", Contents: []byte("# Title\n\"quoted\"")}, nil)
	require.NoError(t, err)
	require.Equal(t, KindScript, out.Kind)
	require.Equal(t, "module.exports = \"# Title\\n\\\"quoted\\\"\";\n", string(out.Contents))

	_, err = (&TextEmbedder{}).Apply(context.Background(), &Env{}, &Asset{Path: "bin.md", Contents: []byte{0xff, 0xfe}}, nil)
	require.ErrorIs(t, err, ErrMalformedInput)
}

func TestPassthrough(t *testing.T) {
	data := []byte{0x89, 'P', 'N', 'G'}
	out, err := (&Passthrough{}).Apply(context.Background(), &Env{PublicPath: "/static/"}, &Asset{Path: "assets/icon.svg?v=1.0.0", Contents: data}, nil)
	require.NoError(t, err)
	require.Equal(t, KindFile, out.Kind)
	require.Equal(t, data, out.Contents)
	require.Equal(t, "module.exports = \"/static/assets/icon.svg?v=1.0.0\";\n", string(out.Module))
}

func TestTranspiler(t *testing.T) {
	src := "import \"./styles.scss\";\nimport { x } from \"../lib/util\";\nimport React from \"react\";\nconst n: number = x;\nexport default n;\n"

	out, err := (&Transpiler{}).Apply(context.Background(), &Env{}, &Asset{Path: "src/index.ts", Contents: []byte(src)}, nil)
	require.NoError(t, err)
	require.Equal(t, KindScript, out.Kind)
	require.NotContains(t, string(out.Contents), ": number")
	require.NotContains(t, string(out.Contents), "module.hot")
	require.Equal(t, []Import{
		{Specifier: "./styles.scss", Path: "src/styles.scss"},
		{Specifier: "../lib/util", Path: "lib/util"},
	}, out.Imports)
}

func TestTranspilerHotInstrumentation(t *testing.T) {
	in := &Asset{Path: "src/app.jsx", Contents: []byte("export const App = () => <div>hi</div>;\n")}

	out, err := (&Transpiler{}).Apply(context.Background(), &Env{Hot: true}, in, nil)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(out.Contents), hotFooter))

	out, err = (&Transpiler{}).Apply(context.Background(), &Env{Hot: true}, in, Options{"hot": false})
	require.NoError(t, err)
	require.NotContains(t, string(out.Contents), "module.hot")
}

func TestTranspilerErrors(t *testing.T) {
	_, err := (&Transpiler{}).Apply(context.Background(), &Env{}, &Asset{Path: "src/index.js", Contents: []byte("const = ;")}, nil)
	require.ErrorIs(t, err, ErrMalformedInput)

	_, err = (&Transpiler{}).Apply(context.Background(), &Env{}, &Asset{Path: "src/Main.elm", Contents: []byte("module Main")}, nil)
	require.Error(t, err)

	_, err = (&Transpiler{}).Apply(context.Background(), &Env{}, &Asset{Path: "src/index.js"}, Options{"target": "es3000"})
	require.Error(t, err)
}

func TestResolveRelative(t *testing.T) {
	require.Equal(t, "src/styles.scss", ResolveRelative("src/index.js", "./styles.scss"))
	require.Equal(t, "assets/icon.svg?v=1.0.0", ResolveRelative("src/index.js?x=1", "../assets/icon.svg?v=1.0.0"))
	require.Equal(t, "a.js", ResolveRelative("index.js", "./a.js"))
	require.Equal(t, "assets/icon.svg", StripQuery("assets/icon.svg?v=1.0.0"))
	require.True(t, IsRelative("../x"))
	require.False(t, IsRelative("react"))
}
