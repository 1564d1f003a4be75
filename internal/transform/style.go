package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// StyleCompiler inlines relative @import rules and lowers the result with esbuild.
type StyleCompiler struct{}

func (s *StyleCompiler) Name() string { return "style-compiler" }

func (s *StyleCompiler) Apply(ctx context.Context, env *Env, in *Asset, opts Options) (*Asset, error) {
	stack := importStack(ctx)
	for _, p := range stack {
		if p == in.Path {
			return nil, fmt.Errorf("%w: import cycle %s -> %s", ErrMalformedInput, strings.Join(stack, " -> "), in.Path)
		}
	}
	ctx = withImportStack(ctx, in.Path)

	out := in.Clone()
	src, deps, err := s.inline(ctx, env, in, opts)
	if err != nil {
		return nil, err
	}

	result := api.Transform(string(src), api.TransformOptions{
		Loader:            api.LoaderCSS,
		Sourcefile:        in.Path,
		MinifyWhitespace:  env.Minify,
		MinifySyntax:      env.Minify,
		MinifyIdentifiers: env.Minify,
	})
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMalformedInput, messages(result.Errors))
	}

	css := result.Code
	literal, err := json.Marshal(string(css))
	if err != nil {
		return nil, err
	}

	out.Kind = KindStyle
	out.Contents = css
	out.Module = []byte("__assetpipe.style(" + string(literal) + ");\n")
	out.Deps = append(out.Deps, deps...)
	return out, nil
}

// inline replaces every local @import with the resolved contents of its target.
func (s *StyleCompiler) inline(ctx context.Context, env *Env, in *Asset, opts Options) ([]byte, []string, error) {
	src := stripLineComments(in.Contents)
	var (
		buf  bytes.Buffer
		deps []string
	)

	for {
		idx := bytes.Index(src, []byte("@import"))
		if idx < 0 {
			buf.Write(src)
			break
		}
		buf.Write(src[:idx])

		end := bytes.IndexByte(src[idx:], ';')
		if end < 0 {
			return nil, nil, fmt.Errorf("%w: unterminated @import in %s", ErrMalformedInput, in.Path)
		}
		stmt := src[idx : idx+end+1]
		src = src[idx+end+1:]

		target, rest, err := parseImport(string(stmt))
		if err != nil {
			return nil, nil, fmt.Errorf("%w in %s", err, in.Path)
		}

		// Remote imports and imports with media queries are left to the browser.
		if isRemote(target) || rest != "" {
			buf.Write(stmt)
			continue
		}

		if env.Resolve == nil {
			return nil, nil, fmt.Errorf("cannot resolve @import %q without a resolver", target)
		}

		imported, err := s.resolve(ctx, env, in.Path, target, opts)
		if err != nil {
			return nil, nil, err
		}
		deps = append(deps, imported.Path)
		deps = append(deps, imported.Deps...)
		buf.Write(imported.Contents)
		buf.WriteByte('\n')
	}

	return buf.Bytes(), deps, nil
}

// resolve tries the sass style candidates for an extensionless import.
func (s *StyleCompiler) resolve(ctx context.Context, env *Env, from, target string, opts Options) (*Asset, error) {
	var candidates []string
	base := ResolveRelative(from, "./"+strings.TrimPrefix(target, "./"))
	if strings.HasPrefix(target, "../") {
		base = ResolveRelative(from, target)
	}

	if path.Ext(base) != "" {
		candidates = []string{base}
	} else {
		dir, file := path.Split(base)
		for _, ext := range strings.Split(opts.String("extensions", ".scss,.css"), ",") {
			candidates = append(candidates, base+ext, dir+"_"+file+ext)
		}
	}

	var lastErr error
	for _, c := range candidates {
		a, err := env.Resolve(ctx, c)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: cannot resolve @import %q from %s: %w", ErrMalformedInput, target, from, lastErr)
}

// parseImport extracts the target of an "@import ...;" statement and any
// trailing media query.
func parseImport(stmt string) (string, string, error) {
	body := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(stmt, "@import"), ";"))
	if body == "" {
		return "", "", fmt.Errorf("%w: empty @import", ErrMalformedInput)
	}

	if strings.HasPrefix(body, "url(") {
		end := strings.IndexByte(body, ')')
		if end < 0 {
			return "", "", fmt.Errorf("%w: unterminated url() in @import", ErrMalformedInput)
		}
		target := strings.Trim(strings.TrimSpace(body[4:end]), `"'`)
		if target == "" {
			return "", "", fmt.Errorf("%w: empty url() in @import", ErrMalformedInput)
		}
		return target, strings.TrimSpace(body[end+1:]), nil
	}

	quote := body[0]
	if quote != '"' && quote != '\'' {
		return "", "", fmt.Errorf("%w: @import target must be quoted: %s", ErrMalformedInput, body)
	}
	end := strings.IndexByte(body[1:], quote)
	if end < 0 {
		return "", "", fmt.Errorf("%w: unterminated string in @import", ErrMalformedInput)
	}
	target := body[1 : end+1]
	if target == "" {
		return "", "", fmt.Errorf("%w: empty @import target", ErrMalformedInput)
	}
	return target, strings.TrimSpace(body[end+2:]), nil
}

func isRemote(target string) bool {
	return strings.HasPrefix(target, "http://") ||
		strings.HasPrefix(target, "https://") ||
		strings.HasPrefix(target, "//")
}

// stripLineComments drops scss "//" comments that start a line.
func stripLineComments(src []byte) []byte {
	lines := bytes.Split(src, []byte("\n"))
	out := lines[:0]
	for _, line := range lines {
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte("//")) {
			continue
		}
		out = append(out, line)
	}
	return bytes.Join(out, []byte("\n"))
}

type importStackKey struct{}

func importStack(ctx context.Context) []string {
	s, _ := ctx.Value(importStackKey{}).([]string)
	return s
}

func withImportStack(ctx context.Context, p string) context.Context {
	stack := importStack(ctx)
	next := make([]string, 0, len(stack)+1)
	next = append(next, stack...)
	return context.WithValue(ctx, importStackKey{}, append(next, p))
}

func messages(msgs []api.Message) string {
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			texts = append(texts, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
			continue
		}
		texts = append(texts, m.Text)
	}
	return strings.Join(texts, "; ")
}
