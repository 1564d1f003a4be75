package assets

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"maps"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

const defaultIndexTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{ .Title }}</title>
{{- range .Styles }}
<link rel="stylesheet" href="{{ . }}">
{{- end }}
</head>
<body>
<script>window.__ASSETS__ = {{ marshal .Assets | rawjs }}</script>
{{- range .Scripts }}
<script src="{{ . }}"></script>
{{- end }}
</body>
</html>
`

// IndexPage renders an HTML shell that loads the entry artifacts of a manifest.
type IndexPage struct {
	title string
	tmpl  *template.Template
}

// NewIndexPage creates an index page from the built-in template
func NewIndexPage(title string) *IndexPage {
	p, err := newIndexPage(title, "index", defaultIndexTemplate, nil)
	if err != nil {
		panic(err)
	}
	return p
}

// NewIndexPageFromFile loads a custom template with optional extra functions
func NewIndexPageFromFile(title, templatePath string, customFuncs template.FuncMap) (*IndexPage, error) {
	src, err := os.ReadFile(templatePath)
	if err != nil {
		return nil, err
	}
	return newIndexPage(title, templatePath, string(src), customFuncs)
}

func newIndexPage(title, name, src string, customFuncs template.FuncMap) (*IndexPage, error) {
	funcs := template.FuncMap{
		"marshal": marshal,
		"safe": func(s string) template.HTML {
			return template.HTML(s) //nolint:gosec
		},
		"rawjs": func(s string) template.JS {
			return template.JS(s) //nolint:gosec
		},
	}

	// Merge custom functions
	maps.Copy(funcs, customFuncs)

	tmpl, err := template.New(name).Funcs(funcs).Parse(src)
	if err != nil {
		return nil, err
	}
	return &IndexPage{title: title, tmpl: tmpl}, nil
}

// Render writes the page for the given manifest.
func (p *IndexPage) Render(w io.Writer, m *Manifest, publicPath string) error {
	if m == nil {
		return errors.New("assets not built yet")
	}

	var scripts, styles []string
	for _, a := range m.Artifacts() {
		switch a.Kind {
		case transform.KindScript:
			scripts = append(scripts, URL(publicPath, a.FileName))
		case transform.KindStyle:
			styles = append(styles, URL(publicPath, a.FileName))
		}
	}

	data := map[string]any{
		"Title":   p.title,
		"Scripts": scripts,
		"Styles":  styles,
		"Assets":  m.Files(publicPath),
	}
	return p.tmpl.Execute(w, data)
}

// Handler returns an http.HandlerFunc rendering the page for the current manifest
func (p *IndexPage) Handler(current func() *Manifest, publicPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := p.Render(&buf, current(), publicPath); err != nil {
			log.Error().Err(err).Msg("Failed to render index")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(buf.Bytes())
	}
}

func marshal(value any) string {
	buf := new(bytes.Buffer)

	if err := json.NewEncoder(buf).Encode(value); err != nil {
		panic(errors.New("context can only be json serializable"))
	}

	return buf.String()
}
