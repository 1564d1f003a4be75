package assets

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

func testManifest() *Manifest {
	m := NewManifest()
	m.Put(&Artifact{LogicalName: "index", Kind: transform.KindScript, FileName: "index-abc.js", Entry: "index"})
	m.Put(&Artifact{LogicalName: "index", Kind: transform.KindStyle, FileName: "index.css", Entry: "index"})
	m.Put(&Artifact{LogicalName: "assets/icon.svg", Kind: transform.KindFile, FileName: "assets/icon.svg", Entry: "index"})
	return m
}

func TestIndexPageRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewIndexPage("demo").Render(&buf, testManifest(), "/static/"))

	html := buf.String()
	require.Contains(t, html, "<title>demo</title>")
	require.Contains(t, html, `<script src="/static/index-abc.js"></script>`)
	require.Contains(t, html, `<link rel="stylesheet" href="/static/index.css">`)
	require.Contains(t, html, `"assets/icon.svg":"/static/assets/icon.svg"`)
}

func TestIndexPageHandler(t *testing.T) {
	page := NewIndexPage("demo")

	w := httptest.NewRecorder()
	page.Handler(testManifest, "/")(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))

	w = httptest.NewRecorder()
	page.Handler(func() *Manifest { return nil }, "/")(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestManifestPutReplacesKeepingOrder(t *testing.T) {
	m := testManifest()
	m.Put(&Artifact{LogicalName: "index", Kind: transform.KindScript, FileName: "index-def.js", Entry: "index"})

	require.Equal(t, []string{"index.js", "index.css", "assets/icon.svg"}, m.Keys())
	_, ok := m.Lookup("index-abc.js")
	require.False(t, ok)
	a, ok := m.Lookup("index-def.js")
	require.True(t, ok)
	require.Equal(t, "index.js", a.Key())
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeDevelopment, "dev": ModeDevelopment, "production": ModeProduction, "PROD": ModeProduction} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseMode("staging")
	require.Error(t, err)
}
