package assets

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

func TestName(t *testing.T) {
	contents := []byte("console.log(1)")
	hash := ContentHash(contents)

	tests := []struct {
		name     string
		logical  string
		kind     transform.Kind
		mode     Mode
		chunk    bool
		expected string
	}{
		{name: "dev script", logical: "index", kind: transform.KindScript, mode: ModeDevelopment, expected: "index.js"},
		{name: "prod script", logical: "index", kind: transform.KindScript, mode: ModeProduction, expected: "index-" + hash + ".js"},
		{name: "dev style", logical: "index", kind: transform.KindStyle, mode: ModeDevelopment, expected: "index.css"},
		{name: "prod style", logical: "index", kind: transform.KindStyle, mode: ModeProduction, expected: "index.css"},
		{name: "prod chunk", logical: "src_print", kind: transform.KindStyle, mode: ModeProduction, chunk: true, expected: "src_print.css"},
		{name: "file", logical: "assets/icon.svg", kind: transform.KindFile, mode: ModeProduction, expected: "assets/icon.svg"},
		{name: "file with query", logical: "assets/icon.svg?v=1.0.0", kind: transform.KindFile, mode: ModeDevelopment, expected: "assets/icon.svg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, Name(tt.logical, tt.kind, tt.mode, contents, tt.chunk))
		})
	}
}

func TestContentHashDeterminism(t *testing.T) {
	inputs := [][]byte{
		[]byte(""),
		[]byte("a"),
		[]byte("b"),
		[]byte("console.log(1)"),
		[]byte("console.log(1) "),
	}

	for i, a := range inputs {
		for j, b := range inputs {
			same := Name("index", transform.KindScript, ModeProduction, a, false) ==
				Name("index", transform.KindScript, ModeProduction, b, false)
			require.Equal(t, i == j, same, "inputs %d and %d", i, j)
		}
	}

	require.Equal(t, ContentHash([]byte("x")), ContentHash([]byte("x")))
}

func TestChunkID(t *testing.T) {
	require.Equal(t, "src_print", ChunkID("src/print.css"))
	require.Equal(t, "styles_theme_dark", ChunkID("styles/theme.dark.scss?v=1"))
}
