package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// TextEmbedder exposes raw file content as a string module.
type TextEmbedder struct{}

func (t *TextEmbedder) Name() string { return "text-embedder" }

func (t *TextEmbedder) Apply(_ context.Context, _ *Env, in *Asset, _ Options) (*Asset, error) {
	if !utf8.Valid(in.Contents) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8 text", ErrMalformedInput, in.Path)
	}

	literal, err := json.Marshal(string(in.Contents))
	if err != nil {
		return nil, err
	}

	out := in.Clone()
	out.Kind = KindScript
	out.Contents = []byte("module.exports = " + string(literal) + ";\n")
	out.Module = nil
	return out, nil
}
