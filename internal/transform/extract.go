package transform

import (
	"context"
	"fmt"
)

// ExtractToFile moves a compiled style out of the script bundle into a CSS artifact.
type ExtractToFile struct{}

func (e *ExtractToFile) Name() string { return "extract-to-file" }

func (e *ExtractToFile) Apply(_ context.Context, _ *Env, in *Asset, opts Options) (*Asset, error) {
	if in.Kind != KindStyle {
		return nil, fmt.Errorf("%w: %s is not a stylesheet, run style-compiler first", ErrMalformedInput, in.Path)
	}

	out := in.Clone()
	out.Extract = true
	out.Chunk = opts.Bool("chunk", false)
	out.Module = []byte("// extracted\n")
	return out, nil
}
