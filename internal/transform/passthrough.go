package transform

import (
	"context"
	"encoding/json"
	"strings"
)

// Passthrough emits the source bytes unchanged as their own artifact.
type Passthrough struct{}

func (p *Passthrough) Name() string { return "passthrough" }

func (p *Passthrough) Apply(_ context.Context, env *Env, in *Asset, _ Options) (*Asset, error) {
	out := in.Clone()
	out.Kind = KindFile

	url := env.PublicPath + StripQuery(in.Path)
	if _, query, ok := strings.Cut(in.Path, "?"); ok {
		url += "?" + query
	}
	literal, err := json.Marshal(url)
	if err != nil {
		return nil, err
	}
	out.Module = []byte("module.exports = " + string(literal) + ";\n")
	return out, nil
}
