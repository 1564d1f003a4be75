package assets

import (
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/wolfeidau/assetpipe/internal/transform"
)

// Mode selects output naming and dev-server activation.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// ParseMode converts a flag value into a Mode. Empty means development.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dev", "development":
		return ModeDevelopment, nil
	case "prod", "production":
		return ModeProduction, nil
	default:
		return "", fmt.Errorf("unknown build mode %q", s)
	}
}

// EntryPoint is a named bundle made of an ordered list of source files.
type EntryPoint struct {
	Name  string
	Files []string
}

// Artifact is a single emitted output file.
type Artifact struct {
	LogicalName string
	Kind        transform.Kind
	FileName    string
	Contents    []byte
	// Entry is the entry point that produced the artifact.
	Entry string
	Chunk bool
}

// Key is the manifest key, the logical name plus its extension.
func (a *Artifact) Key() string {
	switch a.Kind {
	case transform.KindScript:
		return a.LogicalName + ".js"
	case transform.KindStyle:
		return a.LogicalName + ".css"
	default:
		return a.LogicalName
	}
}

// Manifest is the ordered set of artifacts produced by one build.
type Manifest struct {
	keys      []string
	artifacts map[string]*Artifact
	files     map[string]string

	// Inputs lists the source paths each entry point was built from.
	Inputs map[string][]string
	// Errors holds the transform errors tolerated in development mode.
	Errors []error
}

func NewManifest() *Manifest {
	return &Manifest{
		artifacts: map[string]*Artifact{},
		files:     map[string]string{},
		Inputs:    map[string][]string{},
	}
}

// Put stores an artifact, keeping the position of the first insert for its key.
func (m *Manifest) Put(a *Artifact) {
	key := a.Key()
	if prev, ok := m.artifacts[key]; ok {
		delete(m.files, prev.FileName)
	} else {
		m.keys = append(m.keys, key)
	}
	m.artifacts[key] = a
	m.files[a.FileName] = key
}

// Get returns the artifact stored under a manifest key.
func (m *Manifest) Get(key string) (*Artifact, bool) {
	a, ok := m.artifacts[key]
	return a, ok
}

// Lookup returns the artifact emitted under the given file name.
func (m *Manifest) Lookup(fileName string) (*Artifact, bool) {
	key, ok := m.files[fileName]
	if !ok {
		return nil, false
	}
	return m.artifacts[key], true
}

// Keys returns the manifest keys in insertion order.
func (m *Manifest) Keys() []string {
	return slices.Clone(m.keys)
}

// Artifacts returns the artifacts in insertion order.
func (m *Manifest) Artifacts() []*Artifact {
	out := make([]*Artifact, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.artifacts[k])
	}
	return out
}

// Entry returns the artifacts of the named entry point. A file artifact
// belongs to every entry point whose inputs list its source, so files shared
// between entry points are not tied to whichever one emitted them last.
func (m *Manifest) Entry(name string) []*Artifact {
	inputs, tracked := m.Inputs[name]
	var out []*Artifact
	for _, a := range m.Artifacts() {
		if a.Kind == transform.KindFile && tracked {
			if slices.Contains(inputs, a.LogicalName) {
				out = append(out, a)
			}
			continue
		}
		if a.Entry == name {
			out = append(out, a)
		}
	}
	return out
}

// Files maps every manifest key to the public URL of its artifact.
func (m *Manifest) Files(publicPath string) map[string]string {
	out := make(map[string]string, len(m.keys))
	for _, k := range m.keys {
		out[k] = URL(publicPath, m.artifacts[k].FileName)
	}
	return out
}

// EntriesFor returns the entry points whose inputs include the source path.
func (m *Manifest) EntriesFor(sourcePath string) []string {
	var names []string
	for name, inputs := range m.Inputs {
		if slices.Contains(inputs, sourcePath) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// URL joins a public base path and an artifact file name.
func URL(publicPath, fileName string) string {
	if publicPath == "" {
		publicPath = "/"
	}
	return strings.TrimSuffix(publicPath, "/") + "/" + path.Clean(fileName)
}
