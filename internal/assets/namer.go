package assets

import (
	"crypto/sha256"
	"path"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/wolfeidau/assetpipe/internal/transform"
)

// ContentHash is a short deterministic digest of contents.
func ContentHash(contents []byte) string {
	sum := sha256.Sum256(contents)
	return base58.Encode(sum[:12])
}

// Name computes the output file name of an artifact. It depends only on its
// arguments.
func Name(logicalName string, kind transform.Kind, mode Mode, contents []byte, chunk bool) string {
	switch kind {
	case transform.KindScript:
		if mode == ModeProduction {
			return logicalName + "-" + ContentHash(contents) + ".js"
		}
		return logicalName + ".js"
	case transform.KindStyle:
		// chunk styles are keyed by id, entry styles by name, in both modes
		return logicalName + ".css"
	default:
		return path.Clean(transform.StripQuery(logicalName))
	}
}

// ChunkID derives a stable id for a split stylesheet from its source path.
func ChunkID(sourcePath string) string {
	p := transform.StripQuery(sourcePath)
	p = strings.TrimSuffix(p, path.Ext(p))
	return strings.NewReplacer("/", "_", ".", "_", "-", "_").Replace(p)
}

func nameArtifact(a *Artifact, mode Mode) {
	a.FileName = Name(a.LogicalName, a.Kind, mode, a.Contents, a.Chunk)
}
