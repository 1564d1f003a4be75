package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// Writer stores artifacts under the output root with write-temp-then-rename,
// so readers never see a partially written file.
type Writer struct {
	root       string
	retryDelay time.Duration
}

func NewWriter(root string) *Writer {
	return &Writer{root: root, retryDelay: 50 * time.Millisecond}
}

// Write stores data under name, retrying once before returning an IOError.
func (w *Writer) Write(ctx context.Context, name string, data []byte) error {
	target := filepath.Join(w.root, filepath.FromSlash(name))

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := writeFileAtomic(target, data)
		if err != nil {
			log.Warn().Err(err).Str("path", target).Int("attempt", attempt).Msg("Artifact write failed")
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(w.retryDelay)),
		backoff.WithMaxTries(2),
	)
	if err != nil {
		return &IOError{Path: target, Op: "write", Err: err}
	}
	return nil
}

func writeFileAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename into place: %w", err)
	}
	return nil
}
