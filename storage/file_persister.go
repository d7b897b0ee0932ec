// Package storage persists run artifacts such as the JSON report.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FilePersister will persist files. It abstracts away the where and how of
// writing files to the source destination.
type FilePersister interface {
	Persist(ctx context.Context, path string, data io.Reader) error
}

// LocalFilePersister will persist files to the local disk.
type LocalFilePersister struct{}

// Persist writes data to path on the local disk. The data is first written
// to a temporary file in the same directory which then replaces path, so a
// reader never observes a partially written report.
func (l *LocalFilePersister) Persist(ctx context.Context, path string, data io.Reader) (err error) {
	if err = ctx.Err(); err != nil {
		return err
	}
	cp := filepath.Clean(path)

	dir := filepath.Dir(cp)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating a local directory %q: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(cp)+".*")
	if err != nil {
		return fmt.Errorf("creating a temporary file in %q: %w", dir, err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = io.Copy(f, data); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %q: %w", tmp, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("closing the local file %q: %w", tmp, err)
	}
	if err = os.Chmod(tmp, 0o600); err != nil {
		return fmt.Errorf("setting permissions of %q: %w", tmp, err)
	}
	if err = os.Rename(tmp, cp); err != nil {
		return fmt.Errorf("moving %q to %q: %w", tmp, cp, err)
	}

	return nil
}

// ReportPath returns the path of the report file for run inside dir.
func ReportPath(dir, runID string) string {
	return filepath.Join(dir, "browsermatrix-"+runID+".json")
}
