// Package workdir manages the local directory a repo is assembled in.
package workdir

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nytimes/s3yum/internal/repo"
)

// Dir is a staging directory. An ephemeral Dir was created by Init and is
// removed by Cleanup; a caller-supplied one is left in place.
type Dir struct {
	Root      string
	Metadata  string
	Ephemeral bool
}

// Init prepares a working directory. An empty path creates a fresh
// temporary directory; otherwise path is created if missing.
func Init(path string) (*Dir, error) {
	if path == "" {
		root, err := os.MkdirTemp("", "s3yum-")
		if err != nil {
			return nil, fmt.Errorf("unable to initialize working directory: %w", err)
		}
		return &Dir{Root: root, Metadata: MetadataPath(root), Ephemeral: true}, nil
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("unable to initialize working directory %q: %w", path, err)
	}
	return &Dir{Root: path, Metadata: MetadataPath(path)}, nil
}

// MetadataPath returns where createrepo writes the index for root.
func MetadataPath(root string) string {
	return filepath.Join(root, repo.MetadataDir)
}

// Cleanup removes an ephemeral directory and everything in it.
func (d *Dir) Cleanup() error {
	if d == nil || !d.Ephemeral {
		return nil
	}
	return os.RemoveAll(d.Root)
}

// ResetMetadata removes any previously generated metadata directory.
func (d *Dir) ResetMetadata() error {
	if err := os.RemoveAll(d.Metadata); err != nil {
		return fmt.Errorf("failed to remove old repodata %q: %w", d.Metadata, err)
	}
	return nil
}

// Stage copies each artifact into the directory root under its base name.
func (d *Dir) Stage(artifacts []string) ([]string, error) {
	staged := make([]string, 0, len(artifacts))
	for _, src := range artifacts {
		dst := filepath.Join(d.Root, filepath.Base(src))
		if err := copyFile(src, dst); err != nil {
			return staged, fmt.Errorf("error copying %q: %w", src, err)
		}
		staged = append(staged, dst)
	}
	return staged, nil
}

// copyFile copies src to dst through a temp file and a rename, keeping the
// source permissions.
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}
	if !srcInfo.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".s3yum-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := io.Copy(tmpFile, srcFile); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Chmod(srcInfo.Mode()); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, dst)
}
