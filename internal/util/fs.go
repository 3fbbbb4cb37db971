package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates the directory (and parents) for blob and report
// output roots.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// SafeJoin joins an untrusted name under root, stripping any path
// components so uploaded filenames cannot escape the data directory.
func SafeJoin(root, name string) string {
	return filepath.Join(root, filepath.Base(name))
}
