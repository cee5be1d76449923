//go:build !unix

package engine

import (
	"io/fs"
	"os"
	"time"
)

// restoreMetadata applies recorded permissions and mtime through the
// portable os calls on platforms without unix descriptor syscalls.
func restoreMetadata(f *os.File, mode fs.FileMode, mtime time.Time) error {
	if mode != 0 {
		if err := os.Chmod(f.Name(), mode.Perm()); err != nil {
			return err
		}
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(f.Name(), time.Time{}, mtime); err != nil {
			return err
		}
	}
	return nil
}
