//go:build unix && !linux

package engine

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// restoreMetadata applies recorded permissions and mtime to an open
// file before it is renamed into place. Darwin and the BSDs lack
// UTIME_OMIT and AT_EMPTY_PATH, so times go through the path and atime
// is set alongside mtime.
func restoreMetadata(f *os.File, mode fs.FileMode, mtime time.Time) error {
	if mode != 0 {
		if err := unix.Fchmod(int(f.Fd()), uint32(mode.Perm())); err != nil {
			return fmt.Errorf("fchmod: %w", err)
		}
	}

	if !mtime.IsZero() {
		ts := unix.NsecToTimespec(mtime.UnixNano())
		times := []unix.Timespec{ts, ts}
		if err := unix.UtimesNanoAt(unix.AT_FDCWD, f.Name(), times, 0); err != nil {
			return fmt.Errorf("utimensat: %w", err)
		}
	}
	return nil
}
