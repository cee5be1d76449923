//go:build linux

package engine

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// restoreMetadata applies recorded permissions and mtime to an open
// file before it is renamed into place. Both operations go through the
// descriptor so the umask and later path changes cannot interfere;
// atime is left untouched.
func restoreMetadata(f *os.File, mode fs.FileMode, mtime time.Time) error {
	rawFd := int(f.Fd())

	if mode != 0 {
		if err := unix.Fchmod(rawFd, uint32(mode.Perm())); err != nil {
			return fmt.Errorf("fchmod: %w", err)
		}
	}

	if !mtime.IsZero() {
		times := []unix.Timespec{
			{Nsec: unix.UTIME_OMIT},
			unix.NsecToTimespec(mtime.UnixNano()),
		}
		if err := unix.UtimesNanoAt(rawFd, "", times, unix.AT_EMPTY_PATH); err != nil {
			// Fallback: some systems don't support AT_EMPTY_PATH.
			if err2 := unix.UtimesNanoAt(unix.AT_FDCWD, f.Name(), times, 0); err2 != nil {
				return fmt.Errorf("utimensat: %w", err)
			}
		}
	}
	return nil
}
