//go:build linux

package backupstore

import (
	"os"

	"golang.org/x/sys/unix"
)

// cloneRange attempts a copy-on-write reflink of [offset, offset+length)
// from src into a freshly created dst via FICLONERANGE, the same ioctl
// backup.c reaches for before falling back to a byte-range copy. It
// returns an error (never attempted as a partial write) whenever the
// underlying filesystem does not support reflinking, letting the caller
// fall back to copyRange/overwriteFromBackup.
func cloneRange(src, dst string, offset, length int64) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	err = unix.IoctlFileCloneRange(int(out.Fd()), &unix.FileCloneRange{
		Src_fd:      int64(in.Fd()),
		Src_offset:  uint64(offset),
		Src_length:  uint64(length),
		Dest_offset: 0,
	})
	if err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}
