// Package backupstore manages the per-transaction staging directory on the
// lower filesystem that holds pre-images of objects about to be mutated.
//
// Each transaction gets its own directory under a reserved root, holding
// one file per mutated operation index. A pre-image is captured by
// reflink-cloning the source range where the filesystem supports it,
// falling back to a write-to-temp-then-rename copy otherwise — the same
// atomicity idiom a filesystem-backed block store uses to make its own
// writes crash-safe. Restore reverses the same operation: clone (or copy)
// the backup back over the live path.
package backupstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/txnfsal/txnfsal/internal/logger"
	"github.com/txnfsal/txnfsal/pkg/fsal"
)

const txnRootDirName = ".txn"

// Store manages backup directories under <exportRoot>/.txn/ on the lower
// filesystem.
type Store struct {
	exportRoot string
}

// Open returns a Store rooted at exportRoot. exportRoot must already exist.
func Open(exportRoot string) *Store {
	return &Store{exportRoot: exportRoot}
}

func (s *Store) txnDir(txnID uint64) string {
	return filepath.Join(s.exportRoot, txnRootDirName, strconv.FormatUint(txnID, 10))
}

func snapshotName(opIndex int) string {
	return fmt.Sprintf("%d.bkp", opIndex)
}

// EnsureTxnDir lazily creates .txn and .txn/{txn_id} under the export root,
// mode 0777 as the data model specifies, and is idempotent: repeated calls
// return the same path without creating duplicates (T7).
func (s *Store) EnsureTxnDir(txnID uint64) (string, error) {
	root := filepath.Join(s.exportRoot, txnRootDirName)
	if err := os.MkdirAll(root, 0777); err != nil {
		return "", fsal.NewStorageError(fmt.Sprintf("ensure .txn root: %v", err))
	}
	dir := s.txnDir(txnID)
	if err := os.MkdirAll(dir, 0777); err != nil {
		return "", fsal.NewStorageError(fmt.Sprintf("ensure txn dir: %v", err))
	}
	return dir, nil
}

// Snapshot records a pre-image of sourcePath, about to be mutated by
// operation opIndex within txnID.
func (s *Store) Snapshot(txnID uint64, opIndex int, sourcePath string, objType fsal.ObjectType, offset, length int64) error {
	dir, err := s.EnsureTxnDir(txnID)
	if err != nil {
		return err
	}
	dst := filepath.Join(dir, snapshotName(opIndex))

	switch objType {
	case fsal.ObjectTypeRegularFile:
		return s.snapshotRegularFile(sourcePath, dst, offset, length)
	case fsal.ObjectTypeSymlink:
		target, err := os.Readlink(sourcePath)
		if err != nil {
			return fsal.NewStorageError(fmt.Sprintf("readlink %s: %v", sourcePath, err))
		}
		if err := os.Symlink(target, dst); err != nil {
			return fsal.NewStorageError(fmt.Sprintf("snapshot symlink %s: %v", sourcePath, err))
		}
		return nil
	case fsal.ObjectTypeDirectory:
		// The directory's own contents are backed up per-file separately;
		// this placeholder just records that a directory once lived here.
		if err := os.Mkdir(dst, 0777); err != nil {
			return fsal.NewStorageError(fmt.Sprintf("snapshot dir placeholder %s: %v", sourcePath, err))
		}
		return nil
	case fsal.ObjectTypeDevice:
		logger.Debug("skipping snapshot of unopenable special file", logger.Path(sourcePath))
		return nil
	default:
		return fsal.NewInvalidArgumentError(fmt.Sprintf("unknown object type for snapshot: %v", objType))
	}
}

func (s *Store) snapshotRegularFile(sourcePath, dst string, offset, length int64) error {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return fsal.NewStorageError(fmt.Sprintf("stat %s: %v", sourcePath, err))
	}
	if offset >= info.Size() {
		// Empty backup: the source has nothing at or past offset (T9).
		f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err != nil {
			return fsal.NewStorageError(fmt.Sprintf("create empty backup %s: %v", dst, err))
		}
		return f.Close()
	}
	if offset+length > info.Size() || length <= 0 {
		length = info.Size() - offset
	}

	if err := cloneRange(sourcePath, dst, offset, length); err == nil {
		return nil
	}
	return copyRange(sourcePath, dst, offset, length)
}

// copyRange copies length bytes from sourcePath starting at offset into a
// freshly created dst, via a temp-file-then-rename for atomicity.
func copyRange(sourcePath, dst string, offset, length int64) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return fsal.NewStorageError(fmt.Sprintf("open %s: %v", sourcePath, err))
	}
	defer src.Close()

	if _, err := src.Seek(offset, io.SeekStart); err != nil {
		return fsal.NewStorageError(fmt.Sprintf("seek %s: %v", sourcePath, err))
	}

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fsal.NewStorageError(fmt.Sprintf("create %s: %v", tmp, err))
	}
	if _, err := io.CopyN(out, src, length); err != nil && err != io.EOF {
		out.Close()
		os.Remove(tmp)
		return fsal.NewStorageError(fmt.Sprintf("copy backup %s: %v", dst, err))
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fsal.NewStorageError(fmt.Sprintf("close %s: %v", tmp, err))
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fsal.NewStorageError(fmt.Sprintf("rename backup into place %s: %v", dst, err))
	}
	return nil
}

// Restore overwrites targetPath from the backup recorded for opIndex
// within txnID, truncating the target first if requested.
func (s *Store) Restore(txnID uint64, opIndex int, targetPath string, truncateFirst bool) error {
	src := filepath.Join(s.txnDir(txnID), snapshotName(opIndex))
	info, err := os.Lstat(src)
	if err != nil {
		return fsal.NewStorageError(fmt.Sprintf("stat backup %s: %v", src, err))
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return fsal.NewStorageError(fmt.Sprintf("readlink backup %s: %v", src, err))
		}
		_ = os.Remove(targetPath)
		if err := os.Symlink(target, targetPath); err != nil {
			return fsal.NewStorageError(fmt.Sprintf("restore symlink %s: %v", targetPath, err))
		}
		return nil
	}

	if truncateFirst {
		if err := os.Truncate(targetPath, 0); err != nil && !os.IsNotExist(err) {
			return fsal.NewStorageError(fmt.Sprintf("truncate %s: %v", targetPath, err))
		}
	}

	if err := cloneRange(src, targetPath, 0, info.Size()); err == nil {
		return nil
	}
	return overwriteFromBackup(src, targetPath)
}

func overwriteFromBackup(src, targetPath string) error {
	in, err := os.Open(src)
	if err != nil {
		return fsal.NewStorageError(fmt.Sprintf("open backup %s: %v", src, err))
	}
	defer in.Close()

	out, err := os.OpenFile(targetPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return fsal.NewStorageError(fmt.Sprintf("open restore target %s: %v", targetPath, err))
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fsal.NewStorageError(fmt.Sprintf("restore %s: %v", targetPath, err))
	}
	return nil
}

// DeleteTxnDir unlinks every entry in the transaction's backup directory
// then removes the directory itself.
func (s *Store) DeleteTxnDir(txnID uint64) error {
	dir := s.txnDir(txnID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fsal.NewStorageError(fmt.Sprintf("read txn dir %s: %v", dir, err))
	}
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(p); err != nil {
			logger.Warn("failed to remove backup entry", logger.Path(p), logger.Err(err))
		}
	}
	if err := os.Remove(dir); err != nil {
		return fsal.NewStorageError(fmt.Sprintf("remove txn dir %s: %v", dir, err))
	}
	return nil
}

// TxnDirPath returns the backup directory path for txnID without creating
// it, for the cleanup worker and crash-recovery path.
func (s *Store) TxnDirPath(txnID uint64) string {
	return s.txnDir(txnID)
}
