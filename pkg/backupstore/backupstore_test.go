package backupstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txnfsal/txnfsal/pkg/fsal"
)

func TestEnsureTxnDirIsIdempotent(t *testing.T) {
	root := t.TempDir()
	s := Open(root)

	first, err := s.EnsureTxnDir(1)
	require.NoError(t, err)
	second, err := s.EnsureTxnDir(1)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	info, err := os.Stat(first)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSnapshotAndRestoreRegularFile(t *testing.T) {
	root := t.TempDir()
	s := Open(root)

	source := filepath.Join(root, "file.txt")
	require.NoError(t, os.WriteFile(source, []byte("hello world"), 0644))

	require.NoError(t, s.Snapshot(5, 0, source, fsal.ObjectTypeRegularFile, 0, 11))

	require.NoError(t, os.WriteFile(source, []byte("clobbered!!"), 0644))
	require.NoError(t, s.Restore(5, 0, source, true))

	data, err := os.ReadFile(source)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestSnapshotRegularFilePastEOFIsEmpty(t *testing.T) {
	root := t.TempDir()
	s := Open(root)

	source := filepath.Join(root, "short.txt")
	require.NoError(t, os.WriteFile(source, []byte("abc"), 0644))

	require.NoError(t, s.Snapshot(9, 0, source, fsal.ObjectTypeRegularFile, 100, 10))

	backup := filepath.Join(s.TxnDirPath(9), snapshotName(0))
	info, err := os.Stat(backup)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestSnapshotAndRestoreSymlink(t *testing.T) {
	root := t.TempDir()
	s := Open(root)

	source := filepath.Join(root, "link")
	require.NoError(t, os.Symlink("/original/target", source))

	require.NoError(t, s.Snapshot(2, 1, source, fsal.ObjectTypeSymlink, 0, 0))

	require.NoError(t, os.Remove(source))
	require.NoError(t, os.Symlink("/wrong/target", source))

	require.NoError(t, s.Restore(2, 1, source, false))

	target, err := os.Readlink(source)
	require.NoError(t, err)
	assert.Equal(t, "/original/target", target)
}

func TestDeleteTxnDirRemovesEverything(t *testing.T) {
	root := t.TempDir()
	s := Open(root)

	source := filepath.Join(root, "f")
	require.NoError(t, os.WriteFile(source, []byte("x"), 0644))
	require.NoError(t, s.Snapshot(3, 0, source, fsal.ObjectTypeRegularFile, 0, 1))

	require.NoError(t, s.DeleteTxnDir(3))

	_, err := os.Stat(s.TxnDirPath(3))
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteTxnDirOnMissingDirIsNoop(t *testing.T) {
	root := t.TempDir()
	s := Open(root)
	assert.NoError(t, s.DeleteTxnDir(404))
}
