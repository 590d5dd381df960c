// Package localfs is a plain-directory implementation of fsal.Export and
// fsal.ObjectHandle, used by txnfsalctl to drive crash recovery against a
// real export root without requiring a full protocol-level lower FSAL to
// be wired in. A production deployment embeds the coordinator against its
// own lower FSAL; this adapter exists so the recovery and inspection
// tooling can operate stand-alone against an export root on local disk.
package localfs

import (
	"context"
	"os"
	"path/filepath"

	"github.com/txnfsal/txnfsal/pkg/fsal"
)

// Export is a local-directory-backed fsal.Export. Host-handles are the
// object's absolute path, which is sufficient identity for a single-host
// directory tree (a real lower FSAL would use inode numbers or an opaque
// NFS file handle instead).
type Export struct {
	root string
}

// Open returns an Export rooted at root, which must already exist.
func Open(root string) (*Export, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fsal.NewStorageError(err.Error())
	}
	if !info.IsDir() {
		return nil, fsal.NewInvalidArgumentError("export root is not a directory")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fsal.NewStorageError(err.Error())
	}
	return &Export{root: abs}, nil
}

// Root returns the export root's handle.
func (e *Export) Root(ctx context.Context) (fsal.ObjectHandle, error) {
	return &Handle{export: e, path: e.root}, nil
}

// LookupPath resolves an export-relative path.
func (e *Export) LookupPath(ctx context.Context, path string) (fsal.ObjectHandle, error) {
	full := filepath.Join(e.root, path)
	if _, err := os.Lstat(full); err != nil {
		return nil, fsal.NewNotFoundError(path)
	}
	return &Handle{export: e, path: full}, nil
}

// CreateHandle reconstructs a handle from a previously recorded host-handle
// (here, an absolute path).
func (e *Export) CreateHandle(ctx context.Context, hostHandle []byte) (fsal.ObjectHandle, error) {
	return &Handle{export: e, path: string(hostHandle)}, nil
}

// StartCompound is a no-op: there is no lower-FSAL-side compound state to
// initialize for a plain directory tree.
func (e *Export) StartCompound(ctx context.Context, opCount int) error { return nil }

// EndCompound is a no-op for the same reason.
func (e *Export) EndCompound(ctx context.Context, success bool) error { return nil }

// Handle is a local-directory-backed fsal.ObjectHandle.
type Handle struct {
	export *Export
	path   string
}

func (h *Handle) HostHandle() []byte { return []byte(h.path) }

func (h *Handle) Type() fsal.ObjectType {
	info, err := os.Lstat(h.path)
	if err != nil {
		return fsal.ObjectTypeUnknown
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return fsal.ObjectTypeSymlink
	case info.IsDir():
		return fsal.ObjectTypeDirectory
	case info.Mode().IsRegular():
		return fsal.ObjectTypeRegularFile
	default:
		return fsal.ObjectTypeDevice
	}
}

func (h *Handle) Path() string { return h.path }

func (h *Handle) Lookup(ctx context.Context, name string) (fsal.ObjectHandle, error) {
	full := filepath.Join(h.path, name)
	if _, err := os.Lstat(full); err != nil {
		return nil, fsal.NewNotFoundError(name)
	}
	return &Handle{export: h.export, path: full}, nil
}

func (h *Handle) Create(ctx context.Context, name string, mode uint32) (fsal.ObjectHandle, error) {
	full := filepath.Join(h.path, name)
	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY, os.FileMode(mode))
	if err != nil {
		return nil, fsal.NewStorageError(err.Error())
	}
	f.Close()
	return &Handle{export: h.export, path: full}, nil
}

func (h *Handle) Mkdir(ctx context.Context, name string, mode uint32) (fsal.ObjectHandle, error) {
	full := filepath.Join(h.path, name)
	if err := os.Mkdir(full, os.FileMode(mode)); err != nil {
		return nil, fsal.NewStorageError(err.Error())
	}
	return &Handle{export: h.export, path: full}, nil
}

func (h *Handle) Symlink(ctx context.Context, name, target string) (fsal.ObjectHandle, error) {
	full := filepath.Join(h.path, name)
	if err := os.Symlink(target, full); err != nil {
		return nil, fsal.NewStorageError(err.Error())
	}
	return &Handle{export: h.export, path: full}, nil
}

func (h *Handle) Link(ctx context.Context, dir fsal.ObjectHandle, name string) error {
	if err := os.Link(h.path, filepath.Join(dir.Path(), name)); err != nil {
		return fsal.NewStorageError(err.Error())
	}
	return nil
}

func (h *Handle) Readlink(ctx context.Context) (string, error) {
	target, err := os.Readlink(h.path)
	if err != nil {
		return "", fsal.NewStorageError(err.Error())
	}
	return target, nil
}

func (h *Handle) Unlink(ctx context.Context, name string) error {
	full := filepath.Join(h.path, name)
	if err := os.RemoveAll(full); err != nil {
		return fsal.NewStorageError(err.Error())
	}
	return nil
}

func (h *Handle) Rename(ctx context.Context, newParent fsal.ObjectHandle, newName string) error {
	if err := os.Rename(h.path, filepath.Join(newParent.Path(), newName)); err != nil {
		return fsal.NewStorageError(err.Error())
	}
	return nil
}

func (h *Handle) Read(ctx context.Context, offset int64, length int) ([]byte, error) {
	f, err := os.Open(h.path)
	if err != nil {
		return nil, fsal.NewStorageError(err.Error())
	}
	defer f.Close()
	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && n == 0 {
		return nil, fsal.NewStorageError(err.Error())
	}
	return buf[:n], nil
}

func (h *Handle) Write(ctx context.Context, offset int64, data []byte) (int, error) {
	f, err := os.OpenFile(h.path, os.O_WRONLY, 0644)
	if err != nil {
		return 0, fsal.NewStorageError(err.Error())
	}
	defer f.Close()
	n, err := f.WriteAt(data, offset)
	if err != nil {
		return n, fsal.NewStorageError(err.Error())
	}
	return n, nil
}

func (h *Handle) Clone(ctx context.Context, dst fsal.ObjectHandle, offset, length int64) error {
	data, err := h.Read(ctx, offset, int(length))
	if err != nil {
		return err
	}
	_, err = dst.Write(ctx, 0, data)
	return err
}

func (h *Handle) Size(ctx context.Context) (int64, error) {
	info, err := os.Stat(h.path)
	if err != nil {
		return 0, fsal.NewStorageError(err.Error())
	}
	return info.Size(), nil
}

func (h *Handle) Truncate(ctx context.Context, size int64) error {
	if err := os.Truncate(h.path, size); err != nil {
		return fsal.NewStorageError(err.Error())
	}
	return nil
}

func (h *Handle) Release(ctx context.Context) error { return nil }

var _ fsal.Export = (*Export)(nil)
var _ fsal.ObjectHandle = (*Handle)(nil)
