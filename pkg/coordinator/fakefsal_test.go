package coordinator

import (
	"context"
	"os"
	"path/filepath"

	"github.com/txnfsal/txnfsal/pkg/fsal"
)

// fakeExport is a minimal fsal.Export backed by a real directory on disk,
// sufficient to exercise the coordinator's lifecycle without a real lower
// FSAL. It treats the object's absolute path as its host-handle.
type fakeExport struct {
	root string
}

func newFakeExport(root string) *fakeExport { return &fakeExport{root: root} }

func (e *fakeExport) Root(ctx context.Context) (fsal.ObjectHandle, error) {
	return &fakeHandle{export: e, path: e.root}, nil
}

func (e *fakeExport) LookupPath(ctx context.Context, path string) (fsal.ObjectHandle, error) {
	full := filepath.Join(e.root, path)
	if _, err := os.Lstat(full); err != nil {
		return nil, fsal.NewNotFoundError(path)
	}
	return &fakeHandle{export: e, path: full}, nil
}

func (e *fakeExport) CreateHandle(ctx context.Context, hostHandle []byte) (fsal.ObjectHandle, error) {
	return &fakeHandle{export: e, path: string(hostHandle)}, nil
}

func (e *fakeExport) StartCompound(ctx context.Context, opCount int) error { return nil }
func (e *fakeExport) EndCompound(ctx context.Context, success bool) error  { return nil }

type fakeHandle struct {
	export *fakeExport
	path   string
}

func (h *fakeHandle) HostHandle() []byte { return []byte(h.path) }

func (h *fakeHandle) Type() fsal.ObjectType {
	info, err := os.Lstat(h.path)
	if err != nil {
		return fsal.ObjectTypeUnknown
	}
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return fsal.ObjectTypeSymlink
	case info.IsDir():
		return fsal.ObjectTypeDirectory
	default:
		return fsal.ObjectTypeRegularFile
	}
}

func (h *fakeHandle) Path() string { return h.path }

func (h *fakeHandle) Lookup(ctx context.Context, name string) (fsal.ObjectHandle, error) {
	full := filepath.Join(h.path, name)
	if _, err := os.Lstat(full); err != nil {
		return nil, fsal.NewNotFoundError(name)
	}
	return &fakeHandle{export: h.export, path: full}, nil
}

func (h *fakeHandle) Create(ctx context.Context, name string, mode uint32) (fsal.ObjectHandle, error) {
	full := filepath.Join(h.path, name)
	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY, os.FileMode(mode))
	if err != nil {
		return nil, fsal.NewStorageError(err.Error())
	}
	f.Close()
	return &fakeHandle{export: h.export, path: full}, nil
}

func (h *fakeHandle) Mkdir(ctx context.Context, name string, mode uint32) (fsal.ObjectHandle, error) {
	full := filepath.Join(h.path, name)
	if err := os.Mkdir(full, os.FileMode(mode)); err != nil {
		return nil, fsal.NewStorageError(err.Error())
	}
	return &fakeHandle{export: h.export, path: full}, nil
}

func (h *fakeHandle) Symlink(ctx context.Context, name, target string) (fsal.ObjectHandle, error) {
	full := filepath.Join(h.path, name)
	if err := os.Symlink(target, full); err != nil {
		return nil, fsal.NewStorageError(err.Error())
	}
	return &fakeHandle{export: h.export, path: full}, nil
}

func (h *fakeHandle) Link(ctx context.Context, dir fsal.ObjectHandle, name string) error {
	return os.Link(h.path, filepath.Join(dir.Path(), name))
}

func (h *fakeHandle) Readlink(ctx context.Context) (string, error) {
	return os.Readlink(h.path)
}

func (h *fakeHandle) Unlink(ctx context.Context, name string) error {
	full := filepath.Join(h.path, name)
	if err := os.RemoveAll(full); err != nil {
		return fsal.NewStorageError(err.Error())
	}
	return nil
}

func (h *fakeHandle) Rename(ctx context.Context, newParent fsal.ObjectHandle, newName string) error {
	return os.Rename(h.path, filepath.Join(newParent.Path(), newName))
}

func (h *fakeHandle) Read(ctx context.Context, offset int64, length int) ([]byte, error) {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return nil, fsal.NewStorageError(err.Error())
	}
	if int(offset) > len(data) {
		return nil, nil
	}
	end := int(offset) + length
	if end > len(data) {
		end = len(data)
	}
	return data[offset:end], nil
}

func (h *fakeHandle) Write(ctx context.Context, offset int64, data []byte) (int, error) {
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

func (h *fakeHandle) Clone(ctx context.Context, dst fsal.ObjectHandle, offset, length int64) error {
	data, err := h.Read(ctx, offset, int(length))
	if err != nil {
		return err
	}
	_, err = dst.Write(ctx, 0, data)
	return err
}

func (h *fakeHandle) Size(ctx context.Context) (int64, error) {
	info, err := os.Stat(h.path)
	if err != nil {
		return 0, fsal.NewStorageError(err.Error())
	}
	return info.Size(), nil
}

func (h *fakeHandle) Truncate(ctx context.Context, size int64) error {
	return os.Truncate(h.path, size)
}

func (h *fakeHandle) Release(ctx context.Context) error { return nil }
