package fsal

import (
	"context"
	"encoding/binary"
)

// UUIDLen is the fixed wire size of a stable object identifier.
const UUIDLen = 16

// UUID is the 16-byte opaque identifier exported to clients in place of the
// lower FSAL's native host-handle.
type UUID [UUIDLen]byte

// rootFileID is the root file id the allocator reserves: low 64 bits =
// 0x100000000 (2^32), high 64 bits = 0.
var rootFileID = func() UUID {
	var u UUID
	binary.BigEndian.PutUint64(u[8:], 0x100000000)
	return u
}()

// RootUUID returns the reserved UUID bound to the export's root object.
func RootUUID() UUID { return rootFileID }

// IsReserved reports whether u falls in the reserved low-2^64 range that the
// allocator never hands out: every UUID with a zero high-64 word represents
// a value below 2^64, regardless of its low-64 word.
func (u UUID) IsReserved() bool {
	for _, b := range u[:8] {
		if b != 0 {
			return false
		}
	}
	return true
}

// Bytes returns the UUID as a byte slice.
func (u UUID) Bytes() []byte { return u[:] }

// IsZero reports whether u is the zero value (used as a "no base object"
// sentinel for top-level creates, mirroring a null base id).
func (u UUID) IsZero() bool { return u == UUID{} }

// UUIDFromBytes decodes exactly UUIDLen bytes into a UUID.
func UUIDFromBytes(b []byte) (UUID, error) {
	var u UUID
	if len(b) != UUIDLen {
		return u, NewBadHandleError()
	}
	copy(u[:], b)
	return u, nil
}

// ObjectType classifies the kind of filesystem object a handle refers to,
// used to decide how the backup store snapshots it.
type ObjectType int

const (
	ObjectTypeUnknown ObjectType = iota
	ObjectTypeRegularFile
	ObjectTypeDirectory
	ObjectTypeSymlink
	ObjectTypeDevice
)

// CompoundType classifies the single kind of mutating operation a homogeneous
// compound performs (see the design note on compound homogeneity).
type CompoundType int

const (
	CompoundNone CompoundType = iota
	CompoundCreate
	CompoundMkdir
	CompoundWrite
	CompoundRename
	CompoundUnlink
	CompoundSymlink
)

// String returns the compound type's lower-case name, used for log fields
// and transaction-log tagging.
func (c CompoundType) String() string {
	switch c {
	case CompoundNone:
		return "none"
	case CompoundCreate:
		return "create"
	case CompoundMkdir:
		return "mkdir"
	case CompoundWrite:
		return "write"
	case CompoundRename:
		return "rename"
	case CompoundUnlink:
		return "unlink"
	case CompoundSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// ObjectHandle is the narrow verb set the core invokes on the lower FSAL,
// and the set it re-exposes (wrapped) to the upper dispatcher. Both sides
// implement the same interface so the coordinator can swap the "current
// FSAL" pointer in the per-request context around every downcall.
type ObjectHandle interface {
	// HostHandle returns the lower FSAL's native opaque identifier.
	HostHandle() []byte

	// Type returns the object's kind.
	Type() ObjectType

	// Path returns the best-effort export-relative path, for logging and
	// rollback path-joining.
	Path() string

	Lookup(ctx context.Context, name string) (ObjectHandle, error)
	Create(ctx context.Context, name string, mode uint32) (ObjectHandle, error)
	Mkdir(ctx context.Context, name string, mode uint32) (ObjectHandle, error)
	Symlink(ctx context.Context, name, target string) (ObjectHandle, error)
	Link(ctx context.Context, dir ObjectHandle, name string) error
	Readlink(ctx context.Context) (string, error)
	Unlink(ctx context.Context, name string) error
	Rename(ctx context.Context, newParent ObjectHandle, newName string) error

	Read(ctx context.Context, offset int64, length int) ([]byte, error)
	Write(ctx context.Context, offset int64, data []byte) (int, error)
	Clone(ctx context.Context, dst ObjectHandle, offset, length int64) error
	Size(ctx context.Context) (int64, error)
	Truncate(ctx context.Context, size int64) error

	Release(ctx context.Context) error
}

// Export is the narrow verb set the core invokes on the lower FSAL's export,
// and the set it re-exposes to the upper dispatcher.
type Export interface {
	// Root returns the export's root object handle.
	Root(ctx context.Context) (ObjectHandle, error)

	// LookupPath resolves a slash-separated path from the export root.
	LookupPath(ctx context.Context, path string) (ObjectHandle, error)

	// CreateHandle reconstructs an ObjectHandle from a previously-recorded
	// host-handle, without touching the namespace.
	CreateHandle(ctx context.Context, hostHandle []byte) (ObjectHandle, error)

	StartCompound(ctx context.Context, opCount int) error
	EndCompound(ctx context.Context, success bool) error
}
