package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // correlates log lines across one compound's lifetime
	KeySpanID  = "span_id"  // correlates log lines across one operation within a compound

	// ========================================================================
	// Compound & Transaction
	// ========================================================================
	KeyTxnID        = "txn_id"        // transaction ID assigned at start_compound
	KeyOpIndex      = "op_index"      // 0-based index of the operation within the compound
	KeyOpName       = "op_name"       // NFSv4 operation name (LOOKUP, CREATE, WRITE, ...)
	KeyCompoundType = "compound_type" // classified mutating kind of the compound
	KeyPhase        = "phase"         // lifecycle phase: prepared, executing, committing, rolling_back

	// ========================================================================
	// Identity Map
	// ========================================================================
	KeyUUID       = "uuid"        // 16-byte stable object identifier, hex-encoded
	KeyHostHandle = "host_handle" // lower FSAL's opaque handle, hex-encoded
	KeyCacheSize  = "cache_size"  // number of entries in the per-compound write-back cache

	// ========================================================================
	// File System Operations
	// ========================================================================
	KeyPath       = "path"        // full object-relative path
	KeyParentPath = "parent_path" // parent directory path
	KeyOldPath    = "old_path"    // source path for rename/move operations
	KeyNewPath    = "new_path"    // destination path for rename/move operations
	KeySize       = "size"        // file size in bytes

	// ========================================================================
	// I/O Operations
	// ========================================================================
	KeyOffset = "offset" // byte offset for write/clone/copy/snapshot
	KeyLength = "length" // byte length for write/clone/copy/snapshot

	// ========================================================================
	// Backup Store
	// ========================================================================
	KeyBackupDir = "backup_dir" // per-transaction backup directory path
	KeyBackupFn  = "backup_fn"  // "{opidx}.bkp" snapshot filename

	// ========================================================================
	// Locking
	// ========================================================================
	KeyLockPath      = "lock_path"      // normalized path a lock request names
	KeyLockExclusive = "lock_exclusive" // true if the request is for an exclusive hold
	KeyLockWaitMs    = "lock_wait_ms"   // time spent spinning before acquisition

	// ========================================================================
	// Cleanup Worker
	// ========================================================================
	KeyQueueDepth = "queue_depth" // entries currently queued for async cleanup
	KeyQueueCap   = "queue_cap"   // configured capacity of the cleanup queue

	// ========================================================================
	// Client Identification
	// ========================================================================
	KeyClientIP = "client_ip" // client IP address
	KeyUID      = "uid"       // effective user ID
	KeyGID      = "gid"       // effective group ID

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // operation duration in milliseconds
	KeyError      = "error"       // error message
	KeyErrorCode  = "error_code"  // StoreError code
)

// ----------------------------------------------------------------------------
// Distributed Tracing
// ----------------------------------------------------------------------------

func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }
func SpanID(id string) slog.Attr  { return slog.String(KeySpanID, id) }

// ----------------------------------------------------------------------------
// Compound & Transaction
// ----------------------------------------------------------------------------

func TxnID(id uint64) slog.Attr        { return slog.Uint64(KeyTxnID, id) }
func OpIndex(idx int) slog.Attr        { return slog.Int(KeyOpIndex, idx) }
func OpName(name string) slog.Attr     { return slog.String(KeyOpName, name) }
func CompoundType(t string) slog.Attr  { return slog.String(KeyCompoundType, t) }
func Phase(phase string) slog.Attr     { return slog.String(KeyPhase, phase) }

// ----------------------------------------------------------------------------
// Identity Map
// ----------------------------------------------------------------------------

// UUID returns a slog.Attr for a 16-byte object identifier, formatted as hex.
func UUID(id []byte) slog.Attr {
	return slog.String(KeyUUID, fmt.Sprintf("%x", id))
}

// HostHandle returns a slog.Attr for a lower-FSAL handle, formatted as hex.
func HostHandle(h []byte) slog.Attr {
	return slog.String(KeyHostHandle, fmt.Sprintf("%x", h))
}

func CacheSize(n int) slog.Attr { return slog.Int(KeyCacheSize, n) }

// ----------------------------------------------------------------------------
// File System Operations
// ----------------------------------------------------------------------------

func Path(p string) slog.Attr       { return slog.String(KeyPath, p) }
func ParentPath(p string) slog.Attr { return slog.String(KeyParentPath, p) }
func OldPath(p string) slog.Attr    { return slog.String(KeyOldPath, p) }
func NewPath(p string) slog.Attr    { return slog.String(KeyNewPath, p) }
func Size(s uint64) slog.Attr       { return slog.Uint64(KeySize, s) }

// ----------------------------------------------------------------------------
// I/O Operations
// ----------------------------------------------------------------------------

func Offset(off uint64) slog.Attr { return slog.Uint64(KeyOffset, off) }
func Length(n uint64) slog.Attr   { return slog.Uint64(KeyLength, n) }

// ----------------------------------------------------------------------------
// Backup Store
// ----------------------------------------------------------------------------

func BackupDir(p string) slog.Attr { return slog.String(KeyBackupDir, p) }
func BackupFn(name string) slog.Attr { return slog.String(KeyBackupFn, name) }

// ----------------------------------------------------------------------------
// Locking
// ----------------------------------------------------------------------------

func LockPath(p string) slog.Attr        { return slog.String(KeyLockPath, p) }
func LockExclusive(excl bool) slog.Attr  { return slog.Bool(KeyLockExclusive, excl) }
func LockWaitMs(ms float64) slog.Attr    { return slog.Float64(KeyLockWaitMs, ms) }

// ----------------------------------------------------------------------------
// Cleanup Worker
// ----------------------------------------------------------------------------

func QueueDepth(n int) slog.Attr { return slog.Int(KeyQueueDepth, n) }
func QueueCap(n int) slog.Attr   { return slog.Int(KeyQueueCap, n) }

// ----------------------------------------------------------------------------
// Client Identification
// ----------------------------------------------------------------------------

func ClientIP(addr string) slog.Attr { return slog.String(KeyClientIP, addr) }
func UID(uid uint32) slog.Attr       { return slog.Any(KeyUID, uid) }
func GID(gid uint32) slog.Attr       { return slog.Any(KeyGID, gid) }

// ----------------------------------------------------------------------------
// Operation Metadata
// ----------------------------------------------------------------------------

func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

func ErrorCode(code int) slog.Attr { return slog.Int(KeyErrorCode, code) }
