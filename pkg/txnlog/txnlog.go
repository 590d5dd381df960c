// Package txnlog appends one structured record per in-flight compound so
// the undo executor can recover its work list after a crash, without
// needing the compound's original arg/result vectors.
//
// Each record carries the per-kind details undo needs (created objects,
// pending unlinks, symlinks, renames) and is encoded with encoding/json
// the same way every other KV-stored record in this core is — there's no
// protobuf toolchain wired in for a single record shape.
package txnlog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/txnfsal/txnfsal/pkg/fsal"
	"github.com/txnfsal/txnfsal/pkg/kvstore"
)

// CreatedObject records one object this compound allocated a UUID for.
// BaseID is the zero UUID when Path is relative to the export root;
// otherwise Path is relative to the directory BaseID names.
type CreatedObject struct {
	BaseID      fsal.UUID `json:"base_id"`
	BaseIsDir   bool      `json:"base_is_dir"`
	Path        string    `json:"path"`
	AllocatedID fsal.UUID `json:"allocated_id"`
	IsDirectory bool      `json:"is_directory"`
}

// UnlinkRecord records one victim of a REMOVE, keyed by parent UUID and
// name so the undo executor can resolve the parent's current host-handle.
type UnlinkRecord struct {
	ParentID fsal.UUID `json:"parent_id"`
	Name     string    `json:"name"`
}

// SymlinkRecord records one SYMLINK creation.
type SymlinkRecord struct {
	ParentID fsal.UUID `json:"parent_id"`
	Name     string    `json:"name"`
	Target   string    `json:"target"`
}

// RenameRecord records one RENAME. DstUUID is the zero UUID if the
// destination name did not exist before the rename.
type RenameRecord struct {
	SrcPath     string    `json:"src_path"`
	DstPath     string    `json:"dst_path"`
	SrcUUID     fsal.UUID `json:"src_uuid"`
	DstUUID     fsal.UUID `json:"dst_uuid"`
	IsDirectory bool      `json:"is_directory"`
}

// Record is one transaction log entry, keyed by TxnID in the KV store.
type Record struct {
	TxnID          uint64             `json:"txn_id"`
	CompoundType   fsal.CompoundType  `json:"compound_type"`
	BackupDirPath  string             `json:"backup_dir_path"`
	CreatedObjects []CreatedObject    `json:"created_objects,omitempty"`
	Unlinks        []UnlinkRecord     `json:"unlinks,omitempty"`
	Symlinks       []SymlinkRecord    `json:"symlinks,omitempty"`
	Renames        []RenameRecord     `json:"renames,omitempty"`
}

// Log is the transaction log service.
type Log struct {
	store *kvstore.Store
}

// Open wraps store for use as a transaction log.
func Open(store *kvstore.Store) *Log {
	return &Log{store: store}
}

func txnKey(txnID uint64) []byte {
	key := make([]byte, len(kvstore.PrefixTxnLog)+8)
	copy(key, kvstore.PrefixTxnLog)
	binary.BigEndian.PutUint64(key[len(kvstore.PrefixTxnLog):], txnID)
	return key
}

// Append atomically and durably writes (or overwrites) the record for
// record.TxnID. The core does not depend on entries being append-only:
// repeated calls during the same compound simply overwrite the prior
// snapshot as new per-op records accrue.
func (l *Log) Append(record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fsal.NewInvalidArgumentError(fmt.Sprintf("marshal txn record: %v", err))
	}
	return l.store.PutBatch([]kvstore.KV{{Key: txnKey(record.TxnID), Value: data}})
}

// Load returns the record for txnID, or false if it does not exist.
func (l *Log) Load(txnID uint64) (*Record, bool, error) {
	raw, ok, err := l.store.Get(txnKey(txnID))
	if err != nil || !ok {
		return nil, ok, err
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, false, fsal.NewStorageError(fmt.Sprintf("corrupt txn record %d: %v", txnID, err))
	}
	return &record, true, nil
}

// LoadAll returns every surviving transaction log record, used at crash
// recovery and by txnfsalctl inspect.
func (l *Log) LoadAll() ([]*Record, error) {
	var records []*Record
	err := l.store.ScanPrefix([]byte(kvstore.PrefixTxnLog), func(key, value []byte) error {
		var record Record
		if err := json.Unmarshal(value, &record); err != nil {
			return fsal.NewStorageError(fmt.Sprintf("corrupt txn record: %v", err))
		}
		records = append(records, &record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Remove deletes the record for txnID, called after successful commit or
// successful rollback.
func (l *Log) Remove(txnID uint64) error {
	return l.store.Delete(txnKey(txnID))
}
