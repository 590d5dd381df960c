// Package coordinator drives one compound's lifecycle end to end: lock
// acquisition, transaction bookkeeping, per-operation backup snapshots,
// and the terminal commit-or-rollback decision.
//
// Live in-process rollback and crash-recovery replay share one undo
// executor: both start from the same transaction-log Record shape
// (pkg/txnlog) built incrementally as operations execute, so there is no
// need for a separate replay pass reconstructed from opaque compound
// arg/result vectors the way a three-way restore/remove/no-op undo would
// otherwise require — the ObjectHandle verb set already carries everything
// the undo executor needs.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/txnfsal/txnfsal/internal/logger"
	"github.com/txnfsal/txnfsal/pkg/backupstore"
	"github.com/txnfsal/txnfsal/pkg/cleanup"
	"github.com/txnfsal/txnfsal/pkg/fsal"
	"github.com/txnfsal/txnfsal/pkg/identitymap"
	"github.com/txnfsal/txnfsal/pkg/lockmgr"
	"github.com/txnfsal/txnfsal/pkg/txnlog"
	"github.com/txnfsal/txnfsal/pkg/undo"
)

// recoveryFanout bounds how many transaction-log records Recover replays
// concurrently at startup. Records are independent transactions (each one
// a distinct, already-abandoned compound) so replaying several at once is
// safe, but an export with tens of thousands of stranded records shouldn't
// spawn tens of thousands of goroutines against the lower filesystem at
// once.
const recoveryFanout = 32

// State is the compound lifecycle's current phase.
type State int

const (
	StateIdle State = iota
	StatePrepared
	StateExecuting
	StateCommitting
	StateRollingBack
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePrepared:
		return "prepared"
	case StateExecuting:
		return "executing"
	case StateCommitting:
		return "committing"
	case StateRollingBack:
		return "rolling_back"
	default:
		return "unknown"
	}
}

// Coordinator wires together every core service needed to run a compound's
// lifecycle: the identity map, transaction log, backup store, path lock
// table, undo executor, and async cleanup worker.
type Coordinator struct {
	idmap    *identitymap.Map
	log      *txnlog.Log
	backups  *backupstore.Store
	locks    *lockmgr.Manager
	undoExec *undo.Executor
	worker   *cleanup.Worker

	nextTxnID atomic.Uint64
}

// New returns a Coordinator wired to the given services.
func New(idmap *identitymap.Map, log *txnlog.Log, backups *backupstore.Store, locks *lockmgr.Manager, worker *cleanup.Worker) *Coordinator {
	return &Coordinator{
		idmap:    idmap,
		log:      log,
		backups:  backups,
		locks:    locks,
		undoExec: undo.New(idmap, backups),
		worker:   worker,
	}
}

// Compound is one in-flight compound's accumulated state.
type Compound struct {
	TxnID  uint64
	state  State
	export fsal.Export
	cache  *identitymap.Cache
	record *txnlog.Record
	lock   *lockmgr.Handle

	uuidPool []fsal.UUID
	poolNext int
}

// State returns the compound's current lifecycle phase.
func (c *Compound) State() State { return c.state }

// StartCompound acquires the compound's path locks, allocates a
// transaction id, pre-allocates a UUID pool sized to opCount, writes the
// initial transaction-log record, and invokes the lower FSAL's own
// start_compound.
func (co *Coordinator) StartCompound(ctx context.Context, export fsal.Export, opCount int, lockReqs []lockmgr.Request) (*Compound, error) {
	lockHandle, err := co.locks.AcquireForCompound(lockReqs)
	if err != nil {
		return nil, err
	}

	txnID := co.nextTxnID.Add(1)
	cache := identitymap.NewCache(opCount)

	pool := make([]fsal.UUID, 0, opCount)
	for i := 0; i < opCount; i++ {
		u, err := co.idmap.AllocateUUID()
		if err != nil {
			lockHandle.Unlock()
			return nil, err
		}
		pool = append(pool, u)
	}

	record := &txnlog.Record{TxnID: txnID, CompoundType: fsal.CompoundNone}
	if err := co.log.Append(record); err != nil {
		lockHandle.Unlock()
		return nil, err
	}

	if err := export.StartCompound(ctx, opCount); err != nil {
		co.log.Remove(txnID)
		lockHandle.Unlock()
		return nil, err
	}

	logger.Info("compound started", logger.TxnID(txnID), "op_count", opCount)
	return &Compound{
		TxnID:    txnID,
		state:    StateExecuting,
		export:   export,
		cache:    cache,
		record:   record,
		lock:     lockHandle,
		uuidPool: pool,
	}, nil
}

// NextUUID consumes one UUID from the compound's pre-allocated pool,
// failing the op if the pool is exhausted.
func (c *Compound) NextUUID() (fsal.UUID, error) {
	if c.poolNext >= len(c.uuidPool) {
		return fsal.UUID{}, fsal.NewPoolExhaustedError(c.poolNext)
	}
	u := c.uuidPool[c.poolNext]
	c.poolNext++
	return u, nil
}

// BeginMutatingOp snapshots the pre-image of the object a mutating op is
// about to touch, lazily creating the backup directory on first use, and
// stamps the compound's type on first observation (compounds are
// homogeneous by policy).
func (co *Coordinator) BeginMutatingOp(compound *Compound, opIndex int, kind fsal.CompoundType, target fsal.ObjectHandle, offset, length int64) error {
	if compound.record.CompoundType == fsal.CompoundNone {
		compound.record.CompoundType = kind
		if _, err := compound.ensureBackupDir(co); err != nil {
			return err
		}
		if err := co.log.Append(compound.record); err != nil {
			return err
		}
	}
	if target == nil {
		return nil
	}
	return co.backups.Snapshot(compound.TxnID, opIndex, target.Path(), target.Type(), offset, length)
}

func (c *Compound) ensureBackupDir(co *Coordinator) (string, error) {
	dir, err := co.backups.EnsureTxnDir(c.TxnID)
	if err != nil {
		return "", err
	}
	c.record.BackupDirPath = dir
	return dir, nil
}

// RecordCreate records a newly allocated UUID↔host-handle binding in the
// compound's write-back cache and appends it to the transaction log's
// created-object list.
func (co *Coordinator) RecordCreate(compound *Compound, u fsal.UUID, hostHandle []byte, path string, baseID fsal.UUID, isDirectory bool) error {
	co.idmap.BindAllocated(compound.cache, u, hostHandle)
	compound.record.CreatedObjects = append(compound.record.CreatedObjects, txnlog.CreatedObject{
		BaseID:      baseID,
		BaseIsDir:   !baseID.IsZero(),
		Path:        path,
		AllocatedID: u,
		IsDirectory: isDirectory,
	})
	return co.log.Append(compound.record)
}

// RecordUnlink records a pending REMOVE for crash recovery.
func (co *Coordinator) RecordUnlink(compound *Compound, parentID fsal.UUID, name string) error {
	compound.record.Unlinks = append(compound.record.Unlinks, txnlog.UnlinkRecord{ParentID: parentID, Name: name})
	return co.log.Append(compound.record)
}

// RecordSymlink records a pending SYMLINK for crash recovery.
func (co *Coordinator) RecordSymlink(compound *Compound, parentID fsal.UUID, name, target string) error {
	compound.record.Symlinks = append(compound.record.Symlinks, txnlog.SymlinkRecord{ParentID: parentID, Name: name, Target: target})
	return co.log.Append(compound.record)
}

// RecordDelete records a tentative removal of uuid in the compound's
// write-back cache, used when a mutating op unbinds an existing object.
func (co *Coordinator) RecordDelete(compound *Compound, u fsal.UUID, hostHandle []byte) {
	co.idmap.MarkDeleted(compound.cache, u, hostHandle)
}

// EndCompound commits or rolls back the compound depending on success, and
// releases every resource start_compound acquired.
func (co *Coordinator) EndCompound(ctx context.Context, compound *Compound, success bool) error {
	defer compound.lock.Unlock()

	if success {
		compound.state = StateCommitting
		if err := co.idmap.Commit(compound.cache); err != nil {
			return fmt.Errorf("commit identity map: %w", err)
		}
		if err := co.log.Remove(compound.TxnID); err != nil {
			return fmt.Errorf("remove transaction log record: %w", err)
		}
		if co.worker != nil {
			if err := co.worker.Submit(compound.TxnID); err != nil {
				logger.Warn("cleanup submission failed", logger.TxnID(compound.TxnID), logger.Err(err))
			}
		}
		logger.Info("compound committed", logger.TxnID(compound.TxnID))
	} else {
		compound.state = StateRollingBack
		if err := co.log.Append(compound.record); err != nil {
			logger.Warn("failed to persist final record before rollback", logger.TxnID(compound.TxnID), logger.Err(err))
		}
		if err := co.undoExec.Execute(ctx, compound.record, compound.export); err != nil {
			logger.Warn("undo execution reported errors", logger.TxnID(compound.TxnID), logger.Err(err))
		}
		if err := co.log.Remove(compound.TxnID); err != nil {
			logger.Warn("failed to remove transaction log record after rollback", logger.TxnID(compound.TxnID), logger.Err(err))
		}
		if err := co.backups.DeleteTxnDir(compound.TxnID); err != nil {
			logger.Warn("failed to delete backup dir after rollback", logger.TxnID(compound.TxnID), logger.Err(err))
		}
		co.idmap.Discard(compound.cache)
		logger.Info("compound rolled back", logger.TxnID(compound.TxnID))
	}

	if err := compound.export.EndCompound(ctx, success); err != nil {
		return err
	}
	compound.state = StateIdle
	return nil
}

// Recover replays every surviving transaction-log record against export,
// for use at startup after an unclean shutdown. Records are
// independent transactions, so they are replayed concurrently up to
// recoveryFanout at a time rather than one at a time.
func (co *Coordinator) Recover(ctx context.Context, export fsal.Export) (int, error) {
	records, err := co.log.LoadAll()
	if err != nil {
		return 0, err
	}

	sem := semaphore.NewWeighted(recoveryFanout)
	var wg sync.WaitGroup
	var mu sync.Mutex
	recovered := 0

	for _, record := range records {
		if err := sem.Acquire(ctx, 1); err != nil {
			logger.Warn("recovery fan-out cancelled", logger.Err(err))
			break
		}
		wg.Add(1)
		go func(record *txnlog.Record) {
			defer wg.Done()
			defer sem.Release(1)
			co.recoverOne(ctx, export, record, &mu, &recovered)
		}(record)
	}
	wg.Wait()
	return recovered, nil
}

func (co *Coordinator) recoverOne(ctx context.Context, export fsal.Export, record *txnlog.Record, mu *sync.Mutex, recovered *int) {
	if err := co.undoExec.Execute(ctx, record, export); err != nil {
		logger.Warn("crash recovery undo reported errors", logger.TxnID(record.TxnID), logger.Err(err))
		return
	}
	if err := co.log.Remove(record.TxnID); err != nil {
		logger.Warn("failed to remove recovered transaction log record", logger.TxnID(record.TxnID), logger.Err(err))
		return
	}
	if err := co.backups.DeleteTxnDir(record.TxnID); err != nil {
		logger.Warn("failed to delete recovered backup dir", logger.TxnID(record.TxnID), logger.Err(err))
	}
	mu.Lock()
	*recovered++
	mu.Unlock()
}
