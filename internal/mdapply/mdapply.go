// Package mdapply implements component F: materializing the local
// filesystem to match the metadata store's current FOB/FLV placements —
// placeholder creation, cycle-safe batched renames, and the WAL-checkpoint
// discipline that keeps a crash mid-apply resumable (spec.md §4.F).
package mdapply

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/filoco/filoco/internal/logger"
	"github.com/filoco/filoco/internal/metrics"
	"github.com/filoco/filoco/internal/store"
)

// Applier drives update batches to completion against one store.
type Applier struct {
	store     *store.Store
	log       *slog.Logger
	batchSize int
}

// New constructs an Applier, sizing its batches from RLIMIT_NOFILE
// (spec.md §4.F step 1).
func New(st *store.Store) (*Applier, error) {
	size, err := computeBatchSize()
	if err != nil {
		return nil, err
	}
	return &Applier{store: st, log: logger.For("mdapply"), batchSize: size}, nil
}

// Run drives batches to completion starting from the lowest FOB
// insert_order, until no dirty (or, with force, any remaining) FOB is
// left (run).
func (a *Applier) Run(ctx context.Context, force bool) error {
	start := int64(0)
	for {
		end, ok, err := a.performOneBatch(ctx, start, force)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		metrics.MDApplyBatchesTotal.Inc()
		start = end + 1
	}
}

// performOneBatch runs one batch's full two-transaction pipeline:
// collect+placeholders+new-inodes, a WAL checkpoint outside any
// transaction, then the longname/shortname rename phases and the
// stamp-versioned commit markers (perform_one_batch).
func (a *Applier) performOneBatch(ctx context.Context, start int64, force bool) (int64, bool, error) {
	var batch []*UpdateTask
	err := a.withTx(ctx, func(ctx context.Context) error {
		var err error
		batch, err = a.collectUpdateBatch(ctx, start, force)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := a.cleanupPlaceholders(ctx); err != nil {
			return err
		}
		return a.createNewInodes(ctx, batch)
	})
	if err != nil {
		return 0, false, err
	}
	if len(batch) == 0 {
		return 0, false, nil
	}

	// Synchronize all metadata changes to disk before moving any inode:
	// otherwise a power failure between this point and the rename
	// transaction could let a future scan find an unassociated new inode
	// and mint a duplicate FOB for it (spec.md §4.F step 4).
	if err := a.store.DB.CheckpointWAL(ctx); err != nil {
		return 0, false, err
	}

	err = a.withTx(ctx, func(ctx context.Context) error {
		if err := a.moveToLongnames(ctx, batch); err != nil {
			return err
		}
		if err := a.moveToShortnames(ctx, batch); err != nil {
			return err
		}
		if err := unix.Syncfs(int(a.store.RootDir.Fd())); err != nil {
			return fmt.Errorf("mdapply: syncfs: %w", err)
		}
		return a.markAsUpdated(ctx, batch)
	})
	if err != nil {
		return 0, false, err
	}

	return batch[len(batch)-1].FOB.InsertOrder, true, nil
}

// withTx runs fn inside a locked transaction scope, committing on success
// and rolling back on error (ensure_transaction + lock_now).
func (a *Applier) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := a.store.DB.EnsureTransaction(ctx)
	if err != nil {
		return err
	}
	if err := a.store.DB.LockNow(ctx); err != nil {
		tx.Rollback()
		return err
	}
	if err := fn(ctx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
