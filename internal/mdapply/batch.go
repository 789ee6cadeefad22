package mdapply

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/filoco/filoco/internal/fhandle"
	"github.com/filoco/filoco/internal/ferrors"
	"github.com/filoco/filoco/internal/metrics"
	"github.com/filoco/filoco/internal/model"
	"github.com/filoco/filoco/internal/store"
)

// collectUpdateBatch gathers up to batchSize dirty (or, if force, every)
// FOB starting at startInsertOrder, then extends it with whatever else
// must move alongside them (collect_update_batch).
func (a *Applier) collectUpdateBatch(ctx context.Context, startInsertOrder int64, force bool) ([]*UpdateTask, error) {
	if err := a.store.DB.LockNow(ctx); err != nil {
		return nil, err
	}
	fobs, err := a.store.DirtyFOBs(ctx, startInsertOrder, a.batchSize, force)
	if err != nil {
		return nil, err
	}
	return a.extendUpdateBatch(ctx, fobs)
}

// extendUpdateBatch adds every FOB that has to move alongside fobs: missing
// parents, and other FOBs caught in the same rename cycle
// (extend_update_batch). Must run inside a locked transaction.
func (a *Applier) extendUpdateBatch(ctx context.Context, fobs []model.FOB) ([]*UpdateTask, error) {
	b := &builder{ctx: ctx, a: a, adding: map[model.ID]bool{}, byFOB: map[model.ID]*UpdateTask{}}
	for _, fob := range fobs {
		if _, err := b.addFOB(fob, nil, ""); err != nil {
			if errors.Is(err, ferrors.ErrTooMessy) {
				a.log.Error("cannot update FOB, filesystem/metadata mess", "fob", fob.ID, "err", err)
				metrics.MDApplyTooMessyTotal.Inc()
				continue
			}
			return nil, err
		}
	}
	return b.order, nil
}

// builder is extend_update_batch's closure state, promoted to a type so
// addFOB can recurse through method calls instead of a Python nested
// closure.
type builder struct {
	ctx context.Context
	a   *Applier

	adding map[model.ID]bool
	byFOB  map[model.ID]*UpdateTask
	order  []*UpdateTask
}

func (b *builder) addFOB(fob model.FOB, neededFor *model.ID, neededRole string) (*UpdateTask, error) {
	return b.addFOBCycle(fob, neededFor, neededRole, false)
}

func (b *builder) addFOBCycle(fob model.FOB, neededFor *model.ID, neededRole string, ignoreCycle bool) (*UpdateTask, error) {
	if t, ok := b.byFOB[fob.ID]; ok {
		return t, nil
	}
	if b.adding[fob.ID] {
		if ignoreCycle {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: dependency cycle in FOB %s needed for %s as %s",
			ferrors.ErrTooMessy, fob.ID, neededForStr(neededFor), neededRole)
	}
	b.adding[fob.ID] = true

	flv, conflict, err := b.a.store.CurrentFLV(b.ctx, fob.ID)
	if err != nil {
		return nil, err
	}
	if flv.Kind == "" {
		return nil, fmt.Errorf("%w: FOB %s has no current FLV", ferrors.ErrTooMessy, fob.ID)
	}
	if conflict {
		b.a.log.Warn("name conflict for FOB, using most recently created FLV", "fob", fob.ID, "name", flv.Name)
	}

	task := &UpdateTask{FOB: fob, FLV: flv, NewFLVStamp: fob.NewFLVs}

	var parentInode model.Inode
	var parentRef *fhandle.Ref
	var parentFound bool
	if flv.ParentFOB == nil {
		var rerr error
		parentInode, parentFound, rerr = b.a.store.InodeByIID(b.ctx, model.RootIID)
		if rerr != nil {
			return nil, rerr
		}
		if parentFound {
			parentRef, rerr = openInode(b.a.store, parentInode)
			if rerr != nil {
				return nil, rerr
			}
		}
	} else {
		var rerr error
		parentInode, parentRef, parentFound, rerr = getFOBSingleInode(b.ctx, b.a.store, *flv.ParentFOB)
		if rerr != nil {
			if errors.Is(rerr, ferrors.ErrTooMessy) {
				return nil, fmt.Errorf("%w: resolving parent of FOB %s needed for %s as %s: %v",
					ferrors.ErrTooMessy, fob.ID, neededForStr(neededFor), neededRole, rerr)
			}
			return nil, rerr
		}
	}

	if parentFound {
		task.ParentInode = &parentInode
		task.ParentRef = parentRef
		if parentRef != nil {
			if err := b.checkPigeon(parentRef, flv.Name, fob.ID); err != nil {
				return nil, err
			}
		}
	} else {
		parentFOB, err := b.a.store.GetFOB(b.ctx, *flv.ParentFOB)
		if err != nil {
			return nil, err
		}
		parentTask, err := b.addFOBCycle(parentFOB, &fob.ID, "parent", false)
		if err != nil {
			return nil, err
		}
		task.ParentTask = parentTask
	}

	b.byFOB[fob.ID] = task
	b.order = append(b.order, task)
	return task, nil
}

// checkPigeon looks for an existing directory entry at (parentRef, name):
// the pigeon currently occupying the hole this task wants. If one is
// found and it has a FOB, that FOB has to join the batch too — it may be
// part of the same rename cycle (add_fob's "current pigeon" branch).
func (b *builder) checkPigeon(parentRef *fhandle.Ref, name string, neededFor model.ID) error {
	parentFD, err := parentRef.GetFD()
	if err != nil {
		return err
	}
	fd, err := unix.Openat(int(parentFD.Fd()), name, unix.O_PATH|unix.O_NOFOLLOW, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil
		}
		return fmt.Errorf("%w: querying existing entry at %s for FOB %s: %v", ferrors.ErrTooMessy, name, neededFor, err)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return fmt.Errorf("%w: stat existing entry at %s for FOB %s: %v", ferrors.ErrTooMessy, name, neededFor, err)
	}
	pigeon, found, err := b.a.store.InodeByIno(b.ctx, st.Ino)
	if err != nil {
		return err
	}
	if !found || pigeon.FOB == nil {
		return nil
	}
	pigeonFOB, err := b.a.store.GetFOB(b.ctx, *pigeon.FOB)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return nil
		}
		return err
	}
	if _, err := b.addFOBCycle(pigeonFOB, &neededFor, "current pigeon", true); err != nil {
		if errors.Is(err, ferrors.ErrTooMessy) {
			// Swallowed: the pigeon stays where it is and this task's
			// entry is saved under a longname instead.
			b.a.log.Warn("pigeon FOB could not join update batch, will use longname", "fob", pigeonFOB.ID, "err", err)
			return nil
		}
		return err
	}
	return nil
}

func neededForStr(id *model.ID) string {
	if id == nil {
		return "<batch root>"
	}
	return id.String()
}
