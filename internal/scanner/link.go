package scanner

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/filoco/filoco/internal/model"
)

// stripLongname removes a trailing ".FL-<hex>-<n>" disambiguation suffix,
// returning the logical name a new FLV should carry.
func stripLongname(name string) string {
	i := strings.LastIndex(name, model.LongnameSeparator)
	if i < 0 {
		return name
	}
	rest := name[i+len(model.LongnameSeparator):]
	parts := strings.Split(rest, "-")
	if len(parts) != 2 {
		return name
	}
	if _, err := strconv.Atoi(parts[1]); err != nil {
		return name
	}
	return name[:i]
}

func isLongname(name string) bool {
	return stripLongname(name) != name
}

func (sc *Scanner) nextSerial(ctx context.Context) (uint64, error) {
	max, err := sc.store.MaxSerial(ctx, sc.store.StoreID)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// createFOB assigns a brand-new FOB (and, for non-root inodes, its placing
// FLV) to ino, mirroring create_fob in the original scanner. parentFOB is
// nil for the store root.
func (sc *Scanner) createFOB(ctx context.Context, ino *model.Inode, parentFOB *model.ID, name string) error {
	serial, err := sc.nextSerial(ctx)
	if err != nil {
		return err
	}
	fob, err := sc.store.InsertFOB(ctx, model.NewID(), sc.store.StoreID, serial, ino.Type)
	if err != nil {
		return err
	}
	ino.FOB = &fob.ID

	if parentFOB == nil {
		// Root: identity only, no placement claim.
		return sc.store.AssignFOB(ctx, ino.IID, fob.ID, nil, nil)
	}

	flvSerial, err := sc.nextSerial(ctx)
	if err != nil {
		return err
	}
	flv, err := sc.store.InsertFLV(ctx, model.NewID(), sc.store.StoreID, flvSerial, fob.ID, parentFOB, stripLongname(name), nil, time.Now())
	if err != nil {
		return err
	}
	ino.FLV = &flv.ID
	return sc.store.AssignFOB(ctx, ino.IID, fob.ID, &flv.ID, nil)
}

// onLinkToFOB assigns a new FLV placement to an inode whose FOB already
// exists (on_link_to_fob in the original scanner). Longnamed entries never
// emit a new FLV — they are local-only disambiguation, not a real rename.
func (sc *Scanner) onLinkToFOB(ctx context.Context, ino *model.Inode, parentFOB model.ID, name string) error {
	if isLongname(name) {
		return nil
	}
	var parentVers []model.ID
	if ino.FLV != nil {
		parentVers = []model.ID{*ino.FLV}
	}
	serial, err := sc.nextSerial(ctx)
	if err != nil {
		return err
	}
	flv, err := sc.store.InsertFLV(ctx, model.NewID(), sc.store.StoreID, serial, *ino.FOB, &parentFOB, stripLongname(name), parentVers, time.Now())
	if err != nil {
		return err
	}
	ino.FLV = &flv.ID
	return sc.store.UpdateInodeFLV(ctx, ino.IID, flv.ID)
}

// onLink applies spec.md §4.D's link-time logic for a freshly-observed or
// changed (parentIno, name) -> ino binding. oldIno/hadOld identify what
// previously occupied that link row, if anything, for replace detection.
// triggeredByNotification gates the FOB_CREATE_WAIT deferral.
func (sc *Scanner) onLink(ctx context.Context, parent model.Inode, ino *model.Inode, name string, hadOld bool, oldIno uint64, triggeredByNotification bool) error {
	if ino.Type == model.TypeRegular && hadOld && ino.FOB == nil {
		old, found, err := sc.store.InodeByIno(ctx, oldIno)
		if err != nil {
			return err
		}
		if found && old.FOB != nil {
			var parentVers []model.ID
			if old.FCV != nil {
				parentVers = []model.ID{*old.FCV}
			}
			serial, err := sc.nextSerial(ctx)
			if err != nil {
				return err
			}
			fcv, err := sc.store.InsertFCV(ctx, model.NewID(), sc.store.StoreID, serial, *old.FOB, nil, parentVers, time.Now())
			if err != nil {
				return err
			}
			return sc.store.AssignFOB(ctx, ino.IID, *old.FOB, old.FLV, &fcv.ID)
		}
	}

	if parent.FOB == nil {
		// Parent not yet linked to a FOB itself (mid-bootstrap); nothing
		// to do until it is.
		return nil
	}

	if ino.FOB == nil {
		if ino.Type != model.TypeDir && ino.Type != model.TypeRegular {
			return nil
		}
		if triggeredByNotification && sc.clock.Now().Sub(ino.Btime) < FOBCreateWait {
			sc.deferCheck(parent.Ino, name)
			return nil
		}
		return sc.createFOB(ctx, ino, parent.FOB, name)
	}

	return sc.onLinkToFOB(ctx, ino, *parent.FOB, name)
}

// deferCheck re-queues a CHECK for (parentIno, name) once FOB_CREATE_WAIT
// has elapsed, via the injected clock so tests can run it deterministically.
func (sc *Scanner) deferCheck(parentIno uint64, name string) {
	go func() {
		<-sc.clock.After(FOBCreateWait)
		sc.queue.Push(parentIno, ActionCheck, Target{ByEntry: true, ParentIno: parentIno, Name: name})
	}()
}
