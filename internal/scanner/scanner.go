// Package scanner implements component D: the on-line engine that turns
// filesystem state and change notifications into inodes, links, and new
// FOB/FLV/FCV syncables, tolerating races and crashes.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/filoco/filoco/clock"
	"github.com/filoco/filoco/internal/ferrors"
	"github.com/filoco/filoco/internal/fhandle"
	"github.com/filoco/filoco/internal/logger"
	"github.com/filoco/filoco/internal/metrics"
	"github.com/filoco/filoco/internal/model"
	"github.com/filoco/filoco/internal/store"
)

// QueueMaxFDs is the global soft cap on descriptors held by queued scan
// targets; above it, targets demote their Ref to weak (spec.md §5).
const QueueMaxFDs = 1000

// FanotifyInterval is not referenced by the fanotify backend, which forwards
// each event to the scanner as soon as it is read.
const FanotifyInterval = 5 * time.Second

// FOBCreateWait is the window onLink uses to defer FOB creation for a
// recently-created inode when its triggeredByNotification argument is set,
// to absorb "write tmpfile, rename over" idioms. The only caller, scanEntry,
// always passes false, so no scan currently defers FOB creation.
const FOBCreateWait = 30 * time.Second

// yieldEvery bounds how many DB operations the worker performs before
// yielding, so a long walk does not starve the protocol/applier tasks
// sharing the same process (spec.md §5).
const yieldEvery = 500

// Scanner owns the priority queue, the open-Ref table, and the watcher
// backend for one store.
type Scanner struct {
	store *store.Store
	clock clock.Clock
	log   *slog.Logger
	watch Watcher
	queue *Queue
	refs  map[uint64]*fhandle.Ref // ino -> open ref, trimmed under FD pressure

	// rescanLimiter bounds how often NEEDS_RESCAN retries are admitted
	// overall, so many simultaneously-racing directories back off as a
	// group instead of each spinning independently.
	rescanLimiter *rate.Limiter

	opCount int
}

// New constructs a Scanner over an already-open store. mode selects the
// notification backend ("none" runs purely request-driven, e.g. one-shot
// `scan DIR`).
func New(ctx context.Context, st *store.Store, mode WatchMode, clk clock.Clock) (*Scanner, error) {
	w, err := NewWatcher(mode, st.RootPath)
	if err != nil {
		return nil, err
	}
	sc := &Scanner{
		store:         st,
		clock:         clk,
		log:           logger.For("scanner"),
		watch:         w,
		queue:         NewQueue(),
		refs:          map[uint64]*fhandle.Ref{},
		rescanLimiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 4),
	}
	if err := sc.bootstrapRoot(ctx); err != nil {
		w.Close()
		return nil, err
	}
	return sc, nil
}

func (sc *Scanner) Close() error { return sc.watch.Close() }

// ScanOnce drives the queue to completion without waiting on the watcher —
// the `scan DIR` one-shot CLI mode.
func (sc *Scanner) ScanOnce(ctx context.Context) error {
	sc.queue.Push(0, ActionScanRecursive, Target{ByEntry: false, Ino: rootSentinelIno})
	for sc.queue.Len() > 0 {
		if err := sc.step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run drives the queue forever, also draining watcher events into it, until
// ctx is cancelled.
func (sc *Scanner) Run(ctx context.Context) error {
	sc.queue.Push(0, ActionScanRecursive, Target{ByEntry: false, Ino: rootSentinelIno})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sc.watch.Events():
			if !ok {
				sc.watch = newNoneWatcher()
				continue
			}
			sc.queue.Push(ev.DirIno, ActionCheck, Target{ByEntry: true, ParentIno: ev.DirIno, Name: ev.Name})
		default:
			if sc.queue.Len() == 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case ev, ok := <-sc.watch.Events():
					if !ok {
						sc.watch = newNoneWatcher()
						continue
					}
					sc.queue.Push(ev.DirIno, ActionCheck, Target{ByEntry: true, ParentIno: ev.DirIno, Name: ev.Name})
				}
				continue
			}
			if err := sc.step(ctx); err != nil {
				sc.log.Warn("scan step failed", "err", err)
			}
		}
	}
}

// rootSentinelIno marks a queued request as "resolve the store root",
// since the root's real inode number isn't known until first bootstrapped.
const rootSentinelIno = 0

func (sc *Scanner) step(ctx context.Context) error {
	req, ok := sc.queue.Pop()
	if !ok {
		return nil
	}
	metrics.ScanRequestsTotal.WithLabelValues(req.Action.String()).Inc()
	sc.opCount++
	if sc.opCount%yieldEvery == 0 {
		// voluntary yield point, matching the original's cooperative
		// scheduling discipline.
		runtime.Gosched()
	}

	if req.Target.Ino == rootSentinelIno && !req.Target.ByEntry {
		root, _, err := sc.store.InodeByIID(ctx, model.RootIID)
		if err != nil {
			return err
		}
		ref, err := sc.openByInode(root)
		if err != nil {
			return err
		}
		return sc.scanDir(ctx, root, ref)
	}

	if req.Target.ByEntry {
		return sc.handleCheck(ctx, req.Target)
	}

	ino, found, err := sc.store.InodeByIno(ctx, req.Target.Ino)
	if err != nil || !found {
		return err
	}
	ref, err := sc.openByInode(ino)
	if err != nil {
		sc.log.Warn("open failed, dropping inode", "ino", ino.Ino, "err", err)
		return sc.store.DeleteInode(ctx, ino.IID)
	}
	defer sc.releaseRef(ino.Ino, ref)

	switch req.Action {
	case ActionScan, ActionScanRecursive:
		if ino.Type != model.TypeDir {
			return nil
		}
		return sc.scanDir(ctx, ino, ref)
	case ActionCheck:
		_, err := ref.GetStat(true)
		return err
	}
	return nil
}

// handleCheck resolves a watcher-reported (parentIno, name) pair back to a
// directory and rescans it at once with scanDir — all state changes still
// flow through scanDir's snapshot-and-reconcile pass, never the event
// payload directly.
func (sc *Scanner) handleCheck(ctx context.Context, t Target) error {
	parent, found, err := sc.store.InodeByIno(ctx, t.ParentIno)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	ref, err := sc.openByInode(parent)
	if err != nil {
		return nil
	}
	defer sc.releaseRef(parent.Ino, ref)
	return sc.scanDir(ctx, parent, ref)
}

// openByInode opens dirFD-less a reference for an already-known inode,
// reusing a cached Ref if the FD pressure valve hasn't dropped it.
func (sc *Scanner) openByInode(ino model.Inode) (*fhandle.Ref, error) {
	if r, ok := sc.refs[ino.Ino]; ok {
		return r, nil
	}
	h := fhandle.FileHandle{Type: ino.HandleType, Bytes: ino.Handle}
	if h.IsZero() {
		return nil, fmt.Errorf("scanner: inode %d has no handle", ino.Ino)
	}
	ref := fhandle.AcquireFromHandle(sc.store, h)
	if _, err := ref.GetFD(); err != nil {
		return nil, err
	}
	sc.refs[ino.Ino] = ref
	return ref, nil
}

func (sc *Scanner) releaseRef(ino uint64, ref *fhandle.Ref) {
	if len(sc.refs) <= QueueMaxFDs {
		return
	}
	if err := ref.Demote(); err == nil {
		delete(sc.refs, ino)
	}
}

// bootstrapRoot ensures an `iid = 'ROOT'` inode record exists, finding the
// root inode and assigning it a FOB directly if one is missing — the root
// has no parent link, so it can never go through on_link's policy.
func (sc *Scanner) bootstrapRoot(ctx context.Context) error {
	existing, found, err := sc.store.InodeByIID(ctx, model.RootIID)
	if err != nil {
		return err
	}
	if found {
		if existing.FOB == nil {
			return sc.createFOB(ctx, &existing, nil, "")
		}
		return nil
	}

	ref, err := fhandle.AcquireFromPath(sc.store, int(sc.store.RootDir.Fd()), ".")
	if err != nil {
		return fmt.Errorf("scanner: acquiring root ref: %w", err)
	}
	root, err := sc.newInodeRecord(ctx, ref, model.RootIID)
	if err != nil {
		return err
	}
	return sc.createFOB(ctx, &root, nil, "")
}

// findOrCreateInode implements spec.md §4.D's "Find-or-create (inode)":
// look up by kernel inode number, validating the stored handle is still
// live; otherwise replace the stale record. isRoot callers get a hard
// ErrInvariantViolated instead of silent replacement.
func (sc *Scanner) findOrCreateInode(ctx context.Context, ref *fhandle.Ref, isRoot bool) (model.Inode, bool, error) {
	st, err := ref.GetStat(false)
	if err != nil {
		return model.Inode{}, false, err
	}
	existing, found, err := sc.store.InodeByIno(ctx, st.Ino)
	if err != nil {
		return model.Inode{}, false, err
	}
	if found {
		storedHandle := fhandle.FileHandle{Type: existing.HandleType, Bytes: existing.Handle}
		observedHandle, err := ref.GetHandle()
		if err == nil && (storedHandle.Equal(observedHandle) || sc.store.HandleExists(storedHandle)) {
			return existing, false, nil
		}
		if isRoot {
			return model.Inode{}, false, fmt.Errorf("%w: root inode replaced", ferrors.ErrInvariantViolated)
		}
		if err := sc.store.DeleteInode(ctx, existing.IID); err != nil {
			return model.Inode{}, false, err
		}
	}

	iid := model.NewID().String()
	if isRoot {
		iid = model.RootIID
	}
	ino, err := sc.newInodeRecord(ctx, ref, iid)
	if err != nil {
		return model.Inode{}, false, err
	}
	return ino, true, nil
}

func (sc *Scanner) newInodeRecord(ctx context.Context, ref *fhandle.Ref, iid string) (model.Inode, error) {
	st, err := ref.GetStat(false)
	if err != nil {
		return model.Inode{}, err
	}
	handle, err := ref.GetHandle()
	if err != nil {
		return model.Inode{}, err
	}
	typ, err := ref.GetType()
	if err != nil {
		return model.Inode{}, err
	}
	ino := model.Inode{
		IID:        iid,
		Ino:        st.Ino,
		HandleType: handle.Type,
		Handle:     handle.Bytes,
		Type:       typ,
		Size:       st.Size,
		Mtime:      time.Unix(st.Mtim.Sec, st.Mtim.Nsec),
		// stat(2) carries no birth time on Linux; ctime is the closest
		// proxy and is what the original scanner also uses for the
		// FOB_CREATE_WAIT heuristic.
		Ctime:     time.Unix(st.Ctim.Sec, st.Ctim.Nsec),
		Btime:     time.Unix(st.Ctim.Sec, st.Ctim.Nsec),
		ScanState: model.ScanNeverScanned,
	}
	if err := sc.store.InsertInode(ctx, ino); err != nil {
		return model.Inode{}, err
	}
	if typ == model.TypeDir {
		sc.queue.Push(ino.Ino, ActionScan, Target{Ino: ino.Ino})
	}
	return ino, nil
}

// validUTF8Name reports whether name is a valid directory entry name to
// track; non-UTF-8 names are skipped with a warning (spec.md §4.D step 2).
func validUTF8Name(name string) bool {
	return name != "." && name != ".." && name != filepath.Base(store.MetaDir) && utf8.ValidString(name)
}
