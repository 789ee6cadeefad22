package scanner

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/filoco/filoco/internal/fhandle"
	"github.com/filoco/filoco/internal/model"
)

// scanDir implements spec.md §4.D's directory scan: snapshot stat, read
// entries through the open descriptor, reconcile each into an inode/link,
// delete stale links, then re-stat to detect a race.
func (sc *Scanner) scanDir(ctx context.Context, dir model.Inode, dirRef *fhandle.Ref) error {
	before, err := dirRef.GetStat(true)
	if err != nil {
		return fmt.Errorf("scanner: stat dir: %w", err)
	}

	dirFD, err := dirRef.GetFD()
	if err != nil {
		return err
	}
	// Reopen through the path-less descriptor itself so renames of the
	// directory between here and the readdir below cannot matter.
	readFD, err := unix.Openat(int(dirFD.Fd()), ".", unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("scanner: reopen dir for readdir: %w", err)
	}
	readDir := os.NewFile(uintptr(readFD), dir.IID)
	names, err := readDir.Readdirnames(-1)
	readDir.Close()
	if err != nil {
		return fmt.Errorf("scanner: readdir: %w", err)
	}

	seen := map[string]bool{}
	for _, name := range names {
		if !validUTF8Name(name) {
			sc.log.Warn("skipping non-UTF-8 or reserved entry", "dir", dir.IID, "name", name)
			continue
		}
		seen[name] = true
		if err := sc.scanEntry(ctx, dir, int(dirFD.Fd()), name); err != nil {
			sc.log.Warn("scan entry failed", "dir", dir.IID, "name", name, "err", err)
		}
	}

	if err := sc.store.DeleteLinksNotIn(ctx, dir.Ino, seen); err != nil {
		return err
	}

	after, err := dirRef.GetStat(true)
	if err != nil {
		return fmt.Errorf("scanner: re-stat dir: %w", err)
	}
	beforeTuple := model.StatTuple{Mtime: timeFromTimespec(before.Mtim), Ctime: timeFromTimespec(before.Ctim), Size: before.Size, Ino: before.Ino}
	afterTuple := model.StatTuple{Mtime: timeFromTimespec(after.Mtim), Ctime: timeFromTimespec(after.Ctim), Size: after.Size, Ino: after.Ino}
	if beforeTuple.Equal(afterTuple) {
		return sc.store.UpdateInodeScanState(ctx, dir.Ino, model.ScanUpToDate, afterTuple)
	}
	// An unobserved mutation happened mid-scan. Schedule a retry with
	// backoff rather than looping inline, to avoid livelock against a
	// directory that is continuously touched.
	if err := sc.store.SetInodeScanState(ctx, dir.Ino, model.ScanNeedsRescan); err != nil {
		return err
	}
	sc.deferRescan(dir.Ino)
	return nil
}

// scanEntry reconciles one directory entry: open it path-lessly,
// find-or-create its inode, and update the (parent, name) link row,
// invoking onLink whenever the observed inode differs from what the link
// row previously pointed at.
func (sc *Scanner) scanEntry(ctx context.Context, parent model.Inode, dirFD int, name string) error {
	ref, err := fhandle.AcquireFromPath(sc.store, dirFD, name)
	if err != nil {
		// ENOENT/ESTALE: entry vanished between readdir and open; the
		// post-pass stale-link cleanup will drop its row if one existed.
		return nil
	}
	defer ref.Close()

	ino, _, err := sc.findOrCreateInode(ctx, ref, false)
	if err != nil {
		return err
	}

	oldIno, hadOld, err := sc.store.LinkByParentName(ctx, parent.Ino, name)
	if err != nil {
		return err
	}
	if err := sc.store.UpsertLink(ctx, parent.Ino, name, ino.Ino); err != nil {
		return err
	}
	if hadOld && oldIno == ino.Ino {
		return nil // unchanged binding, no on_link work
	}
	return sc.onLink(ctx, parent, &ino, name, hadOld, oldIno, false)
}

func timeFromTimespec(ts unix.Timespec) time.Time {
	return time.Unix(ts.Sec, ts.Nsec)
}

// deferRescan re-queues a SCAN of ino once both a short clock-driven delay
// and the shared rescan rate limiter allow it. The limiter (rather than a
// bare sleep) is what keeps a thundering herd of simultaneously-racing
// directories from livelocking the scan worker — the original scanner left
// this as a TODO for "exponential backoff ideally".
func (sc *Scanner) deferRescan(ino uint64) {
	go func() {
		<-sc.clock.After(rescanBackoff)
		_ = sc.rescanLimiter.Wait(context.Background())
		sc.queue.Push(ino, ActionScan, Target{Ino: ino})
	}()
}

const rescanBackoff = 2 * time.Second
