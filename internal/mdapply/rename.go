package mdapply

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/filoco/filoco/internal/fhandle"
	"github.com/filoco/filoco/internal/model"
)

// renameOpts carries rename_and_update_links' optional arguments.
type renameOpts struct {
	Flags    int
	Longname bool
	FOB      model.ID
	TryShort bool
	NewIno   uint64 // the inode to link if no tracked row existed to update
}

// renameToLongname retries a rename under "<name>.FL-<fob-hex>-<n>" for
// increasing n until one doesn't collide, trying the bare shortname first
// when tryShort (rename_to_longname).
func (a *Applier) renameToLongname(srcFD int, srcName string, dstFD int, dstName string, fob model.ID, tryShort bool) (string, error) {
	start := 1
	if tryShort {
		start = 0
	}
	for idx := start; idx < 1000; idx++ {
		target := dstName
		if idx != 0 {
			target = fmt.Sprintf("%s%s%s-%d", dstName, model.LongnameSeparator, fob, idx)
		}
		err := unix.Renameat2(srcFD, srcName, dstFD, target, unix.RENAME_NOREPLACE)
		if err == nil {
			return target, nil
		}
		if errors.Is(err, unix.EEXIST) {
			continue
		}
		return "", fmt.Errorf("mdapply: rename %s to longname %s: %w", srcName, target, err)
	}
	return "", fmt.Errorf("mdapply: %w: exhausted longname suffixes for %s", unix.EEXIST, dstName)
}

// renameAndUpdateLinks performs one directory-entry move and keeps the
// `links` table in sync with it (rename_and_update_links). srcParentIno
// is the existing links-table row's parent ino to update in place, or 0
// when src was not a tracked location (a freshly materialized
// placeholder) — 0 is never a valid kernel inode number, so
// store.MoveLink's update-or-insert falls straight through to inserting a
// fresh row.
func (a *Applier) renameAndUpdateLinks(ctx context.Context,
	srcFD int, srcName string, srcParentIno uint64,
	dstFD int, dstIno uint64, dstName string,
	opts renameOpts) (string, error) {

	var targetName string
	var err error
	if opts.Longname {
		targetName, err = a.renameToLongname(srcFD, srcName, dstFD, dstName, opts.FOB, opts.TryShort)
	} else {
		err = unix.Renameat2(srcFD, srcName, dstFD, dstName, opts.Flags)
		targetName = dstName
	}
	if err != nil {
		return "", err
	}
	if err := a.store.MoveLink(ctx, srcParentIno, srcName, dstIno, targetName, opts.NewIno); err != nil {
		return "", err
	}
	return targetName, nil
}

// goodLink is one still-resolvable directory entry pointing at a live
// inode bound to some FOB (get_good_links's per-row result).
type goodLink struct {
	ParentInode model.Inode
	ParentRef   *fhandle.Ref
	Name        string
	Inode       model.Inode
	ShortCand   bool
	WasShort    bool
}

// getGoodLinks finds every still-valid directory entry across every live
// inode bound to fob — normally one inode and one link, but conflicts,
// races, and incomplete scans can leave more (get_good_links).
func (a *Applier) getGoodLinks(ctx context.Context, fob model.ID) ([]*goodLink, error) {
	inodes, err := getFOBInodes(ctx, a.store, fob)
	if err != nil {
		return nil, err
	}

	var out []*goodLink
	numShorts := 0
	for _, fi := range inodes {
		links, err := a.store.LinksByIno(ctx, fi.Inode.Ino)
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			parentInode, found, err := a.store.InodeByIno(ctx, link.Parent)
			if err != nil {
				return nil, err
			}
			if !found {
				continue
			}
			parentRef, ok, err := checkInode(ctx, a.store, parentInode)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			parentFD, err := parentRef.GetFD()
			if err != nil {
				return nil, err
			}
			fd, err := unix.Openat(int(parentFD.Fd()), link.Name, unix.O_PATH|unix.O_NOFOLLOW, 0)
			if err != nil {
				if errors.Is(err, unix.ENOENT) {
					continue
				}
				return nil, fmt.Errorf("mdapply: checking link %s: %w", link.Name, err)
			}
			unix.Close(fd)

			wasShort := !isLongname(link.Name)
			if wasShort {
				numShorts++
			}
			out = append(out, &goodLink{
				ParentInode: parentInode, ParentRef: parentRef, Name: link.Name,
				Inode: fi.Inode, WasShort: wasShort,
			})
		}
	}
	for _, gl := range out {
		gl.ShortCand = len(out) == 1 || (gl.WasShort && numShorts == 1)
	}
	return out, nil
}

// moveToLongnames renames every task's entry to a unique longname under
// its target parent, breaking any rename cycle in the batch; entries with
// no pigeonhole conflict are retried as a shortname afterward
// (move_to_longnames).
func (a *Applier) moveToLongnames(ctx context.Context, batch []*UpdateTask) error {
	for _, task := range batch {
		fob := task.FOB
		targetInode, targetRef, err := task.getParentInode()
		if err != nil {
			a.log.Warn("target inode not found for FOB, skipping", "fob", fob.ID, "err", err)
			continue
		}
		logicalName := task.FLV.Name

		conflicts, err := a.store.PigeonholeConflicts(ctx, task.FLV)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			a.log.Info("pigeonhole conflict, keeping entries as longnames", "name", logicalName)
		}

		targetFD, err := targetRef.GetFD()
		if err != nil {
			return err
		}
		dstDirFD := int(targetFD.Fd())
		dstIno := targetInode.Ino

		if task.SrcName != "" {
			tryShort := len(conflicts) == 0
			targetName, err := a.renameAndUpdateLinks(ctx, task.SrcDirFD, task.SrcName, 0, dstDirFD, dstIno, logicalName,
				renameOpts{Longname: true, FOB: fob.ID, TryShort: tryShort, NewIno: task.Inode.Ino})
			if err != nil {
				return err
			}
			if tryShort && isLongname(targetName) {
				task.RenameToShort = &renameTarget{ParentInode: targetInode, ParentRef: targetRef, Name: targetName}
			}
			continue
		}

		goodLinks, err := a.getGoodLinks(ctx, fob.ID)
		if err != nil {
			return err
		}
		if len(goodLinks) == 0 {
			a.log.Warn("no good links found for FOB, not renaming; rescan and run mdapply again", "fob", fob.ID)
			continue
		}
		for _, gl := range goodLinks {
			if gl.ParentInode.IID == targetInode.IID && gl.Name == logicalName {
				continue
			}
			tryShort := len(conflicts) == 0 && gl.ShortCand
			srcFD, err := gl.ParentRef.GetFD()
			if err != nil {
				return err
			}
			targetName, err := a.renameAndUpdateLinks(ctx, int(srcFD.Fd()), gl.Name, gl.ParentInode.Ino,
				dstDirFD, dstIno, logicalName,
				renameOpts{Longname: true, FOB: fob.ID, TryShort: tryShort, NewIno: gl.Inode.Ino})
			if err != nil {
				return err
			}
			if tryShort && isLongname(targetName) {
				task.RenameToShort = &renameTarget{ParentInode: targetInode, ParentRef: targetRef, Name: targetName}
			}
		}
	}
	return nil
}

// moveToShortnames retries the longname-held entries back to their
// logical shortname, leaving them as a longname if something else has
// since taken it (move_to_shortnames).
func (a *Applier) moveToShortnames(ctx context.Context, batch []*UpdateTask) error {
	for _, task := range batch {
		if task.RenameToShort == nil {
			continue
		}
		rt := task.RenameToShort
		shortName := strings.Split(rt.Name, model.LongnameSeparator)[0]

		fd, err := rt.ParentRef.GetFD()
		if err != nil {
			return err
		}
		dirFD := int(fd.Fd())
		_, err = a.renameAndUpdateLinks(ctx, dirFD, rt.Name, rt.ParentInode.Ino, dirFD, rt.ParentInode.Ino, shortName,
			renameOpts{Flags: unix.RENAME_NOREPLACE})
		if err != nil {
			if errors.Is(err, unix.EEXIST) {
				a.log.Warn("cannot rename to shortname, something is in the way", "name", rt.Name)
				continue
			}
			return err
		}
	}
	return nil
}

// markAsUpdated clears each task's FOB dirty stamp with a stamp-versioned
// compare-and-swap, so a concurrent scanner bump in between isn't lost
// (mark_as_updated).
func (a *Applier) markAsUpdated(ctx context.Context, batch []*UpdateTask) error {
	for _, task := range batch {
		if err := a.store.ClearFOBStamp(ctx, task.FOB.ID, task.NewFLVStamp); err != nil {
			return err
		}
	}
	return nil
}
