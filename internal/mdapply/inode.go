package mdapply

import (
	"context"
	"errors"
	"fmt"

	"github.com/filoco/filoco/internal/fhandle"
	"github.com/filoco/filoco/internal/ferrors"
	"github.com/filoco/filoco/internal/model"
	"github.com/filoco/filoco/internal/store"
)

// openInode opens a reference for an already-scanned inode by its stored
// kernel handle, without the scanner's caching/demotion table — MDApply's
// refs are short-lived, all released at the end of one batch.
func openInode(st *store.Store, ino model.Inode) (*fhandle.Ref, error) {
	h := fhandle.FileHandle{Type: ino.HandleType, Bytes: ino.Handle}
	if h.IsZero() {
		return nil, fmt.Errorf("mdapply: inode %d has no handle", ino.Ino)
	}
	ref := fhandle.AcquireFromHandle(st, h)
	if _, err := ref.GetFD(); err != nil {
		return nil, err
	}
	return ref, nil
}

// checkInode reopens ino's stored handle, deleting the row and returning
// ok=false if it no longer resolves (check_inode in the original).
func checkInode(ctx context.Context, st *store.Store, ino model.Inode) (*fhandle.Ref, bool, error) {
	ref, err := openInode(st, ino)
	if err != nil {
		if errors.Is(err, ferrors.ErrStale) {
			if delErr := st.DeleteInode(ctx, ino.IID); delErr != nil {
				return nil, false, delErr
			}
			return nil, false, nil
		}
		return nil, false, err
	}
	return ref, true, nil
}

// fobInode pairs a live inode row with its reopened reference
// (get_fob_inodes's per-row result).
type fobInode struct {
	Inode model.Inode
	Ref   *fhandle.Ref
}

// getFOBInodes returns every local inode still bound to fob that still
// resolves on disk, deleting any that don't (get_fob_inodes).
func getFOBInodes(ctx context.Context, st *store.Store, fob model.ID) ([]fobInode, error) {
	inodes, err := st.InodesByFOB(ctx, fob)
	if err != nil {
		return nil, err
	}
	var out []fobInode
	for _, ino := range inodes {
		ref, ok, err := checkInode(ctx, st, ino)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, fobInode{Inode: ino, Ref: ref})
		}
	}
	return out, nil
}

// getFOBSingleInode returns fob's unique live local inode, if any
// (get_fob_single_inode). More than one live inode bound to the same FOB
// is ErrTooMessy: a rescan can resolve it, MDApply can't guess which one
// is authoritative.
func getFOBSingleInode(ctx context.Context, st *store.Store, fob model.ID) (model.Inode, *fhandle.Ref, bool, error) {
	inodes, err := getFOBInodes(ctx, st, fob)
	if err != nil {
		return model.Inode{}, nil, false, err
	}
	switch len(inodes) {
	case 0:
		return model.Inode{}, nil, false, nil
	case 1:
		return inodes[0].Inode, inodes[0].Ref, true, nil
	default:
		return model.Inode{}, nil, false, fmt.Errorf("%w: %d live inodes for FOB %s, not sure what to do",
			ferrors.ErrTooMessy, len(inodes), fob)
	}
}
