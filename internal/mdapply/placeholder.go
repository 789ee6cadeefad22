package mdapply

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/filoco/filoco/internal/fhandle"
	"github.com/filoco/filoco/internal/ferrors"
	"github.com/filoco/filoco/internal/metrics"
	"github.com/filoco/filoco/internal/model"
	"github.com/filoco/filoco/internal/store"
)

// cleanupPlaceholders removes any placeholder left behind by an mdapply
// run interrupted between createNewInodes and the longname rename that
// would have moved it into place, both on disk and from the inode table
// (cleanup_placeholders).
func (a *Applier) cleanupPlaceholders(ctx context.Context) error {
	dir := filepath.Join(a.store.MetaPath, store.PlaceholderDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("mdapply: reading placeholder dir: %w", err)
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		var st unix.Stat_t
		if err := unix.Lstat(path, &st); err != nil {
			continue
		}
		ino, found, err := a.store.InodeByIno(ctx, st.Ino)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("mdapply: removing stale placeholder %s: %w", path, err)
		}
		if found {
			if err := a.store.DeleteInode(ctx, ino.IID); err != nil {
				return err
			}
		}
	}
	return nil
}

// createNewInodes materializes a placeholder inode for every task whose
// FOB has no live local inode yet, pairing it with the FOB/FLV but no FCV
// (the data isn't checked out, so there is no content version) —
// create_new_inodes.
func (a *Applier) createNewInodes(ctx context.Context, batch []*UpdateTask) error {
	for _, task := range batch {
		fob := task.FOB
		flv := task.FLV

		inode, ref, found, err := getFOBSingleInode(ctx, a.store, fob.ID)
		if err != nil {
			if errors.Is(err, ferrors.ErrTooMessy) {
				a.log.Error("cannot materialize FOB, multiple live inodes", "fob", fob.ID, "err", err)
				metrics.MDApplyTooMessyTotal.Inc()
				continue
			}
			return err
		}
		if found {
			task.Inode = inode
			task.Ref = ref
			continue
		}

		tmpName := fmt.Sprintf("filoco-mdapply-placeholder-%s", fob.ID)
		tmpPath := filepath.Join(a.store.MetaPath, store.PlaceholderDir, tmpName)

		switch fob.Type {
		case model.TypeDir:
			if err := unix.Mkdir(tmpPath, 0o755); err != nil && !errors.Is(err, unix.EEXIST) {
				return fmt.Errorf("mdapply: mkdir placeholder: %w", err)
			}
		case model.TypeRegular:
			if err := unix.Symlink(model.PlaceholderTarget, tmpPath); err != nil && !errors.Is(err, unix.EEXIST) {
				return fmt.Errorf("mdapply: symlink placeholder: %w", err)
			}
		default:
			a.log.Error("unknown FOB type, ignoring", "fob", fob.ID, "type", fob.Type.String())
			continue
		}

		ref, err = fhandle.AcquireFromPath(a.store, unix.AT_FDCWD, tmpPath)
		if err != nil {
			return fmt.Errorf("mdapply: opening placeholder: %w", err)
		}
		newIno, err := a.recordPlaceholderInode(ctx, ref, fob.ID, flv.ID)
		if err != nil {
			return err
		}

		// MDApply runs privileged to resolve file handles; the
		// placeholder must be owned by the store's real owner, not root
		// (os.lchown in the original).
		if err := unix.Fchownat(unix.AT_FDCWD, tmpPath, a.store.OwnerUID, a.store.OwnerGID, unix.AT_SYMLINK_NOFOLLOW); err != nil {
			return fmt.Errorf("mdapply: chown placeholder: %w", err)
		}

		task.SrcDirFD = unix.AT_FDCWD
		task.SrcName = tmpPath
		task.Inode = newIno
		task.Ref = ref
	}
	return nil
}

func (a *Applier) recordPlaceholderInode(ctx context.Context, ref *fhandle.Ref, fob, flv model.ID) (model.Inode, error) {
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
		IID:        model.NewID().String(),
		Ino:        st.Ino,
		HandleType: handle.Type,
		Handle:     handle.Bytes,
		Type:       typ,
		Size:       st.Size,
		Mtime:      time.Unix(st.Mtim.Sec, st.Mtim.Nsec),
		Ctime:      time.Unix(st.Ctim.Sec, st.Ctim.Nsec),
		Btime:      time.Unix(st.Ctim.Sec, st.Ctim.Nsec),
		ScanState:  model.ScanNeverScanned,
		FOB:        &fob,
		FLV:        &flv,
	}
	if err := a.store.InsertInode(ctx, ino); err != nil {
		return model.Inode{}, err
	}
	return ino, nil
}
