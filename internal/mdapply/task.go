package mdapply

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/filoco/filoco/internal/fhandle"
	"github.com/filoco/filoco/internal/model"
)

// UpdateTask is one FOB's worth of pending placement work: materialize a
// placeholder if the data isn't checked out yet, then move whatever inode
// represents it to its current FLV's (parent, name) (UpdateTask in the
// original).
type UpdateTask struct {
	FOB model.FOB
	FLV model.FLV

	// ParentInode/ParentRef are set when the target directory already has
	// a live local inode; ParentTask is set instead when the parent is
	// itself being materialized earlier in this same batch.
	ParentInode *model.Inode
	ParentRef   *fhandle.Ref
	ParentTask  *UpdateTask

	// SrcDirFD/SrcName locate a freshly-created placeholder inode
	// (relative to AT_FDCWD, an absolute path) — set only when
	// createNewInodes had to materialize one.
	SrcDirFD int
	SrcName  string

	// NewFLVStamp is the dirty stamp observed when this task was built,
	// compared-and-cleared at commit time (mark_as_updated's CAS).
	NewFLVStamp int64

	// Inode/Ref are the task's own materialized inode, filled in by
	// createNewInodes — later tasks in the same batch consult these
	// through ParentTask.
	Inode model.Inode
	Ref   *fhandle.Ref

	// RenameToShort records a longname this task's entry was left under
	// in moveToLongnames, to be retried as a shortname in moveToShortnames.
	RenameToShort *renameTarget
}

type renameTarget struct {
	ParentInode model.Inode
	ParentRef   *fhandle.Ref
	Name        string
}

// getParentInode resolves the directory this task's entry belongs under,
// following a pending ParentTask exactly once (get_parent_inode).
func (t *UpdateTask) getParentInode() (model.Inode, *fhandle.Ref, error) {
	if t.ParentInode != nil {
		return *t.ParentInode, t.ParentRef, nil
	}
	if t.ParentTask != nil {
		if t.ParentTask.Ref == nil {
			return model.Inode{}, nil, fmt.Errorf("mdapply: parent inode for FOB %s was not created", t.FOB.ID)
		}
		return t.ParentTask.Inode, t.ParentTask.Ref, nil
	}
	return model.Inode{}, nil, fmt.Errorf("mdapply: no way to determine parent inode for FOB %s", t.FOB.ID)
}

// stripLongname removes a trailing ".FL-<fob-hex>-<n>" disambiguation
// suffix, mirroring internal/scanner's private helper of the same name
// (kept duplicated rather than exported across a package boundary for a
// three-line string helper).
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
