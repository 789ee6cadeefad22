package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/filoco/filoco/internal/model"
)

// InodeByIno looks up an inode row by kernel inode number (find_inode's
// first step in the original scanner).
func (s *Store) InodeByIno(ctx context.Context, ino uint64) (model.Inode, bool, error) {
	row := s.DB.querier().QueryRowContext(ctx,
		`select iid, ino, handle_type, handle, type, size, mtime, ctime, btime, scan_state, fob, flv, fcv
		 from inodes where ino=?`, ino)
	return scanInode(row)
}

// InodeByIID looks up an inode row by its local 128-bit (or "ROOT") id.
func (s *Store) InodeByIID(ctx context.Context, iid string) (model.Inode, bool, error) {
	row := s.DB.querier().QueryRowContext(ctx,
		`select iid, ino, handle_type, handle, type, size, mtime, ctime, btime, scan_state, fob, flv, fcv
		 from inodes where iid=?`, iid)
	return scanInode(row)
}

// InodesByFOB returns every local inode currently bound to fob (usually
// zero or one, except during conflicts/races — get_fob_inodes).
func (s *Store) InodesByFOB(ctx context.Context, fob model.ID) ([]model.Inode, error) {
	rows, err := s.DB.querier().QueryContext(ctx,
		`select iid, ino, handle_type, handle, type, size, mtime, ctime, btime, scan_state, fob, flv, fcv
		 from inodes where fob=?`, fob[:])
	if err != nil {
		return nil, fmt.Errorf("store: inodes by fob: %w", err)
	}
	defer rows.Close()
	var out []model.Inode
	for rows.Next() {
		ino, err := scanInodeRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ino)
	}
	return out, nil
}

func scanInode(row *sql.Row) (model.Inode, bool, error) {
	var ino model.Inode
	var mtime, ctime, btime int64
	var fobb, flvb, fcvb []byte
	var typ string
	err := row.Scan(&ino.IID, &ino.Ino, &ino.HandleType, &ino.Handle, &typ, &ino.Size,
		&mtime, &ctime, &btime, &ino.ScanState, &fobb, &flvb, &fcvb)
	if err == sql.ErrNoRows {
		return model.Inode{}, false, nil
	}
	if err != nil {
		return model.Inode{}, false, fmt.Errorf("store: scan inode: %w", err)
	}
	ino.Type = model.FileType(typ[0])
	ino.Mtime = time.Unix(0, mtime)
	ino.Ctime = time.Unix(0, ctime)
	ino.Btime = time.Unix(0, btime)
	setInodeRefs(&ino, fobb, flvb, fcvb)
	return ino, true, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows for the shared scan
// helper below.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanInodeRows(rows *sql.Rows) (model.Inode, error) {
	var ino model.Inode
	var mtime, ctime, btime int64
	var fobb, flvb, fcvb []byte
	var typ string
	err := rows.Scan(&ino.IID, &ino.Ino, &ino.HandleType, &ino.Handle, &typ, &ino.Size,
		&mtime, &ctime, &btime, &ino.ScanState, &fobb, &flvb, &fcvb)
	if err != nil {
		return model.Inode{}, fmt.Errorf("store: scan inode: %w", err)
	}
	ino.Type = model.FileType(typ[0])
	ino.Mtime = time.Unix(0, mtime)
	ino.Ctime = time.Unix(0, ctime)
	ino.Btime = time.Unix(0, btime)
	setInodeRefs(&ino, fobb, flvb, fcvb)
	return ino, nil
}

func setInodeRefs(ino *model.Inode, fobb, flvb, fcvb []byte) {
	if fobb != nil {
		var id model.ID
		copy(id[:], fobb)
		ino.FOB = &id
	}
	if flvb != nil {
		var id model.ID
		copy(id[:], flvb)
		ino.FLV = &id
	}
	if fcvb != nil {
		var id model.ID
		copy(id[:], fcvb)
		ino.FCV = &id
	}
}

// InsertInode creates a new inode row (iid random, or model.RootIID for
// the store root).
func (s *Store) InsertInode(ctx context.Context, ino model.Inode) error {
	var fobb, flvb, fcvb []byte
	if ino.FOB != nil {
		fobb = (*ino.FOB)[:]
	}
	if ino.FLV != nil {
		flvb = (*ino.FLV)[:]
	}
	if ino.FCV != nil {
		fcvb = (*ino.FCV)[:]
	}
	_, err := s.DB.querier().ExecContext(ctx,
		`insert into inodes (iid, ino, handle_type, handle, type, size, mtime, ctime, btime, scan_state, fob, flv, fcv)
		 values (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		ino.IID, ino.Ino, ino.HandleType, ino.Handle, string(ino.Type), ino.Size,
		ino.Mtime.UnixNano(), ino.Ctime.UnixNano(), ino.Btime.UnixNano(), ino.ScanState,
		fobb, flvb, fcvb)
	if err != nil {
		return fmt.Errorf("store: insert inode: %w", err)
	}
	return nil
}

// UpdateInodeScanState updates scan_state and the comparison stat fields
// together, as scan_dir does at the end of a directory pass.
func (s *Store) UpdateInodeScanState(ctx context.Context, ino uint64, state model.ScanState, st model.StatTuple) error {
	_, err := s.DB.querier().ExecContext(ctx,
		`update inodes set scan_state=?, mtime=?, ctime=?, size=? where ino=?`,
		state, st.Mtime.UnixNano(), st.Ctime.UnixNano(), st.Size, ino)
	if err != nil {
		return fmt.Errorf("store: update inode scan state: %w", err)
	}
	return nil
}

// SetInodeScanState sets only the scan_state column (used for the
// NEEDS_RESCAN race path, which does not also refresh the stat snapshot).
func (s *Store) SetInodeScanState(ctx context.Context, ino uint64, state model.ScanState) error {
	_, err := s.DB.querier().ExecContext(ctx, `update inodes set scan_state=? where ino=?`, state, ino)
	if err != nil {
		return fmt.Errorf("store: set inode scan state: %w", err)
	}
	return nil
}

// AssignFOB pairs an inode with a FOB/FLV/FCV triple (assign_fob). flv is
// nil for the store root, which has no placement claim.
func (s *Store) AssignFOB(ctx context.Context, iid string, fob model.ID, flv *model.ID, fcv *model.ID) error {
	var flvb, fcvb []byte
	if flv != nil {
		flvb = (*flv)[:]
	}
	if fcv != nil {
		fcvb = (*fcv)[:]
	}
	_, err := s.DB.querier().ExecContext(ctx,
		`update inodes set fob=?, flv=?, fcv=? where iid=?`, fob[:], flvb, fcvb, iid)
	if err != nil {
		return fmt.Errorf("store: assign fob: %w", err)
	}
	return nil
}

// UpdateInodeFLV rewrites only the flv pointer (on_link_to_fob's
// already-has-a-FOB branch).
func (s *Store) UpdateInodeFLV(ctx context.Context, iid string, flv model.ID) error {
	_, err := s.DB.querier().ExecContext(ctx, `update inodes set flv=? where iid=?`, flv[:], iid)
	if err != nil {
		return fmt.Errorf("store: update inode flv: %w", err)
	}
	return nil
}

// DeleteInode removes an inode row by iid (do_delete_inode).
func (s *Store) DeleteInode(ctx context.Context, iid string) error {
	_, err := s.DB.querier().ExecContext(ctx, `delete from inodes where iid=?`, iid)
	if err != nil {
		return fmt.Errorf("store: delete inode: %w", err)
	}
	return nil
}

// HasFOBAssigned reports whether iid already has a non-null fob (the
// `replace` guard in assign_fob/create_fob).
func (s *Store) HasFOBAssigned(ctx context.Context, iid string) (bool, error) {
	var one int
	err := s.DB.querier().QueryRowContext(ctx,
		`select 1 from inodes where iid=? and fob is not null`, iid).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: has fob assigned: %w", err)
	}
	return true, nil
}
