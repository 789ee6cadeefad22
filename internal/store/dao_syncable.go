package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/filoco/filoco/internal/model"
	"github.com/filoco/filoco/internal/synctree"
)

// insertSyncable inserts the common envelope row and returns the
// insert_order SQLite assigned it (I1: strictly increasing per store).
func (s *Store) insertSyncable(ctx context.Context, id model.ID, kind model.Kind, origin model.StoreID, serial uint64, treeKey uint64) (int64, error) {
	res, err := s.DB.querier().ExecContext(ctx,
		`insert into syncables (id, kind, origin, serial, tree_key) values (?,?,?,?,?)`,
		id[:], string(kind), origin[:], serial, treeKey)
	if err != nil {
		return 0, fmt.Errorf("store: insert syncable: %w", err)
	}
	return res.LastInsertId()
}

// InsertFOB inserts a new FOB syncable and its synctree membership.
func (s *Store) InsertFOB(ctx context.Context, id model.ID, origin model.StoreID, serial uint64, typ model.FileType) (model.FOB, error) {
	treeKey := synctree.Pos(id)
	order, err := s.insertSyncable(ctx, id, model.KindFOB, origin, serial, treeKey)
	if err != nil {
		return model.FOB{}, err
	}
	if _, err := s.DB.querier().ExecContext(ctx,
		`insert into fobs (id, type) values (?,?)`, id[:], string(typ)); err != nil {
		return model.FOB{}, fmt.Errorf("store: insert fob: %w", err)
	}
	if err := s.synctreeInsert(ctx, id, treeKey); err != nil {
		return model.FOB{}, err
	}
	return model.FOB{
		SyncableHeader: model.SyncableHeader{ID: id, Kind: model.KindFOB, Origin: origin, Serial: serial, InsertOrder: order, TreeKey: treeKey},
		Type:           typ,
	}, nil
}

// InsertFLV inserts a new FLV, flips `_is_head` for its stated parent
// versions, bumps the owning FOB's dirty stamp, and updates the synctree
// — the receive-path behavior required by spec.md §4.E for both mdsync
// ingestion and locally scanner-originated FLVs.
func (s *Store) InsertFLV(ctx context.Context, id model.ID, origin model.StoreID, serial uint64, fob model.ID, parentFOB *model.ID, name string, parentVers []model.ID, now time.Time) (model.FLV, error) {
	treeKey := synctree.Pos(id)
	order, err := s.insertSyncable(ctx, id, model.KindFLV, origin, serial, treeKey)
	if err != nil {
		return model.FLV{}, err
	}
	var parentFOBBytes []byte
	if parentFOB != nil {
		b := (*parentFOB)[:]
		parentFOBBytes = b
	}
	if _, err := s.DB.querier().ExecContext(ctx,
		`insert into flvs (id, fob, parent_fob, name, is_head, created) values (?,?,?,?,1,?)`,
		id[:], fob[:], parentFOBBytes, name, now.UnixNano()); err != nil {
		return model.FLV{}, fmt.Errorf("store: insert flv: %w", err)
	}
	for _, p := range parentVers {
		if _, err := s.DB.querier().ExecContext(ctx,
			`insert into flv_parents (flv, parent) values (?,?)`, id[:], p[:]); err != nil {
			return model.FLV{}, fmt.Errorf("store: insert flv_parents: %w", err)
		}
		if _, err := s.DB.querier().ExecContext(ctx,
			`update flvs set is_head=0 where id=?`, p[:]); err != nil {
			return model.FLV{}, fmt.Errorf("store: supersede flv: %w", err)
		}
	}
	if _, err := s.DB.querier().ExecContext(ctx,
		`update fobs set new_flvs=? where id=?`, now.UnixNano(), fob[:]); err != nil {
		return model.FLV{}, fmt.Errorf("store: stamp fob: %w", err)
	}
	if err := s.synctreeInsert(ctx, id, treeKey); err != nil {
		return model.FLV{}, err
	}
	return model.FLV{
		SyncableHeader: model.SyncableHeader{ID: id, Kind: model.KindFLV, Origin: origin, Serial: serial, InsertOrder: order, TreeKey: treeKey},
		FOB:            fob, ParentFOB: parentFOB, Name: name, ParentVers: parentVers, IsHead: true, Created: now,
	}, nil
}

// InsertFCV inserts a new FCV, analogous to InsertFLV.
func (s *Store) InsertFCV(ctx context.Context, id model.ID, origin model.StoreID, serial uint64, fob model.ID, contentHash []byte, parentVers []model.ID, now time.Time) (model.FCV, error) {
	treeKey := synctree.Pos(id)
	order, err := s.insertSyncable(ctx, id, model.KindFCV, origin, serial, treeKey)
	if err != nil {
		return model.FCV{}, err
	}
	if _, err := s.DB.querier().ExecContext(ctx,
		`insert into fcvs (id, fob, content_hash, is_head, created) values (?,?,?,1,?)`,
		id[:], fob[:], contentHash, now.UnixNano()); err != nil {
		return model.FCV{}, fmt.Errorf("store: insert fcv: %w", err)
	}
	for _, p := range parentVers {
		if _, err := s.DB.querier().ExecContext(ctx,
			`insert into fcv_parents (fcv, parent) values (?,?)`, id[:], p[:]); err != nil {
			return model.FCV{}, fmt.Errorf("store: insert fcv_parents: %w", err)
		}
		if _, err := s.DB.querier().ExecContext(ctx,
			`update fcvs set is_head=0 where id=?`, p[:]); err != nil {
			return model.FCV{}, fmt.Errorf("store: supersede fcv: %w", err)
		}
	}
	if _, err := s.DB.querier().ExecContext(ctx,
		`update fobs set new_fcvs=? where id=?`, now.UnixNano(), fob[:]); err != nil {
		return model.FCV{}, fmt.Errorf("store: stamp fob: %w", err)
	}
	if err := s.synctreeInsert(ctx, id, treeKey); err != nil {
		return model.FCV{}, err
	}
	return model.FCV{
		SyncableHeader: model.SyncableHeader{ID: id, Kind: model.KindFCV, Origin: origin, Serial: serial, InsertOrder: order, TreeKey: treeKey},
		FOB:            fob, ContentHash: contentHash, ParentVers: parentVers, IsHead: true, Created: now,
	}, nil
}

// CurrentFLV returns the current head FLV for fob (get_cur_flv in the
// original mdapply). If multiple heads exist (a name conflict), the
// newest by creation time is returned and the conflict is reported by the
// second return value being true; no error is returned for it.
func (s *Store) CurrentFLV(ctx context.Context, fob model.ID) (model.FLV, bool, error) {
	rows, err := s.DB.read.QueryContext(ctx,
		`select f.id, f.fob, f.parent_fob, f.name, f.created, s.origin, s.serial, s.insert_order, s.tree_key
		 from flvs f join syncables s on s.id=f.id
		 where f.fob=? and f.is_head=1 order by f.created desc`, fob[:])
	if err != nil {
		return model.FLV{}, false, fmt.Errorf("store: current flv: %w", err)
	}
	defer rows.Close()

	var out []model.FLV
	for rows.Next() {
		var flv model.FLV
		var idb, fobb, originb []byte
		var parentFOBb []byte
		var createdNanos int64
		if err := rows.Scan(&idb, &fobb, &parentFOBb, &flv.Name, &createdNanos, &originb, &flv.Serial, &flv.InsertOrder, &flv.TreeKey); err != nil {
			return model.FLV{}, false, fmt.Errorf("store: current flv scan: %w", err)
		}
		copy(flv.ID[:], idb)
		copy(flv.FOB[:], fobb)
		copy(flv.Origin[:], originb)
		flv.Kind = model.KindFLV
		flv.IsHead = true
		flv.Created = time.Unix(0, createdNanos)
		if parentFOBb != nil {
			var pf model.ID
			copy(pf[:], parentFOBb)
			flv.ParentFOB = &pf
		}
		out = append(out, flv)
	}
	if len(out) == 0 {
		return model.FLV{}, false, nil
	}
	return out[0], len(out) > 1, nil
}

// PigeonholeConflicts returns head FLVs other than flv's own that claim
// the same (parent_fob, name) — distinct FOBs fighting for one name.
func (s *Store) PigeonholeConflicts(ctx context.Context, flv model.FLV) ([]model.FLV, error) {
	var parentFOBb []byte
	if flv.ParentFOB != nil {
		parentFOBb = (*flv.ParentFOB)[:]
	}
	rows, err := s.DB.read.QueryContext(ctx,
		`select id, fob, parent_fob, name from flvs
		 where is_head=1 and parent_fob is ? and name=? and fob!=?`,
		parentFOBb, flv.Name, flv.FOB[:])
	if err != nil {
		return nil, fmt.Errorf("store: pigeonhole conflicts: %w", err)
	}
	defer rows.Close()
	var out []model.FLV
	for rows.Next() {
		var f model.FLV
		var idb, fobb, pfb []byte
		if err := rows.Scan(&idb, &fobb, &pfb, &f.Name); err != nil {
			return nil, err
		}
		copy(f.ID[:], idb)
		copy(f.FOB[:], fobb)
		if pfb != nil {
			var pf model.ID
			copy(pf[:], pfb)
			f.ParentFOB = &pf
		}
		out = append(out, f)
	}
	return out, nil
}

// DirtyFOBs returns FOB rows with a nonzero new_flvs stamp (or all FOBs,
// if force), ordered by insert_order, starting at startInsertOrder — the
// cursor mdapply.collect_update_batch walks.
func (s *Store) DirtyFOBs(ctx context.Context, startInsertOrder int64, limit int, force bool) ([]model.FOB, error) {
	cond := "s.new_flvs>0 and "
	if force {
		cond = ""
	}
	rows, err := s.DB.read.QueryContext(ctx, fmt.Sprintf(
		`select sy.id, sy.origin, sy.serial, sy.insert_order, sy.tree_key, s.type, s.new_flvs, s.new_fcvs
		 from fobs s join syncables sy on sy.id=s.id
		 where %s sy.insert_order>=? order by sy.insert_order asc limit ?`, cond),
		startInsertOrder, limit)
	if err != nil {
		return nil, fmt.Errorf("store: dirty fobs: %w", err)
	}
	defer rows.Close()
	var out []model.FOB
	for rows.Next() {
		var f model.FOB
		var idb, originb []byte
		var typ string
		if err := rows.Scan(&idb, &originb, &f.Serial, &f.InsertOrder, &f.TreeKey, &typ, &f.NewFLVs, &f.NewFCVs); err != nil {
			return nil, err
		}
		copy(f.ID[:], idb)
		copy(f.Origin[:], originb)
		f.Kind = model.KindFOB
		f.Type = model.FileType(typ[0])
		out = append(out, f)
	}
	return out, nil
}

// GetFOB loads a single FOB by id (used when following parent_fob chains).
func (s *Store) GetFOB(ctx context.Context, id model.ID) (model.FOB, error) {
	row := s.DB.querier().QueryRowContext(ctx,
		`select sy.origin, sy.serial, sy.insert_order, sy.tree_key, f.type, f.new_flvs, f.new_fcvs
		 from fobs f join syncables sy on sy.id=f.id where f.id=?`, id[:])
	var f model.FOB
	var originb []byte
	var typ string
	if err := row.Scan(&originb, &f.Serial, &f.InsertOrder, &f.TreeKey, &typ, &f.NewFLVs, &f.NewFCVs); err != nil {
		if err == sql.ErrNoRows {
			return model.FOB{}, err
		}
		return model.FOB{}, fmt.Errorf("store: get fob: %w", err)
	}
	f.ID = id
	copy(f.Origin[:], originb)
	f.Kind = model.KindFOB
	f.Type = model.FileType(typ[0])
	return f, nil
}

// ClearFOBStamp clears new_flvs for fob only if it still equals
// expectStamp (stamp-versioned CAS, mark_as_updated in the original).
func (s *Store) ClearFOBStamp(ctx context.Context, fob model.ID, expectStamp int64) error {
	_, err := s.DB.querier().ExecContext(ctx,
		`update fobs set new_flvs=0 where id=? and new_flvs=?`, fob[:], expectStamp)
	if err != nil {
		return fmt.Errorf("store: clear fob stamp: %w", err)
	}
	return nil
}

// MaxSerial returns the highest known serial for origin (for serial-mode
// reconciliation's max_serial[origin] mapping).
func (s *Store) MaxSerial(ctx context.Context, origin model.StoreID) (uint64, error) {
	var max sql.NullInt64
	err := s.DB.read.QueryRowContext(ctx,
		`select max(serial) from syncables where origin=?`, origin[:]).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("store: max serial: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return uint64(max.Int64), nil
}

// SyncablesSince returns every syncable with origin known-to-peer and
// serial greater than sinceSerial, ordered by insert_order ascending to
// preserve FK dependencies (serial mode, spec.md §4.E step 3).
func (s *Store) SyncablesSince(ctx context.Context, origin model.StoreID, sinceSerial uint64) ([]model.SyncableHeader, error) {
	rows, err := s.DB.read.QueryContext(ctx,
		`select id, kind, origin, serial, insert_order, tree_key from syncables
		 where origin=? and serial>? order by insert_order asc`, origin[:], sinceSerial)
	if err != nil {
		return nil, fmt.Errorf("store: syncables since: %w", err)
	}
	defer rows.Close()
	var out []model.SyncableHeader
	for rows.Next() {
		var h model.SyncableHeader
		var idb, originb []byte
		var kind string
		if err := rows.Scan(&idb, &kind, &originb, &h.Serial, &h.InsertOrder, &h.TreeKey); err != nil {
			return nil, err
		}
		copy(h.ID[:], idb)
		copy(h.Origin[:], originb)
		h.Kind = model.Kind(kind)
		out = append(out, h)
	}
	return out, nil
}

// SyncableByID returns the common envelope for id, if present.
func (s *Store) SyncableByID(ctx context.Context, id model.ID) (model.SyncableHeader, bool, error) {
	row := s.DB.querier().QueryRowContext(ctx,
		`select kind, origin, serial, insert_order, tree_key from syncables where id=?`, id[:])
	var h model.SyncableHeader
	var originb []byte
	var kind string
	if err := row.Scan(&kind, &originb, &h.Serial, &h.InsertOrder, &h.TreeKey); err != nil {
		if err == sql.ErrNoRows {
			return model.SyncableHeader{}, false, nil
		}
		return model.SyncableHeader{}, false, fmt.Errorf("store: syncable by id: %w", err)
	}
	h.ID = id
	copy(h.Origin[:], originb)
	h.Kind = model.Kind(kind)
	return h, true, nil
}

// GetFLV loads a single FLV by id, parent_vers included — the row form
// MDSync's sender materializes onto the wire (spec.md §4.E step 6).
func (s *Store) GetFLV(ctx context.Context, id model.ID) (model.FLV, error) {
	row := s.DB.querier().QueryRowContext(ctx,
		`select sy.origin, sy.serial, sy.insert_order, sy.tree_key, f.fob, f.parent_fob, f.name, f.is_head, f.created
		 from flvs f join syncables sy on sy.id=f.id where f.id=?`, id[:])
	var flv model.FLV
	var originb, fobb, parentFOBb []byte
	var createdNanos int64
	if err := row.Scan(&originb, &flv.Serial, &flv.InsertOrder, &flv.TreeKey, &fobb, &parentFOBb, &flv.Name, &flv.IsHead, &createdNanos); err != nil {
		return model.FLV{}, fmt.Errorf("store: get flv: %w", err)
	}
	flv.ID = id
	flv.Kind = model.KindFLV
	copy(flv.Origin[:], originb)
	copy(flv.FOB[:], fobb)
	flv.Created = time.Unix(0, createdNanos)
	if parentFOBb != nil {
		var pf model.ID
		copy(pf[:], parentFOBb)
		flv.ParentFOB = &pf
	}
	vers, err := s.parentVersions(ctx, "flv_parents", "flv", id)
	if err != nil {
		return model.FLV{}, err
	}
	flv.ParentVers = vers
	return flv, nil
}

// GetFCV loads a single FCV by id, analogous to GetFLV.
func (s *Store) GetFCV(ctx context.Context, id model.ID) (model.FCV, error) {
	row := s.DB.querier().QueryRowContext(ctx,
		`select sy.origin, sy.serial, sy.insert_order, sy.tree_key, f.fob, f.content_hash, f.is_head, f.created
		 from fcvs f join syncables sy on sy.id=f.id where f.id=?`, id[:])
	var fcv model.FCV
	var originb, fobb []byte
	var createdNanos int64
	if err := row.Scan(&originb, &fcv.Serial, &fcv.InsertOrder, &fcv.TreeKey, &fobb, &fcv.ContentHash, &fcv.IsHead, &createdNanos); err != nil {
		return model.FCV{}, fmt.Errorf("store: get fcv: %w", err)
	}
	fcv.ID = id
	fcv.Kind = model.KindFCV
	copy(fcv.Origin[:], originb)
	copy(fcv.FOB[:], fobb)
	fcv.Created = time.Unix(0, createdNanos)
	vers, err := s.parentVersions(ctx, "fcv_parents", "fcv", id)
	if err != nil {
		return model.FCV{}, err
	}
	fcv.ParentVers = vers
	return fcv, nil
}

func (s *Store) parentVersions(ctx context.Context, table, column string, id model.ID) ([]model.ID, error) {
	rows, err := s.DB.querier().QueryContext(ctx,
		fmt.Sprintf(`select parent from %s where %s=?`, table, column), id[:])
	if err != nil {
		return nil, fmt.Errorf("store: parent versions: %w", err)
	}
	defer rows.Close()
	var out []model.ID
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		var pid model.ID
		copy(pid[:], b)
		out = append(out, pid)
	}
	return out, nil
}

// FLVsForFOB returns every FLV ever claimed for fob, oldest first, for
// `filoco info --flv-graph` to render as a DAG of (parent_vers -> id)
// edges.
func (s *Store) FLVsForFOB(ctx context.Context, fob model.ID) ([]model.FLV, error) {
	rows, err := s.DB.read.QueryContext(ctx,
		`select f.id from flvs f join syncables sy on sy.id=f.id where f.fob=? order by sy.insert_order asc`, fob[:])
	if err != nil {
		return nil, fmt.Errorf("store: flvs for fob: %w", err)
	}
	defer rows.Close()
	var ids []model.ID
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		var id model.ID
		copy(id[:], b)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]model.FLV, 0, len(ids))
	for _, id := range ids {
		flv, err := s.GetFLV(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, flv)
	}
	return out, nil
}

// FCVsForFOB is FLVsForFOB's analogue for content versions.
func (s *Store) FCVsForFOB(ctx context.Context, fob model.ID) ([]model.FCV, error) {
	rows, err := s.DB.read.QueryContext(ctx,
		`select f.id from fcvs f join syncables sy on sy.id=f.id where f.fob=? order by sy.insert_order asc`, fob[:])
	if err != nil {
		return nil, fmt.Errorf("store: fcvs for fob: %w", err)
	}
	defer rows.Close()
	var ids []model.ID
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		var id model.ID
		copy(id[:], b)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]model.FCV, 0, len(ids))
	for _, id := range ids {
		fcv, err := s.GetFCV(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, fcv)
	}
	return out, nil
}

// SyncablesInTreeRange returns syncables whose tree_key falls in
// [lo, hi], ordered by insert_order — used to materialize a wholesale
// subtree send in SyncTree mode.
func (s *Store) SyncablesInTreeRange(ctx context.Context, lo, hi uint64) ([]model.SyncableHeader, error) {
	rows, err := s.DB.read.QueryContext(ctx,
		`select id, kind, origin, serial, insert_order, tree_key from syncables
		 where tree_key>=? and tree_key<=? order by insert_order asc`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("store: syncables in tree range: %w", err)
	}
	defer rows.Close()
	var out []model.SyncableHeader
	for rows.Next() {
		var h model.SyncableHeader
		var idb, originb []byte
		var kind string
		if err := rows.Scan(&idb, &kind, &originb, &h.Serial, &h.InsertOrder, &h.TreeKey); err != nil {
			return nil, err
		}
		copy(h.ID[:], idb)
		copy(h.Origin[:], originb)
		h.Kind = model.Kind(kind)
		out = append(out, h)
	}
	return out, nil
}
