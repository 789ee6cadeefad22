package store

import (
	"context"
	"database/sql"
	"fmt"
)

// LinkByParentName looks up a single (parent, name) link row and returns
// the inode number it points at (the `old_obj` lookup in on_link/scan_dir).
func (s *Store) LinkByParentName(ctx context.Context, parent uint64, name string) (ino uint64, found bool, err error) {
	row := s.DB.querier().QueryRowContext(ctx, `select ino from links where parent=? and name=?`, parent, name)
	if err := row.Scan(&ino); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("store: link by parent/name: %w", err)
	}
	return ino, true, nil
}

// UpsertLink updates the link's ino if the (parent, name) row exists,
// otherwise inserts it.
func (s *Store) UpsertLink(ctx context.Context, parent uint64, name string, ino uint64) error {
	res, err := s.DB.querier().ExecContext(ctx, `update links set ino=? where parent=? and name=?`, ino, parent, name)
	if err != nil {
		return fmt.Errorf("store: update link: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.DB.querier().ExecContext(ctx, `insert into links (parent, name, ino) values (?,?,?)`, parent, name, ino)
	if err != nil {
		return fmt.Errorf("store: insert link: %w", err)
	}
	return nil
}

// LinksByParent lists every link row under a directory inode.
func (s *Store) LinksByParent(ctx context.Context, parent uint64) (map[string]uint64, error) {
	rows, err := s.DB.querier().QueryContext(ctx, `select name, ino from links where parent=?`, parent)
	if err != nil {
		return nil, fmt.Errorf("store: links by parent: %w", err)
	}
	defer rows.Close()
	out := map[string]uint64{}
	for rows.Next() {
		var name string
		var ino uint64
		if err := rows.Scan(&name, &ino); err != nil {
			return nil, err
		}
		out[name] = ino
	}
	return out, nil
}

// LinksByIno lists every link row pointing at a given inode (get_good_links).
func (s *Store) LinksByIno(ctx context.Context, ino uint64) ([]struct {
	Parent uint64
	Name   string
}, error) {
	rows, err := s.DB.querier().QueryContext(ctx, `select parent, name from links where ino=?`, ino)
	if err != nil {
		return nil, fmt.Errorf("store: links by ino: %w", err)
	}
	defer rows.Close()
	var out []struct {
		Parent uint64
		Name   string
	}
	for rows.Next() {
		var rec struct {
			Parent uint64
			Name   string
		}
		if err := rows.Scan(&rec.Parent, &rec.Name); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// DeleteLinksNotIn deletes link rows under parent whose name is not in
// seen — the "unlinked" cleanup pass at the end of scan_dir.
func (s *Store) DeleteLinksNotIn(ctx context.Context, parent uint64, seen map[string]bool) error {
	existing, err := s.LinksByParent(ctx, parent)
	if err != nil {
		return err
	}
	for name := range existing {
		if seen[name] {
			continue
		}
		if _, err := s.DB.querier().ExecContext(ctx, `delete from links where parent=? and name=?`, parent, name); err != nil {
			return fmt.Errorf("store: delete stale link: %w", err)
		}
	}
	return nil
}

// DeleteLinkExact removes one specific (parent,name) link row, used by
// mdapply's rename bookkeeping when moving an entry between parents.
func (s *Store) DeleteLinkExact(ctx context.Context, parent uint64, name string) error {
	_, err := s.DB.querier().ExecContext(ctx, `delete from links where parent=? and name=?`, parent, name)
	if err != nil {
		return fmt.Errorf("store: delete link: %w", err)
	}
	return nil
}

// MoveLink reassigns a link row from (srcParent, srcName) to
// (dstParent, dstName), inserting if the source row did not exist
// (rename_and_update_links's "update or replace" / fallback insert).
func (s *Store) MoveLink(ctx context.Context, srcParent uint64, srcName string, dstParent uint64, dstName string, ino uint64) error {
	res, err := s.DB.querier().ExecContext(ctx,
		`update or replace links set parent=?, name=? where parent=? and name=?`,
		dstParent, dstName, srcParent, srcName)
	if err != nil {
		return fmt.Errorf("store: move link: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.DB.querier().ExecContext(ctx, `insert into links (parent, name, ino) values (?,?,?)`, dstParent, dstName, ino)
	if err != nil {
		return fmt.Errorf("store: insert moved link: %w", err)
	}
	return nil
}
