package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/filoco/filoco/internal/model"
	"github.com/filoco/filoco/internal/synctree"
)

// synctreeGateway adapts Store's `synctree` table to synctree.Store.
type synctreeGateway struct{ s *Store }

func (g synctreeGateway) Get(ctx context.Context, pos uint64) (xor, chxor synctree.Hash128, ok bool, err error) {
	row := g.s.DB.querier().QueryRowContext(ctx, `select xor, chxor from synctree where pos=?`, pos)
	var xb, cb []byte
	if err := row.Scan(&xb, &cb); err != nil {
		if err == sql.ErrNoRows {
			return synctree.Zero, synctree.Zero, false, nil
		}
		return synctree.Zero, synctree.Zero, false, fmt.Errorf("store: synctree get: %w", err)
	}
	copy(xor[:], xb)
	copy(chxor[:], cb)
	return xor, chxor, true, nil
}

func (g synctreeGateway) Set(ctx context.Context, pos uint64, xor, chxor synctree.Hash128) error {
	if xor == synctree.Zero {
		_, err := g.s.DB.querier().ExecContext(ctx, `delete from synctree where pos=?`, pos)
		return err
	}
	_, err := g.s.DB.querier().ExecContext(ctx,
		`insert into synctree (pos, xor, chxor) values (?,?,?)
		 on conflict(pos) do update set xor=excluded.xor, chxor=excluded.chxor`,
		pos, xor[:], chxor[:])
	return err
}

// SyncTree returns a synctree.Store view of this store's synctree table.
func (s *Store) SyncTree() synctree.Store { return synctreeGateway{s} }

// synctreeInsert folds id (already placed at treeKey by the caller) into
// the tree. It recomputes Pos(id) itself rather than trusting treeKey, so
// a caller-supplied cached tree_key can never desynchronize the tree.
func (s *Store) synctreeInsert(ctx context.Context, id model.ID, treeKey uint64) error {
	_ = treeKey
	return synctree.Update(ctx, synctreeGateway{s}, id)
}

// SyncTreeNodes fetches the (xor, chxor) pairs for a set of positions in
// one round, for MDSync's per-level exchange.
func (s *Store) SyncTreeNodes(ctx context.Context, positions []uint64) (map[uint64]synctree.Node, error) {
	return synctree.GetMany(ctx, synctreeGateway{s}, positions)
}

// HasSyncable reports whether id is present locally (synctree.has in the
// original do_synctree, used to decide whether a single-difference id can
// be answered from this side without an extra round trip).
func (s *Store) HasSyncable(ctx context.Context, id model.ID) (bool, error) {
	_, ok, err := s.SyncableByID(ctx, id)
	return ok, err
}
