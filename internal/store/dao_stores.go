package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/filoco/filoco/internal/model"
)

// EnsureSelfStore records this store's own StoreID in `stores` with
// is_self=1, idempotently (every store keeps exactly one such row).
func (s *Store) EnsureSelfStore(ctx context.Context) error {
	_, err := s.DB.querier().ExecContext(ctx,
		`insert into stores (store_id, is_self, max_serial) values (?,1,0)
		 on conflict(store_id) do update set is_self=1`, s.StoreID[:])
	if err != nil {
		return fmt.Errorf("store: ensure self store: %w", err)
	}
	return nil
}

// RememberPeerMaxSerial records the highest serial this store has learned
// about for a peer origin, for subsequent serial-mode reconciliations.
func (s *Store) RememberPeerMaxSerial(ctx context.Context, origin model.StoreID, serial uint64) error {
	_, err := s.DB.querier().ExecContext(ctx,
		`insert into stores (store_id, is_self, max_serial) values (?,0,?)
		 on conflict(store_id) do update set max_serial=max(max_serial, excluded.max_serial)`,
		origin[:], serial)
	if err != nil {
		return fmt.Errorf("store: remember peer max serial: %w", err)
	}
	return nil
}

// PeerMaxSerial returns the previously recorded max_serial for origin.
func (s *Store) PeerMaxSerial(ctx context.Context, origin model.StoreID) (uint64, error) {
	var v uint64
	err := s.DB.querier().QueryRowContext(ctx, `select max_serial from stores where store_id=?`, origin[:]).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: peer max serial: %w", err)
	}
	return v, nil
}

// KnownOrigins lists every origin store_id this store has recorded,
// including itself.
func (s *Store) KnownOrigins(ctx context.Context) ([]model.StoreID, error) {
	rows, err := s.DB.querier().QueryContext(ctx, `select store_id from stores`)
	if err != nil {
		return nil, fmt.Errorf("store: known origins: %w", err)
	}
	defer rows.Close()
	var out []model.StoreID
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		var id model.StoreID
		copy(id[:], b)
		out = append(out, id)
	}
	return out, nil
}
