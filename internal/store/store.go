// Package store implements the transactional metadata store (component B):
// the `inodes`, `links`, `fobs`, `flvs`, `fcvs`, `syncables`, `synctree`,
// and `stores` tables, with insert_order-preserving bulk transactions and
// invariant checking.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jacobsa/syncutil"
	"golang.org/x/sys/unix"

	"github.com/filoco/filoco/internal/model"
)

// PlaceholderDir is the staging subdirectory MDApply materializes
// placeholder inodes under before renaming them into place.
const PlaceholderDir = "placeholder-tmp"

// Store is one peer's on-disk root directory plus its metadata database.
type Store struct {
	RootPath string
	MetaPath string
	StoreID  model.StoreID
	RootDir  *os.File

	// OwnerUID/OwnerGID are the root directory's owner, chowned to by
	// MDApply's placeholder creation since filoco typically runs
	// privileged to resolve file handles (spec.md §4.F step 3).
	OwnerUID int
	OwnerGID int

	// Name is the optional human-readable label given at `init -n`, read
	// from the `store_name` meta file (empty if none was given).
	Name string

	// SyncMode is the reconciliation mode this store was initialized
	// with ("serial" or "synctree"), read from the `sync_mode` meta file
	// (spec.md §6: "Two modes are selected at store initialization").
	// cmd/filoco's mdsync subcommand defaults to this when --mode is
	// not given explicitly.
	SyncMode string

	DB *DB

	// mu wraps every multi-statement mutation in an invariant-checked
	// scope, mirroring the teacher's `fs.mu = syncutil.NewInvariantMutex`.
	// Checks only run when invariant checking is enabled (see
	// EnableInvariantChecking) — they are a testing/debug aid, not a
	// runtime cost paid in production by default.
	mu syncutil.InvariantMutex

	checkEnabled bool
}

// Open opens the store rooted at rootPath (which must already contain a
// `.filoco` directory; use Init to create one).
func Open(rootPath string) (*Store, error) {
	rootPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	metaPath := filepath.Join(rootPath, MetaDir)
	if st, err := os.Stat(metaPath); err != nil || !st.IsDir() {
		return nil, fmt.Errorf("store: %s: not a store", rootPath)
	}

	idHex, err := os.ReadFile(filepath.Join(metaPath, "store_id"))
	if err != nil {
		return nil, fmt.Errorf("store: reading store_id: %w", err)
	}
	storeID, err := model.ParseStoreID(string(idHex))
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	db, err := openDB(filepath.Join(metaPath, "meta.sqlite"))
	if err != nil {
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	rootDir, err := os.Open(rootPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: %w", err)
	}
	var st unix.Stat_t
	if err := unix.Fstat(int(rootDir.Fd()), &st); err != nil {
		db.Close()
		rootDir.Close()
		return nil, fmt.Errorf("store: stat root: %w", err)
	}

	s := &Store{
		RootPath: rootPath, MetaPath: metaPath, StoreID: storeID, DB: db, RootDir: rootDir,
		OwnerUID: int(st.Uid), OwnerGID: int(st.Gid),
		SyncMode: "serial",
	}
	if name, err := os.ReadFile(filepath.Join(metaPath, "store_name")); err == nil {
		s.Name = string(name)
	}
	if mode, err := os.ReadFile(filepath.Join(metaPath, "sync_mode")); err == nil && len(mode) > 0 {
		s.SyncMode = string(mode)
	}
	s.mu = syncutil.NewInvariantMutex(s.checkInvariants)

	if err := os.MkdirAll(filepath.Join(metaPath, PlaceholderDir), 0o755); err != nil {
		db.Close()
		rootDir.Close()
		return nil, fmt.Errorf("store: %w", err)
	}
	return s, nil
}

func applySchema(db *DB) error {
	_, err := db.write.ExecContext(context.Background(), LoadSchema())
	if err != nil {
		return fmt.Errorf("store: applying schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.RootDir.Close()
	return s.DB.Close()
}

// Lock acquires the store's invariant-checked mutex. Callers must release
// with Unlock; checkInvariants runs on every Unlock when enabled.
func (s *Store) Lock()   { s.mu.Lock() }
func (s *Store) Unlock() { s.mu.Unlock() }

// EnableInvariantChecking turns on checkInvariants after every Unlock.
// Left off by default; `filoco scan -a` and `filoco scan -c` turn it on.
func (s *Store) EnableInvariantChecking(v bool) { s.checkEnabled = v }

// checkInvariants is run by the InvariantMutex on every Unlock when
// enabled. It verifies one of the quantified invariants from spec.md §8:
// every FLV's insert_order exceeds its FOB's. Parent-version ordering and
// the number of head versions per FOB are not checked.
func (s *Store) checkInvariants() {
	if !s.checkEnabled {
		return
	}
	ctx := context.Background()

	// I2 (FOB part only): every FLV's FOB must have a smaller insert_order.
	rows, err := s.DB.read.QueryContext(ctx, `
		select s.insert_order, pf.insert_order
		from flvs f
		join syncables s on s.id = f.id
		join syncables pf on pf.id = f.fob
		where pf.insert_order >= s.insert_order`)
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var a, b int64
			rows.Scan(&a, &b)
			panic(fmt.Sprintf("store: invariant violated: FLV insert_order %d does not exceed its FOB's %d", a, b))
		}
	}
}

// ErrNoRows is returned by single-row lookups that found nothing; an alias
// kept local so callers need not import database/sql for this one case.
var ErrNoRows = sql.ErrNoRows
