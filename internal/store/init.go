package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/filoco/filoco/internal/certutil"
)

// Init creates a fresh `.filoco` store rooted at rootPath: a self-signed
// identity (certutil), the store_id file, and an empty schema-applied
// database, then opens it. rootPath must not already contain a `.filoco`
// directory. Equivalent to InitNamed(rootPath, "", "serial").
func Init(rootPath string) (*Store, error) {
	return InitNamed(rootPath, "", "serial")
}

// InitNamed is Init plus a human-readable name and the reconciliation
// mode ("serial" or "synctree") this store commits to at creation time
// (spec.md §6). Both are recorded as plain meta files and surfaced back
// through Store.Name/Store.SyncMode.
func InitNamed(rootPath string, name string, syncMode string) (*Store, error) {
	rootPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	metaPath := filepath.Join(rootPath, MetaDir)
	if _, err := os.Stat(metaPath); err == nil {
		return nil, fmt.Errorf("store: %s: already a store", rootPath)
	}
	if syncMode != "serial" && syncMode != "synctree" {
		return nil, fmt.Errorf("store: unknown sync mode %q", syncMode)
	}

	id, err := certutil.Generate()
	if err != nil {
		return nil, err
	}

	// Stage under a temp name and rename into place, so a crash mid-init
	// never leaves a half-initialized `.filoco` directory behind.
	staging := metaPath + ".tmp"
	if err := os.RemoveAll(staging); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if err := certutil.WriteFiles(staging, id); err != nil {
		os.RemoveAll(staging)
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(staging, "store_id"), []byte(id.StoreID.String()), 0o644); err != nil {
		os.RemoveAll(staging)
		return nil, fmt.Errorf("store: writing store_id: %w", err)
	}
	if name != "" {
		if err := os.WriteFile(filepath.Join(staging, "store_name"), []byte(name), 0o644); err != nil {
			os.RemoveAll(staging)
			return nil, fmt.Errorf("store: writing store_name: %w", err)
		}
	}
	if err := os.WriteFile(filepath.Join(staging, "sync_mode"), []byte(syncMode), 0o644); err != nil {
		os.RemoveAll(staging)
		return nil, fmt.Errorf("store: writing sync_mode: %w", err)
	}
	if err := os.Rename(staging, metaPath); err != nil {
		os.RemoveAll(staging)
		return nil, fmt.Errorf("store: %w", err)
	}

	s, err := Open(rootPath)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSelfStore(context.Background()); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
