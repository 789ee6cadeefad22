package store

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/filoco/filoco/internal/ferrors"
)

// MetaDir is the store's metadata subdirectory name, `.filoco`.
const MetaDir = ".filoco"

// Find walks upward from dir looking for a `.filoco` subdirectory,
// exactly as git walks upward looking for `.git` (Store.find in the
// original). It refuses to cross a filesystem mount boundary — this also
// takes care of stopping when the traversal hits the real root.
func Find(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("store: %w", err)
	}
	cur := abs
	var curDev uint64
	for {
		if st, err := os.Lstat(filepath.Join(cur, MetaDir)); err == nil && st.IsDir() {
			return cur, nil
		}

		sst, err := os.Stat(cur)
		if err != nil {
			return "", fmt.Errorf("store: %w", err)
		}
		dev := sst.Sys().(*syscall.Stat_t).Dev
		if curDev == 0 {
			curDev = dev
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("store: %s: %w", abs, ferrors.ErrStoreNotFound)
		}
		pst, err := os.Stat(parent)
		if err != nil {
			return "", fmt.Errorf("store: %w", err)
		}
		if pst.Sys().(*syscall.Stat_t).Dev != dev {
			// Crossing a mount boundary without finding `.filoco`.
			return "", fmt.Errorf("store: %s: %w", abs, ferrors.ErrStoreNotFound)
		}
		cur = parent
		curDev = dev
	}
}
