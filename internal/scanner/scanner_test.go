package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/filoco/filoco/clock"
	"github.com/filoco/filoco/internal/model"
	"github.com/filoco/filoco/internal/store"
)

// TestScanOnceCreateThenSync exercises spec.md §8 scenario 2: creating a
// nested file and scanning once should produce three FOBs (x, y,
// hello.txt) of types d, d, r, chained by FLVs whose parent_fob matches
// the containing directory.
func TestScanOnceCreateThenSync(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "x", "y"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "x", "y", "hello.txt"), []byte("hi"), 0o644))

	st, err := store.Init(root)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	sc, err := New(ctx, st, WatchNone, clock.RealClock{})
	require.NoError(t, err)
	defer sc.Close()

	require.NoError(t, sc.ScanOnce(ctx))

	rootInode, found, err := st.InodeByIID(ctx, model.RootIID)
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, rootInode.FOB)

	rootLinks, err := st.LinksByParent(ctx, rootInode.Ino)
	require.NoError(t, err)
	xIno, ok := rootLinks["x"]
	require.True(t, ok, "expected link x under root")

	xInode, found, err := st.InodeByIno(ctx, xIno)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, model.TypeDir, xInode.Type)
	require.NotNil(t, xInode.FOB)

	xLinks, err := st.LinksByParent(ctx, xIno)
	require.NoError(t, err)
	yIno, ok := xLinks["y"]
	require.True(t, ok, "expected link y under x")

	yInode, found, err := st.InodeByIno(ctx, yIno)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, model.TypeDir, yInode.Type)
	require.NotNil(t, yInode.FOB)

	yLinks, err := st.LinksByParent(ctx, yIno)
	require.NoError(t, err)
	helloIno, ok := yLinks["hello.txt"]
	require.True(t, ok, "expected link hello.txt under y")

	helloInode, found, err := st.InodeByIno(ctx, helloIno)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, model.TypeRegular, helloInode.Type)
	require.NotNil(t, helloInode.FOB)
	require.NotNil(t, helloInode.FLV)

	flv, _, err := st.CurrentFLV(ctx, *helloInode.FOB)
	require.NoError(t, err)
	require.Equal(t, "hello.txt", flv.Name)
	require.NotNil(t, flv.ParentFOB)
	require.Equal(t, *yInode.FOB, *flv.ParentFOB)
}

// TestScanOnceRename exercises spec.md §8 scenario 3: renaming a file
// produces a new FLV naming the new path, chained to the old FLV as its
// parent, and the old FLV is no longer head.
func TestScanOnceRename(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hi"), 0o644))

	st, err := store.Init(root)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	sc, err := New(ctx, st, WatchNone, clock.RealClock{})
	require.NoError(t, err)
	defer sc.Close()
	require.NoError(t, sc.ScanOnce(ctx))

	rootInode, _, err := st.InodeByIID(ctx, model.RootIID)
	require.NoError(t, err)
	rootLinks, err := st.LinksByParent(ctx, rootInode.Ino)
	require.NoError(t, err)
	helloIno := rootLinks["hello.txt"]
	helloInode, _, err := st.InodeByIno(ctx, helloIno)
	require.NoError(t, err)
	oldFLV := *helloInode.FLV
	fob := *helloInode.FOB

	require.NoError(t, os.Rename(filepath.Join(root, "hello.txt"), filepath.Join(root, "world.txt")))

	sc2, err := New(ctx, st, WatchNone, clock.RealClock{})
	require.NoError(t, err)
	defer sc2.Close()
	require.NoError(t, sc2.ScanOnce(ctx))

	newFLV, multiHead, err := st.CurrentFLV(ctx, fob)
	require.NoError(t, err)
	require.False(t, multiHead)
	require.Equal(t, "world.txt", newFLV.Name)
	require.NotEqual(t, oldFLV, newFLV.ID)
}
