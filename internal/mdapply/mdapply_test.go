package mdapply

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/filoco/filoco/clock"
	"github.com/filoco/filoco/internal/model"
	"github.com/filoco/filoco/internal/scanner"
	"github.com/filoco/filoco/internal/store"
)

// bootstrapRoot creates the store's ROOT inode record, which store.Init does
// not write; the scanner's constructor does.
func bootstrapRoot(t *testing.T, ctx context.Context, st *store.Store) {
	sc, err := scanner.New(ctx, st, scanner.WatchNone, clock.RealClock{})
	require.NoError(t, err)
	require.NoError(t, sc.Close())
}

// TestRunMaterializesDirtyFOB exercises spec.md §4.F's basic case: a FOB
// with a current FLV but no live local inode gets a placeholder created
// and renamed into place under its FLV's (parent, name).
func TestRunMaterializesDirtyFOB(t *testing.T) {
	root := t.TempDir()

	st, err := store.Init(root)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	bootstrapRoot(t, ctx, st)
	rootInode, found, err := st.InodeByIID(ctx, model.RootIID)
	require.NoError(t, err)
	require.True(t, found)

	fob, err := st.InsertFOB(ctx, model.NewID(), st.StoreID, 1, model.TypeRegular)
	require.NoError(t, err)
	_, err = st.InsertFLV(ctx, model.NewID(), st.StoreID, 1, fob.ID, rootInode.FOB, "new.txt", nil, time.Now())
	require.NoError(t, err)

	applier, err := New(st)
	require.NoError(t, err)
	require.NoError(t, applier.Run(ctx, false))

	data, err := os.Readlink(filepath.Join(root, "new.txt"))
	require.NoError(t, err)
	require.Equal(t, model.PlaceholderTarget, data)

	got, err := st.DirtyFOBs(ctx, 0, 10, false)
	require.NoError(t, err)
	require.Empty(t, got, "mdapply should have cleared the dirty stamp")
}

// TestRunIsIdempotent exercises spec.md §4.F's "nothing dirty" case: a
// second Run over an already-applied store does no work and returns no
// error (mirrors a crash-recovery re-run finding nothing left to do).
func TestRunIsIdempotent(t *testing.T) {
	root := t.TempDir()

	st, err := store.Init(root)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	bootstrapRoot(t, ctx, st)
	rootInode, found, err := st.InodeByIID(ctx, model.RootIID)
	require.NoError(t, err)
	require.True(t, found)

	fob, err := st.InsertFOB(ctx, model.NewID(), st.StoreID, 1, model.TypeDir)
	require.NoError(t, err)
	_, err = st.InsertFLV(ctx, model.NewID(), st.StoreID, 1, fob.ID, rootInode.FOB, "sub", nil, time.Now())
	require.NoError(t, err)

	applier, err := New(st)
	require.NoError(t, err)
	require.NoError(t, applier.Run(ctx, false))
	require.DirExists(t, filepath.Join(root, "sub"))

	require.NoError(t, applier.Run(ctx, false))
}

// TestRunForceReappliesCleanFOB checks that force=true revisits every FOB
// even once its dirty stamp has already been cleared.
func TestRunForceReappliesCleanFOB(t *testing.T) {
	root := t.TempDir()

	st, err := store.Init(root)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	bootstrapRoot(t, ctx, st)
	rootInode, found, err := st.InodeByIID(ctx, model.RootIID)
	require.NoError(t, err)
	require.True(t, found)

	fob, err := st.InsertFOB(ctx, model.NewID(), st.StoreID, 1, model.TypeRegular)
	require.NoError(t, err)
	_, err = st.InsertFLV(ctx, model.NewID(), st.StoreID, 1, fob.ID, rootInode.FOB, "force.txt", nil, time.Now())
	require.NoError(t, err)

	applier, err := New(st)
	require.NoError(t, err)
	require.NoError(t, applier.Run(ctx, false))
	require.NoError(t, applier.Run(ctx, true))
}

func TestStripLongnameAndIsLongname(t *testing.T) {
	cases := []struct {
		name   string
		want   string
		isLong bool
	}{
		{"hello.txt", "hello.txt", false},
		{"hello.txt" + model.LongnameSeparator + "deadbeef-1", "hello.txt", true},
		{"hello.txt" + model.LongnameSeparator + "deadbeef-notanumber", "hello.txt" + model.LongnameSeparator + "deadbeef-notanumber", false},
	}
	for _, c := range cases {
		require.Equal(t, c.want, stripLongname(c.name))
		require.Equal(t, c.isLong, isLongname(c.name))
	}
}

func TestComputeBatchSize(t *testing.T) {
	size, err := computeBatchSize()
	require.NoError(t, err)
	require.Greater(t, size, 0)
	require.LessOrEqual(t, size, defaultUpdateBatchSize)
}
