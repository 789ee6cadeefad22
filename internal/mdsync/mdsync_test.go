package mdsync

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/filoco/filoco/clock"
	"github.com/filoco/filoco/internal/model"
	"github.com/filoco/filoco/internal/store"
)

func openTestStore(t *testing.T, name string) *store.Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	st, err := store.Init(dir)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func runPair(t *testing.T, mode Mode, a, b *store.Store) {
	t.Helper()
	connA, connB := net.Pipe()
	t.Cleanup(func() { connA.Close(); connB.Close() })

	sessA := NewSession(a, connA, mode, clock.RealClock{})
	sessB := NewSession(b, connB, mode, clock.RealClock{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errA := make(chan error, 1)
	errB := make(chan error, 1)
	go func() { errA <- sessA.Run(ctx) }()
	go func() { errB <- sessB.Run(ctx) }()

	require.NoError(t, <-errA)
	require.NoError(t, <-errB)
}

func TestSerialModeReplicatesFOB(t *testing.T) {
	a := openTestStore(t, "a")
	b := openTestStore(t, "b")
	ctx := context.Background()

	fob, err := a.InsertFOB(ctx, model.NewID(), a.StoreID, 1, model.TypeRegular)
	require.NoError(t, err)

	runPair(t, ModeSerial, a, b)

	got, err := b.GetFOB(ctx, fob.ID)
	require.NoError(t, err)
	require.Equal(t, fob.Type, got.Type)
}

func TestSerialModeReplicatesFLVWithParentVers(t *testing.T) {
	a := openTestStore(t, "a")
	b := openTestStore(t, "b")
	ctx := context.Background()

	fob, err := a.InsertFOB(ctx, model.NewID(), a.StoreID, 1, model.TypeRegular)
	require.NoError(t, err)
	flv1, err := a.InsertFLV(ctx, model.NewID(), a.StoreID, 2, fob.ID, nil, "foo.txt", nil, time.Now())
	require.NoError(t, err)

	runPair(t, ModeSerial, a, b)

	_, err = b.GetFLV(ctx, flv1.ID)
	require.NoError(t, err)

	flv2, err := a.InsertFLV(ctx, model.NewID(), a.StoreID, 3, fob.ID, nil, "bar.txt", []model.ID{flv1.ID}, time.Now())
	require.NoError(t, err)

	runPair(t, ModeSerial, a, b)

	got, err := b.GetFLV(ctx, flv2.ID)
	require.NoError(t, err)
	require.Equal(t, []model.ID{flv1.ID}, got.ParentVers)
}

func TestSyncTreeModeReplicatesFOB(t *testing.T) {
	a := openTestStore(t, "a")
	b := openTestStore(t, "b")
	ctx := context.Background()

	var ids []model.ID
	for i := 0; i < 8; i++ {
		fob, err := a.InsertFOB(ctx, model.NewID(), a.StoreID, uint64(i+1), model.TypeRegular)
		require.NoError(t, err)
		ids = append(ids, fob.ID)
	}

	runPair(t, ModeSyncTree, a, b)

	for _, id := range ids {
		_, err := b.GetFOB(ctx, id)
		require.NoError(t, err)
	}
}

func TestSyncTreeModeConverges(t *testing.T) {
	a := openTestStore(t, "a")
	b := openTestStore(t, "b")
	ctx := context.Background()

	aFOB, err := a.InsertFOB(ctx, model.NewID(), a.StoreID, 1, model.TypeDir)
	require.NoError(t, err)
	bFOB, err := b.InsertFOB(ctx, model.NewID(), b.StoreID, 1, model.TypeRegular)
	require.NoError(t, err)

	runPair(t, ModeSyncTree, a, b)

	_, err = b.GetFOB(ctx, aFOB.ID)
	require.NoError(t, err)
	_, err = a.GetFOB(ctx, bFOB.ID)
	require.NoError(t, err)
}
