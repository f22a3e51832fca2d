// Package wstoretest contains compliance tests
// that every wstore implementation must pass.
package wstoretest

import (
	"context"
	"testing"

	"github.com/ssc-witness/witness/wround"
	"github.com/ssc-witness/witness/wround/wroundtest"
	"github.com/ssc-witness/witness/wstore"
	"github.com/stretchr/testify/require"
)

// Seed is the initial content of the stores under test.
type Seed struct {
	// Nil means params were never initialized.
	Params *wround.RoundParams

	Schedules   map[uint64][]string
	Witnesses   []wround.Witness
	BlockHashes map[uint64]string
}

// StoreFactory returns stores populated with seed.
// The two returned values may be the same underlying store.
type StoreFactory func(t *testing.T, seed Seed) (wstore.RoundStateStore, wstore.BlockLedger)

// TestStoreCompliance runs the compliance suite against the stores built by f.
func TestStoreCompliance(t *testing.T, f StoreFactory) {
	fx := wroundtest.NewFixture(4)

	t.Run("params not initialized", func(t *testing.T) {
		t.Parallel()

		rs, _ := f(t, Seed{})
		_, err := rs.LoadRoundParams(context.Background())
		require.ErrorIs(t, err, wstore.ErrParamsNotFound)
	})

	t.Run("params round trip", func(t *testing.T) {
		t.Parallel()

		p := fx.Params(10, 101, 105, 0)
		rs, _ := f(t, Seed{Params: &p})

		got, err := rs.LoadRoundParams(context.Background())
		require.NoError(t, err)
		require.Equal(t, p, got)
	})

	t.Run("schedules", func(t *testing.T) {
		t.Parallel()

		rs, _ := f(t, Seed{
			Schedules: map[uint64][]string{
				10: {"witness3", "witness1", "witness2"},
			},
		})

		ctx := context.Background()

		got, err := rs.LoadSchedule(ctx, 10)
		require.NoError(t, err)
		require.Equal(t, []string{"witness3", "witness1", "witness2"}, got, "schedule order must be preserved")

		got, err = rs.LoadSchedule(ctx, 11)
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("witnesses", func(t *testing.T) {
		t.Parallel()

		disabled := fx.Witnesses[3]
		disabled.Enabled = false

		rs, _ := f(t, Seed{
			Witnesses: []wround.Witness{fx.Witnesses[0], fx.Witnesses[1], disabled},
		})

		ctx := context.Background()

		got, err := rs.LoadWitness(ctx, "witness1")
		require.NoError(t, err)
		requireWitnessEqual(t, fx.Witnesses[0], got)

		got, err = rs.LoadWitness(ctx, disabled.Account)
		require.NoError(t, err)
		requireWitnessEqual(t, disabled, got)

		_, err = rs.LoadWitness(ctx, "witness3")
		require.ErrorIs(t, err, wstore.ErrWitnessNotFound)
	})

	t.Run("scheduled witnesses skip unregistered accounts", func(t *testing.T) {
		t.Parallel()

		rs, _ := f(t, Seed{
			Schedules: map[uint64][]string{
				10: {"witness1", "nobody", "witness2"},
			},
			Witnesses: fx.Witnesses[:2],
		})

		ws, err := wstore.LoadScheduledWitnesses(context.Background(), rs, 10)
		require.NoError(t, err)
		require.Len(t, ws, 2)
		require.Equal(t, "witness1", ws[0].Account)
		require.Equal(t, "witness2", ws[1].Account)
	})

	t.Run("block hashes", func(t *testing.T) {
		t.Parallel()

		_, bl := f(t, Seed{
			BlockHashes: map[uint64]string{
				1: fx.BlockHash(1),
				2: fx.BlockHash(2),
			},
		})

		ctx := context.Background()

		h, err := bl.LoadBlockHash(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, fx.BlockHash(2), h)

		_, err = bl.LoadBlockHash(ctx, 3)
		require.ErrorIs(t, err, wstore.ErrBlockNotFound)
		require.ErrorIs(t, err, wround.ErrBlockNotFound)
	})
}

func requireWitnessEqual(t *testing.T, want, got wround.Witness) {
	t.Helper()

	require.Equal(t, want.Account, got.Account)
	require.True(t, want.SigningKey.Equal(got.SigningKey), "signing keys differ")
	require.Equal(t, want.IP, got.IP)
	require.Equal(t, want.RPCPort, got.RPCPort)
	require.Equal(t, want.Enabled, got.Enabled)
}
