package access_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"predictchain/core/state"
	"predictchain/native/access"
	"predictchain/storage"
)

var admin = [20]byte{0xAD}

func member(i int) [20]byte {
	return [20]byte{0x10, byte(i)}
}

func newEngine(t *testing.T) (*access.Engine, *state.Manager) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	engine := access.NewEngine()
	engine.SetState(mgr)
	require.NoError(t, engine.Initialize(admin))
	return engine, mgr
}

func TestInitializeOnce(t *testing.T) {
	engine, _ := newEngine(t)
	require.ErrorIs(t, engine.Initialize(admin), access.ErrAlreadyInitialized)
}

func TestCapAndDuplicateFailDistinctly(t *testing.T) {
	engine, _ := newEngine(t)

	for i := 0; i < access.MaxCreators; i++ {
		require.NoError(t, engine.AddCreator(admin, member(i)))
	}
	require.ErrorIs(t, engine.AddCreator(admin, member(99)), access.ErrTooManyCreators)
	// The full-set check runs first, so a duplicate on a full set still
	// reports the cap.
	require.ErrorIs(t, engine.AddCreator(admin, member(0)), access.ErrTooManyCreators)

	require.NoError(t, engine.RemoveCreator(admin, member(5)))
	require.ErrorIs(t, engine.AddCreator(admin, member(0)), access.ErrDuplicateCreator)
	require.NoError(t, engine.AddCreator(admin, member(99)))
}

func TestRemovePreservesOrder(t *testing.T) {
	engine, mgr := newEngine(t)
	for i := 0; i < 4; i++ {
		require.NoError(t, engine.AddCreator(admin, member(i)))
	}
	require.NoError(t, engine.RemoveCreator(admin, member(1)))

	reg, err := engine.Registry()
	require.NoError(t, err)
	require.Equal(t, [][20]byte{member(0), member(2), member(3)}, reg.Creators)

	require.ErrorIs(t, engine.RemoveCreator(admin, member(1)), access.ErrCreatorNotFound)

	ok, err := engine.IsCreator(member(2))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = engine.IsCreator(member(1))
	require.NoError(t, err)
	require.False(t, ok)

	evts := mgr.PendingEvents()
	require.Len(t, evts, 5)
	require.Equal(t, access.EventCreatorRemoved, evts[4].Type)
}

func TestNonAdminRejected(t *testing.T) {
	engine, _ := newEngine(t)
	require.ErrorIs(t, engine.AddCreator(member(1), member(1)), access.ErrUnauthorized)
	require.NoError(t, engine.AddCreator(admin, member(1)))
	require.ErrorIs(t, engine.RemoveCreator(member(1), member(1)), access.ErrUnauthorized)
}

func TestUninitializedRegistryAuthorizesNobody(t *testing.T) {
	engine := access.NewEngine()
	engine.SetState(state.NewManager(storage.NewMemDB()))
	ok, err := engine.IsCreator(admin)
	require.NoError(t, err)
	require.False(t, ok)
	require.ErrorIs(t, engine.AddCreator(admin, member(1)), access.ErrNotInitialized)
}
