package params

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smclabs/ictbot/internal/database"
)

func testStore(t *testing.T) (*Store, *database.Database) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	store, err := NewStore(db)
	require.NoError(t, err)
	return store, db
}

func TestNewStoreLoadsDefaults(t *testing.T) {
	store, _ := testStore(t)
	for _, def := range Registry {
		assert.Equal(t, def.Default, store.Get(def.Name), def.Name)
	}
}

func TestSetClampsAndPersists(t *testing.T) {
	store, db := testStore(t)

	applied, err := store.Set(MinRRRatio, 9.9)
	require.NoError(t, err)
	assert.Equal(t, 3.0, applied, "clamped to registry max")

	applied, err = store.Set(SwingLookback, 5.7)
	require.NoError(t, err)
	assert.Equal(t, 6.0, applied, "integer params round")
	assert.Equal(t, 6, store.GetInt(SwingLookback))

	_, err = store.Set("no_such_param", 1)
	require.Error(t, err)

	// survives a fresh load
	reloaded, err := NewStore(db)
	require.NoError(t, err)
	assert.Equal(t, 3.0, reloaded.Get(MinRRRatio))
	assert.Equal(t, 6, reloaded.GetInt(SwingLookback))
}

func TestClampRoundsByMagnitude(t *testing.T) {
	def := Lookup(FVGMinSizePct)
	require.NotNil(t, def)
	assert.Equal(t, 0.001234, Clamp(def, 0.0012341))

	def = Lookup(DisplacementMinBodyRatio)
	require.NotNil(t, def)
	assert.Equal(t, 0.55123, Clamp(def, 0.551234))

	def = Lookup(DisplacementATRMultiplier)
	require.NotNil(t, def)
	assert.Equal(t, 1.5123, Clamp(def, 1.51234))
}

func TestEnforceBoundsResetsStrayValues(t *testing.T) {
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	// a value written outside the store's clamp path, e.g. by hand
	require.NoError(t, db.SaveBotParam(OBBodyRatioMin, 0.95, 0.40))

	store, err := NewStore(db)
	require.NoError(t, err)
	assert.Equal(t, 0.95, store.Get(OBBodyRatioMin), "loaded as stored")

	reset, err := store.EnforceBounds()
	require.NoError(t, err)
	assert.Equal(t, []string{OBBodyRatioMin}, reset)
	assert.Equal(t, 0.40, store.Get(OBBodyRatioMin))

	v, err := db.GetBotParam(OBBodyRatioMin, 0.40)
	require.NoError(t, err)
	assert.Equal(t, 0.40, v, "reset persisted")
}

func TestSnapshotIsDetached(t *testing.T) {
	store, _ := testStore(t)
	snap := store.Snapshot()
	assert.Equal(t, 5, snap.SwingLookback)
	assert.Equal(t, 2.0, snap.MinRRRatio)

	_, err := store.Set(MinRRRatio, 2.5)
	require.NoError(t, err)
	assert.Equal(t, 2.0, snap.MinRRRatio, "existing snapshot unaffected")
	assert.Equal(t, 2.5, store.Snapshot().MinRRRatio)
}

func TestDefaultSnapshotMatchesRegistry(t *testing.T) {
	snap := DefaultSnapshot()
	assert.Equal(t, 5, snap.SwingLookback)
	assert.Equal(t, 0.55, snap.DisplacementMinBodyRatio)
	assert.Equal(t, 0.020, snap.DefaultSLPct)
}
