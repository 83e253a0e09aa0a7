package directors

import (
	"testing"

	"odscore/src/models"
	"odscore/src/schema"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *schema.Catalog {
	t.Helper()
	app, err := schema.LoadApplicationModelFile(measurementModel)
	require.NoError(t, err)
	base, err := schema.DefaultBaseModel()
	require.NoError(t, err)
	cat, err := schema.Build(base, app, schema.BuildOptions{})
	require.NoError(t, err)
	return cat
}

func TestServiceManagerLifecycle(t *testing.T) {
	sm := NewServiceManager(testSettings(t), nil)
	cat := testCatalog(t)

	b, err := sm.Open("bench", cat)
	require.NoError(t, err)
	_, err = uuid.Parse(b.ID)
	require.NoError(t, err)
	a, err := sm.Open("archive", cat)
	require.NoError(t, err)

	_, err = sm.Open("BENCH", cat)
	require.True(t, errors.Is(err, models.ErrConstraintViolation), "got %v", err)

	got, err := sm.GetDataSetByName("Bench")
	require.NoError(t, err)
	require.Same(t, b, got)
	got, err = sm.GetDataSetByID(a.ID)
	require.NoError(t, err)
	require.Same(t, a, got)

	list := sm.ListDataSets()
	require.Len(t, list, 2)
	require.Equal(t, "archive", list[0].Name)

	_, err = sm.GetDataSetByID("bench")
	require.True(t, errors.Is(err, models.ErrNotFound))

	require.NoError(t, sm.Close(a.ID))
	_, err = sm.GetDataSetByID(a.ID)
	require.True(t, errors.Is(err, models.ErrNotFound))
	require.True(t, errors.Is(sm.Close(a.ID), models.ErrNotFound))

	require.NoError(t, sm.CloseAll())
	require.Empty(t, sm.ListDataSets())
}

func TestServiceManagerSingleton(t *testing.T) {
	ResetServiceManager()
	t.Cleanup(ResetServiceManager)

	sm := InitServiceManager(testSettings(t), nil)
	require.Same(t, sm, GetServiceManager())
	require.Same(t, sm, InitServiceManager(nil, nil))
}

func TestServiceManagerDefaultSingleton(t *testing.T) {
	ResetServiceManager()
	t.Cleanup(ResetServiceManager)

	sm := GetServiceManager()
	require.Same(t, sm, GetServiceManager())
	require.Empty(t, sm.ListDataSets())

	ds, err := sm.Open("bench", testCatalog(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sm.CloseAll() })

	got, err := GetServiceManager().GetDataSetByID(ds.ID)
	require.NoError(t, err)
	require.Same(t, ds, got)
	require.Same(t, sm, InitServiceManager(testSettings(t), nil))
}
