package directors

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"odscore/src/engine"
	"odscore/src/external"
	"odscore/src/models"
	"odscore/src/query"
	"odscore/src/schema"
	"odscore/src/settings"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

const measurementModel = "../schema/testdata/measurement.yaml"

func testSettings(t *testing.T) *settings.Arguments {
	t.Helper()
	args := settings.DefaultArguments()
	args.DataDir = t.TempDir()
	args.JournalDir = filepath.Join(t.TempDir(), "journal")
	return args
}

func openTestDataSet(t *testing.T, args *settings.Arguments) *DataSet {
	t.Helper()
	ds, err := OpenDataSet("bench", measurementModel, args, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func aidOf(t *testing.T, ds *DataSet, name string) int64 {
	t.Helper()
	e, err := ds.Catalog().ElementByName(name)
	require.NoError(t, err)
	return e.Aid
}

func named(name string) models.NameValue {
	return models.NameValue{Name: "Name", Value: models.StringValue(name)}
}

func TestDataSetQueries(t *testing.T) {
	ds := openTestDataSet(t, testSettings(t))
	prj, tstser, mea := aidOf(t, ds, "prj"), aidOf(t, ds, "tstser"), aidOf(t, ds, "mea")

	p, err := ds.CreateInstance(prj, []models.NameValue{named("alpha")})
	require.NoError(t, err)
	ts, err := ds.CreateInstance(tstser, []models.NameValue{named("ts")})
	require.NoError(t, err)
	m, err := ds.CreateInstance(mea, []models.NameValue{named("m"), {Name: "typ", Value: models.StringValue("OCT,GES")}})
	require.NoError(t, err)
	require.NoError(t, ds.SetRelatedInstances(prj, p, "tstser", []int64{ts}, engine.ModeInsert))
	require.NoError(t, ds.SetRelatedInstances(tstser, ts, "mea", []int64{m}, engine.ModeInsert))
	require.NoError(t, ds.CheckMinCardinality())

	path, err := ds.FindRelationPath(prj, mea)
	require.NoError(t, err)
	require.Len(t, path, 2)

	ok, err := ds.CheckConditionOnRelatedInstances(prj, p, query.Condition{Aid: mea, Attribute: "typ", Op: query.OpEQ, Operand: models.StringValue("OCT,GES")})
	require.NoError(t, err)
	require.True(t, ok)

	rs, err := ds.Join(tstser, []int64{ts}, []string{"Name"}, mea, []int64{m}, []string{"typ"}, "")
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())
	require.Equal(t, "OCT,GES", rs.Column(mea, "typ").Values[0].AsString())

	rs, err = ds.Execute(query.Query{Root: "prj", Select: []query.Selector{{Attribute: "Name"}}, WhereText: `mea.typ LIKE "OCT*"`})
	require.NoError(t, err)
	require.Equal(t, []int64{p}, rs.Key(prj))

	require.NoError(t, ds.RemoveInstance(prj, p, true))
	all, err := ds.AllInstances(mea)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestDataSetReadsChannel(t *testing.T) {
	args := testSettings(t)
	ds := openTestDataSet(t, args)
	lcAid, ecAid := aidOf(t, ds, "lc"), aidOf(t, ds, "ec")

	data := make([]byte, 6)
	for i, v := range []int16{-3, 0, 300} {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}
	require.NoError(t, os.WriteFile(filepath.Join(args.DataDir, "speed.bin"), data, 0o644))

	lc, err := ds.CreateInstance(lcAid, []models.NameValue{named("speed"), {Name: "SeqRep", Value: models.EnumValue(7)}})
	require.NoError(t, err)
	ec, err := ds.CreateInstance(ecAid, []models.NameValue{
		named("speed.bin"),
		{Name: "OrdinalNumber", Value: models.LongValue(1)},
		{Name: "Length", Value: models.LongValue(3)},
		{Name: "FileName", Value: models.StringValue("speed.bin")},
		{Name: "ValueType", Value: models.EnumValue(int32(external.TypeShort))},
		{Name: "StartOffset", Value: models.LongLongValue(0)},
		{Name: "BlockSize", Value: models.LongValue(2)},
		{Name: "ValuesPerBlock", Value: models.LongValue(1)},
		{Name: "ValueOffset", Value: models.LongValue(0)},
	})
	require.NoError(t, err)
	require.NoError(t, ds.SetRelatedInstances(ecAid, ec, "lc", []int64{lc}, engine.ModeInsert))

	v, err := ds.ReadValues(lcAid, lc, 0, 10)
	require.NoError(t, err)
	require.Equal(t, models.DSShort, v.Type)
	require.Equal(t, []int64{-3, 0, 300}, v.Int)

	flags, err := ds.ReadFlags(lcAid, lc, 1, 2)
	require.NoError(t, err)
	require.Equal(t, []models.Flag{models.FlagValid, models.FlagValid}, flags)

	_, err = ds.ReadValues(lcAid, lc, 4, 1)
	require.True(t, errors.Is(err, models.ErrRange), "got %v", err)
}

func TestDataSetSnapshotAndJournal(t *testing.T) {
	args := testSettings(t)
	ds := openTestDataSet(t, args)
	prj := aidOf(t, ds, "prj")

	p, err := ds.CreateInstance(prj, []models.NameValue{named("alpha")})
	require.NoError(t, err)
	require.NoError(t, ds.SetInstanceAttribute(prj, p, "operator", models.StringValue("kim")))

	snap := filepath.Join(t.TempDir(), "bench.bson")
	require.NoError(t, ds.SaveSnapshot(snap))

	other, err := OpenDataSet("copy", measurementModel, settings.DefaultArguments(), nil)
	require.NoError(t, err)
	defer other.Close()
	require.NoError(t, other.LoadSnapshot(snap))
	values, err := other.GetAttributeValues(prj, p, "Name")
	require.NoError(t, err)
	require.Equal(t, "alpha", values[0].Value.AsString())
	attrs, err := other.InstanceAttributes(prj, p)
	require.NoError(t, err)
	require.Len(t, attrs, 1)

	err = other.LoadSnapshot(filepath.Join(t.TempDir(), "missing.bson"))
	require.True(t, errors.Is(err, models.ErrIOFailure), "got %v", err)

	journals, err := filepath.Glob(filepath.Join(args.JournalDir, "bench_*.journal"))
	require.NoError(t, err)
	require.Len(t, journals, 1)
	content, err := os.ReadFile(journals[0])
	require.NoError(t, err)
	require.Contains(t, string(content), "CREATE")
}

func TestDataSetConcurrentReaders(t *testing.T) {
	ds := openTestDataSet(t, testSettings(t))
	prj := aidOf(t, ds, "prj")

	var wg sync.WaitGroup
	errs := make(chan error, 4*50*2)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if _, err := ds.CreateInstance(prj, []models.NameValue{named("p")}); err != nil {
					errs <- err
				}
				if _, err := ds.AllInstances(prj); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := ds.AllInstances(prj)
	require.NoError(t, err)
	require.Len(t, all, 200)
}

func TestOpenDataSetErrors(t *testing.T) {
	_, err := OpenDataSet("x", "does-not-exist.yaml", settings.DefaultArguments(), nil)
	require.True(t, errors.Is(err, models.ErrNotFound), "got %v", err)

	args := settings.DefaultArguments()
	args.MaxRelationHops = -1
	base, err := schema.DefaultBaseModel()
	require.NoError(t, err)
	cat, err := schema.Build(base, nil, schema.BuildOptions{})
	require.NoError(t, err)
	_, err = NewDataSet("x", cat, args, nil)
	require.True(t, errors.Is(err, models.ErrSchemaViolation), "got %v", err)
}
