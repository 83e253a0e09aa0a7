package engine

import (
	"testing"

	"odscore/src/models"
	"odscore/src/schema"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	app, err := schema.LoadApplicationModelFile("../schema/testdata/measurement.yaml")
	require.NoError(t, err)
	base, err := schema.DefaultBaseModel()
	require.NoError(t, err)
	cat, err := schema.Build(base, app, schema.BuildOptions{})
	require.NoError(t, err)
	return NewStore(cat, nil)
}

func aidOf(t *testing.T, s *Store, name string) int64 {
	t.Helper()
	e, err := s.Catalog().ElementByName(name)
	require.NoError(t, err)
	return e.Aid
}

func nv(name string, v models.Value) models.NameValue {
	return models.NameValue{Name: name, Value: v}
}

func mustCreate(t *testing.T, s *Store, element string, values ...models.NameValue) int64 {
	t.Helper()
	iid, err := s.CreateInstance(aidOf(t, s, element), values)
	require.NoError(t, err)
	return iid
}

func TestCreateInstanceAssignsIids(t *testing.T) {
	s := newTestStore(t)
	prj := aidOf(t, s, "prj")

	first := mustCreate(t, s, "prj", nv("Name", models.StringValue("first")))
	require.Equal(t, int64(1), first)
	id, err := s.GetAttributeValue(prj, first, "Id")
	require.NoError(t, err)
	require.Equal(t, []int64{1}, id.Int)
	require.Equal(t, models.DTLongLong, id.Type)

	supplied := mustCreate(t, s, "prj", nv("Id", models.LongLongValue(10)), nv("Name", models.StringValue("ten")))
	require.Equal(t, int64(10), supplied)

	next := mustCreate(t, s, "prj", nv("Name", models.StringValue("next")))
	require.Equal(t, int64(11), next)

	// DT_ID is accepted for a DT_LONGLONG id attribute
	viaID := mustCreate(t, s, "prj", nv("Id", models.IDValue(20)), nv("Name", models.StringValue("twenty")))
	require.Equal(t, int64(20), viaID)

	_, err = s.CreateInstance(prj, []models.NameValue{nv("Id", models.LongLongValue(10)), nv("Name", models.StringValue("dup"))})
	require.True(t, errors.Is(err, models.ErrConstraintViolation))

	iids, err := s.AllInstances(prj)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 10, 11, 20}, iids)
	require.Equal(t, 4, s.InstanceCount(prj))
}

func TestCreateInstanceViolations(t *testing.T) {
	s := newTestStore(t)
	prj := aidOf(t, s, "prj")

	tests := []struct {
		name   string
		values []models.NameValue
		want   error
	}{
		{"missing obligatory", []models.NameValue{nv("Budget", models.DoubleValue(1))}, models.ErrSchemaViolation},
		{"invalid obligatory", []models.NameValue{nv("Name", models.InvalidValue(models.DTString))}, models.ErrSchemaViolation},
		{"type mismatch", []models.NameValue{nv("Name", models.LongValue(3))}, models.ErrSchemaViolation},
		{"sequence for scalar", []models.NameValue{nv("Name", models.StringSeq("a", "b"))}, models.ErrSchemaViolation},
		{"unknown enum item", []models.NameValue{nv("Name", models.StringValue("x")), nv("Status", models.EnumValue(9))}, models.ErrSchemaViolation},
		{"negative id", []models.NameValue{nv("Name", models.StringValue("x")), nv("Id", models.LongLongValue(-4))}, models.ErrSchemaViolation},
		{"unknown attribute", []models.NameValue{nv("Name", models.StringValue("x")), nv("Color", models.StringValue("red"))}, models.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateInstance(prj, tt.values)
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
	require.Equal(t, 0, s.InstanceCount(prj))

	iid := mustCreate(t, s, "prj", nv("Name", models.StringValue("ok")), nv("Status", models.EnumValue(1)))
	v, err := s.GetAttributeValue(prj, iid, "Status")
	require.NoError(t, err)
	require.Equal(t, models.DTEnum, v.Type)
	require.Equal(t, []int64{1}, v.Int)

	_, err = s.CreateInstance(999, nil)
	require.True(t, errors.Is(err, models.ErrNotFound))
}

func TestUniqueAttribute(t *testing.T) {
	s := newTestStore(t)
	tag := aidOf(t, s, "tag")

	a := mustCreate(t, s, "tag", nv("Name", models.StringValue("a")), nv("Code", models.LongValue(1)))
	b := mustCreate(t, s, "tag", nv("Name", models.StringValue("b")), nv("Code", models.LongValue(2)))
	// unset unique values do not collide
	mustCreate(t, s, "tag", nv("Name", models.StringValue("c")))
	mustCreate(t, s, "tag", nv("Name", models.StringValue("d")))

	_, err := s.CreateInstance(tag, []models.NameValue{nv("Name", models.StringValue("e")), nv("Code", models.LongValue(1))})
	require.True(t, errors.Is(err, models.ErrConstraintViolation))

	err = s.SetAttributeValues(tag, b, []models.NameValue{nv("Code", models.LongValue(1))})
	require.True(t, errors.Is(err, models.ErrConstraintViolation))

	// rewriting the own value is fine
	require.NoError(t, s.SetAttributeValues(tag, a, []models.NameValue{nv("Code", models.LongValue(1))}))

	require.NoError(t, s.RemoveInstance(tag, a, false))
	require.NoError(t, s.SetAttributeValues(tag, b, []models.NameValue{nv("Code", models.LongValue(1))}))
}

func TestSetAttributeValues(t *testing.T) {
	s := newTestStore(t)
	mea := aidOf(t, s, "mea")
	iid := mustCreate(t, s, "mea", nv("Name", models.StringValue("run 1")))

	require.NoError(t, s.SetAttributeValues(mea, iid, []models.NameValue{
		nv("typ", models.StringValue("OCT,GES")),
		nv("Speeds", models.LongSeq(10, 20, 30)),
	}))
	vals, err := s.GetAttributeValues(mea, iid, "typ", "Speeds")
	require.NoError(t, err)
	require.Equal(t, "OCT,GES", vals[0].Value.AsString())
	require.Equal(t, []int64{10, 20, 30}, vals[1].Value.Int)

	err = s.SetAttributeValues(mea, 4711, []models.NameValue{nv("typ", models.StringValue("x"))})
	require.True(t, errors.Is(err, models.ErrNotFound))
	err = s.SetAttributeValues(mea, iid, []models.NameValue{nv("nope", models.StringValue("x"))})
	require.True(t, errors.Is(err, models.ErrNotFound))
	err = s.SetAttributeValues(mea, iid, []models.NameValue{nv("Id", models.LongLongValue(99))})
	require.True(t, errors.Is(err, models.ErrSchemaViolation))
	err = s.SetAttributeValues(mea, iid, []models.NameValue{nv("Name", models.InvalidValue(models.DTString))})
	require.True(t, errors.Is(err, models.ErrSchemaViolation))

	// a failing value leaves every other value untouched
	err = s.SetAttributeValues(mea, iid, []models.NameValue{
		nv("typ", models.StringValue("changed")),
		nv("Speeds", models.StringValue("wrong type")),
	})
	require.True(t, errors.Is(err, models.ErrSchemaViolation))
	v, err := s.GetAttributeValue(mea, iid, "typ")
	require.NoError(t, err)
	require.Equal(t, "OCT,GES", v.AsString())

	// unset attributes read back invalid with their declared type
	v, err = s.GetAttributeValue(mea, iid, "MeasurementBegin")
	require.NoError(t, err)
	require.False(t, v.IsValid())
	require.Equal(t, models.DTDate, v.Type)

	all, err := s.AllAttributeValues(mea, iid)
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, "Id", all[0].Name)
}

func TestAttributeAddedAfterInstances(t *testing.T) {
	s := newTestStore(t)
	mea := aidOf(t, s, "mea")
	iid := mustCreate(t, s, "mea", nv("Name", models.StringValue("old")))

	require.NoError(t, s.Catalog().AddAttribute(mea, models.Attribute{Name: "Driver", DataType: models.DTString}))
	v, err := s.GetAttributeValue(mea, iid, "Driver")
	require.NoError(t, err)
	require.False(t, v.IsValid())

	require.NoError(t, s.SetAttributeValues(mea, iid, []models.NameValue{nv("Driver", models.StringValue("Kim"))}))
	v, err = s.GetAttributeValue(mea, iid, "Driver")
	require.NoError(t, err)
	require.Equal(t, "Kim", v.AsString())
}

func TestInstanceAttributes(t *testing.T) {
	s := newTestStore(t)
	mea := aidOf(t, s, "mea")
	iid := mustCreate(t, s, "mea", nv("Name", models.StringValue("m")))

	require.NoError(t, s.SetInstanceAttribute(mea, iid, "weather", models.StringValue("rain")))
	require.NoError(t, s.SetInstanceAttribute(mea, iid, "temperature", models.DoubleValue(12.5).WithUnit("degC")))
	require.NoError(t, s.SetInstanceAttribute(mea, iid, "weather", models.StringValue("sun")))

	attrs, err := s.InstanceAttributes(mea, iid)
	require.NoError(t, err)
	require.Len(t, attrs, 2)
	require.Equal(t, "weather", attrs[0].Name)
	require.Equal(t, "sun", attrs[0].Value.AsString())
	require.Equal(t, "degC", attrs[1].Value.Unit)

	err = s.SetInstanceAttribute(mea, iid, "typ", models.StringValue("x"))
	require.True(t, errors.Is(err, models.ErrConstraintViolation))

	require.NoError(t, s.RemoveInstanceAttribute(mea, iid, "weather"))
	err = s.RemoveInstanceAttribute(mea, iid, "weather")
	require.True(t, errors.Is(err, models.ErrNotFound))
}

func TestInstanceByName(t *testing.T) {
	s := newTestStore(t)
	prj := aidOf(t, s, "prj")
	mustCreate(t, s, "prj", nv("Name", models.StringValue("alpha")))
	beta := mustCreate(t, s, "prj", nv("Name", models.StringValue("beta")))

	iid, err := s.InstanceByName(prj, "beta")
	require.NoError(t, err)
	require.Equal(t, beta, iid)
	require.True(t, s.HasInstance(prj, beta))

	_, err = s.InstanceByName(prj, "gamma")
	require.True(t, errors.Is(err, models.ErrNotFound))
}
