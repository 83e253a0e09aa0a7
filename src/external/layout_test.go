package external

import (
	"encoding/binary"
	"testing"

	"odscore/src/engine"
	"odscore/src/models"
	"odscore/src/schema"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *engine.Store {
	t.Helper()
	app, err := schema.LoadApplicationModelFile("../schema/testdata/measurement.yaml")
	require.NoError(t, err)
	base, err := schema.DefaultBaseModel()
	require.NoError(t, err)
	cat, err := schema.Build(base, app, schema.BuildOptions{})
	require.NoError(t, err)
	return engine.NewStore(cat, nil)
}

func aidOf(t *testing.T, s *engine.Store, name string) int64 {
	t.Helper()
	e, err := s.Catalog().ElementByName(name)
	require.NoError(t, err)
	return e.Aid
}

func component(ordinal int32, file string, vt ValueType, length int32, extra ...models.NameValue) []models.NameValue {
	return append([]models.NameValue{
		{Name: "Name", Value: models.StringValue(file)},
		{Name: "OrdinalNumber", Value: models.LongValue(ordinal)},
		{Name: "Length", Value: models.LongValue(length)},
		{Name: "FileName", Value: models.StringValue(file)},
		{Name: "ValueType", Value: models.EnumValue(int32(vt))},
		{Name: "StartOffset", Value: models.LongLongValue(0)},
		{Name: "BlockSize", Value: models.LongValue(4)},
		{Name: "ValuesPerBlock", Value: models.LongValue(1)},
		{Name: "ValueOffset", Value: models.LongValue(0)},
	}, extra...)
}

func TestReadLayoutFromStore(t *testing.T) {
	s := newStore(t)
	c, dir := newCodec(t)
	lcAid, ecAid := aidOf(t, s, "lc"), aidOf(t, s, "ec")

	head := make([]byte, 12)
	tail := make([]byte, 8)
	for i, v := range []int32{1, 2, 3} {
		binary.LittleEndian.PutUint32(head[i*4:], uint32(v))
	}
	for i, v := range []int32{4, 5} {
		binary.LittleEndian.PutUint32(tail[i*4:], uint32(v))
	}
	writeData(t, dir, "head.bin", head)
	writeData(t, dir, "tail.bin", tail)
	writeData(t, dir, "tail.flags", flagBytes(15, 0))

	lc, err := s.CreateInstance(lcAid, []models.NameValue{
		{Name: "Name", Value: models.StringValue("speed")},
		{Name: "SeqRep", Value: models.EnumValue(7)},
	})
	require.NoError(t, err)
	// created out of order on purpose
	second, err := s.CreateInstance(ecAid, component(2, "tail.bin", TypeLong, 2,
		models.NameValue{Name: "FlagsFileName", Value: models.StringValue("tail.flags")},
		models.NameValue{Name: "FlagsStartOffset", Value: models.LongLongValue(0)},
	))
	require.NoError(t, err)
	first, err := s.CreateInstance(ecAid, component(1, "head.bin", TypeLong, 3))
	require.NoError(t, err)
	require.NoError(t, s.SetRelatedInstances(lcAid, lc, "ec", []int64{second, first}, engine.ModeInsert))

	layout, err := ReadLayout(s, lcAid, lc)
	require.NoError(t, err)
	require.Len(t, layout.Components, 2)
	require.Equal(t, "head.bin", layout.Components[0].File)
	require.Equal(t, "tail.bin", layout.Components[1].File)
	require.Equal(t, int64(5), layout.Len())
	require.Equal(t, []FlagDescriptor{{}, {File: "tail.flags"}}, layout.Flags)
	require.Nil(t, layout.GlobalFlag)

	ch, err := c.ReadChannel(layout, 0, 5)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3, 4, 5}, ch.Int)
	require.Equal(t, []models.Flag{15, 15, 15, 15, 0}, ch.SeqFlags)

	require.NoError(t, s.SetAttributeValues(lcAid, lc, []models.NameValue{{Name: "GlobalFlag", Value: models.ShortValue(0)}}))
	layout, err = ReadLayout(s, lcAid, lc)
	require.NoError(t, err)
	require.NotNil(t, layout.GlobalFlag)
	flags, err := c.ReadFlags(layout, 0, 5)
	require.NoError(t, err)
	for _, f := range flags {
		require.False(t, f.IsValid())
	}
}

func TestReadLayoutLocalFlags(t *testing.T) {
	s := newStore(t)
	lcAid, ecAid := aidOf(t, s, "lc"), aidOf(t, s, "ec")

	lc, err := s.CreateInstance(lcAid, []models.NameValue{
		{Name: "Name", Value: models.StringValue("c")},
		{Name: "SeqRep", Value: models.EnumValue(7)},
		{Name: "Flags", Value: models.Value{Type: models.DSShort, Flag: models.FlagValid, Int: []int64{15, 0}}},
	})
	require.NoError(t, err)
	ec, err := s.CreateInstance(ecAid, component(1, "x.bin", TypeShort, 2))
	require.NoError(t, err)
	require.NoError(t, s.SetRelatedInstances(ecAid, ec, "lc", []int64{lc}, engine.ModeInsert))

	layout, err := ReadLayout(s, lcAid, lc)
	require.NoError(t, err)
	require.Empty(t, layout.Flags)
	require.Equal(t, []models.Flag{15, 0}, layout.LocalFlags)
	require.Equal(t, TypeShort, layout.Components[0].ValueType)
}

func TestReadLayoutErrors(t *testing.T) {
	s := newStore(t)
	lcAid := aidOf(t, s, "lc")
	lc, err := s.CreateInstance(lcAid, []models.NameValue{
		{Name: "Name", Value: models.StringValue("empty")},
		{Name: "SeqRep", Value: models.EnumValue(0)},
	})
	require.NoError(t, err)

	_, err = ReadLayout(s, lcAid, lc)
	require.True(t, errors.Is(err, models.ErrNotFound), "got %v", err)

	_, err = ReadLayout(s, lcAid, 999)
	require.True(t, errors.Is(err, models.ErrNotFound), "got %v", err)

	_, err = ReadLayout(s, aidOf(t, s, "mea"), 1)
	require.True(t, errors.Is(err, models.ErrSchemaViolation), "got %v", err)
}
