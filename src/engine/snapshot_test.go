package engine

import (
	"testing"

	"odscore/src/helpers"
	"odscore/src/models"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func populated(t *testing.T) *Store {
	t.Helper()
	s := newTestStore(t)
	p, _, m, tg := buildHierarchy(t, s)
	require.NoError(t, s.SetAttributeValues(aidOf(t, s, "prj"), p, []models.NameValue{
		nv("Budget", models.DoubleValue(1.5e6)),
		nv("Status", models.EnumValue(2)),
	}))
	require.NoError(t, s.SetAttributeValues(aidOf(t, s, "mea"), m, []models.NameValue{
		nv("Speeds", models.LongSeq(1, 2, 3)),
	}))
	require.NoError(t, s.SetAttributeValues(aidOf(t, s, "tag"), tg, []models.NameValue{
		nv("Code", models.LongValue(77)),
	}))
	require.NoError(t, s.SetInstanceAttribute(aidOf(t, s, "mea"), m, "operator", models.StringValue("Ana")))
	return s
}

func TestExportImportRoundtrip(t *testing.T) {
	src := populated(t)
	data, err := src.ExportBSON()
	require.NoError(t, err)

	dst := NewStore(src.Catalog(), nil)
	require.NoError(t, dst.ImportBSON(data))

	for _, e := range src.Catalog().Elements() {
		want, err := src.AllInstances(e.Aid)
		require.NoError(t, err)
		got, err := dst.AllInstances(e.Aid)
		require.NoError(t, err)
		require.Equal(t, want, got, e.Name)
		for _, iid := range want {
			wv, err := src.AllAttributeValues(e.Aid, iid)
			require.NoError(t, err)
			gv, err := dst.AllAttributeValues(e.Aid, iid)
			require.NoError(t, err)
			require.Equal(t, len(wv), len(gv))
			for i := range wv {
				require.True(t, wv[i].Value.Equal(gv[i].Value), "%s.%s", e.Name, wv[i].Name)
			}
			for _, rel := range src.Catalog().Relations(e.Aid) {
				require.Equal(t, src.Related(rel, iid), dst.Related(rel, iid))
			}
		}
	}
	requireSymmetric(t, dst)

	attrs, err := dst.InstanceAttributes(aidOf(t, dst, "mea"), 1)
	require.NoError(t, err)
	require.Equal(t, "Ana", attrs[0].Value.AsString())

	// the unique index is rebuilt and new iids continue after the imported ones
	tag := aidOf(t, dst, "tag")
	_, err = dst.CreateInstance(tag, []models.NameValue{nv("Name", models.StringValue("x")), nv("Code", models.LongValue(77))})
	require.True(t, errors.Is(err, models.ErrConstraintViolation))
	iid := mustCreate(t, dst, "tag", nv("Name", models.StringValue("y")))
	require.Equal(t, int64(2), iid)
}

func TestImportRejects(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, "prj", nv("Name", models.StringValue("keep")))

	err := s.ImportBSON([]byte{0x01, 0x02})
	require.True(t, errors.Is(err, models.ErrIOFailure))

	data, err := helpers.EncodeBSON(snapshotRecord{Version: 99})
	require.NoError(t, err)
	err = s.ImportBSON(data)
	require.True(t, errors.Is(err, models.ErrUnsupportedEncoding))

	data, err = helpers.EncodeBSON(snapshotRecord{Version: snapshotVersion, Arenas: []arenaRecord{{
		Aid:       aidOf(t, s, "prj"),
		Instances: []instanceRecord{{Iid: 1, Values: []attrRecord{{Name: "Color"}}}},
	}}})
	require.NoError(t, err)
	err = s.ImportBSON(data)
	require.True(t, errors.Is(err, models.ErrSchemaViolation))

	// nothing was replaced
	_, err = s.InstanceByName(aidOf(t, s, "prj"), "keep")
	require.NoError(t, err)
}

func TestImportRejectsBrokenLinks(t *testing.T) {
	src := populated(t)
	mea, tag := aidOf(t, src, "mea"), aidOf(t, src, "tag")
	tags, err := src.Catalog().RelationByName(mea, "tags")
	require.NoError(t, err)
	data, err := src.ExportBSON()
	require.NoError(t, err)

	edit := func(fn func(aid int64, ir *instanceRecord)) []byte {
		var rec snapshotRecord
		require.NoError(t, helpers.DecodeBSON(data, &rec))
		for i := range rec.Arenas {
			for j := range rec.Arenas[i].Instances {
				fn(rec.Arenas[i].Aid, &rec.Arenas[i].Instances[j])
			}
		}
		out, err := helpers.EncodeBSON(rec)
		require.NoError(t, err)
		return out
	}

	tests := map[string][]byte{
		"one-sided": edit(func(aid int64, ir *instanceRecord) {
			if aid == tag {
				ir.Links = nil
			}
		}),
		"dangling": edit(func(aid int64, ir *instanceRecord) {
			for k := range ir.Links {
				if aid == mea && ir.Links[k].Relation == int32(tags.ID) {
					ir.Links[k].Iids = append(ir.Links[k].Iids, 4242)
				}
			}
		}),
		"duplicated": edit(func(aid int64, ir *instanceRecord) {
			for k := range ir.Links {
				if aid == mea && ir.Links[k].Relation == int32(tags.ID) {
					ir.Links[k].Iids = append(ir.Links[k].Iids, ir.Links[k].Iids...)
				}
			}
		}),
	}
	for name, broken := range tests {
		t.Run(name, func(t *testing.T) {
			dst := NewStore(src.Catalog(), nil)
			keep := mustCreate(t, dst, "prj", nv("Name", models.StringValue("keep")))
			err := dst.ImportBSON(broken)
			require.True(t, errors.Is(err, models.ErrSchemaViolation), "got %v", err)
			require.True(t, dst.HasInstance(aidOf(t, dst, "prj"), keep))
			require.Equal(t, 0, dst.InstanceCount(mea))
		})
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	s := populated(t)
	snap := s.Snapshot()
	mea := aidOf(t, s, "mea")

	require.NoError(t, s.SetAttributeValues(mea, 1, []models.NameValue{nv("typ", models.StringValue("changed"))}))
	require.NoError(t, s.RemoveInstance(aidOf(t, s, "tag"), 1, false))

	v, err := snap.GetAttributeValue(mea, 1, "typ")
	require.NoError(t, err)
	require.False(t, v.IsValid())
	require.True(t, snap.HasInstance(aidOf(t, s, "tag"), 1))
	requireSymmetric(t, snap)
	requireSymmetric(t, s)
}
