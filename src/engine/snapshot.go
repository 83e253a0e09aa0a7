package engine

import (
	"sort"

	"odscore/src/helpers"
	"odscore/src/models"

	"github.com/google/btree"
)

const snapshotVersion = 1

type valueRecord struct {
	Type     int32     `bson:"t"`
	Flag     int32     `bson:"f"`
	Unit     string    `bson:"u,omitempty"`
	Int      []int64   `bson:"i,omitempty"`
	Float    []float64 `bson:"d,omitempty"`
	Str      []string  `bson:"s,omitempty"`
	Bytes    [][]byte  `bson:"b,omitempty"`
	SeqFlags []int32   `bson:"sf,omitempty"`
}

type attrRecord struct {
	Name  string      `bson:"n"`
	Value valueRecord `bson:"v"`
}

type linkRecord struct {
	Relation int32   `bson:"r"`
	Iids     []int64 `bson:"iids"`
}

type instanceRecord struct {
	Iid       int64        `bson:"iid"`
	Values    []attrRecord `bson:"values"`
	InstAttrs []attrRecord `bson:"inst_attrs,omitempty"`
	Links     []linkRecord `bson:"links,omitempty"`
}

type arenaRecord struct {
	Aid       int64            `bson:"aid"`
	NextIid   int64            `bson:"next_iid"`
	Instances []instanceRecord `bson:"instances"`
}

type snapshotRecord struct {
	Version int32         `bson:"version"`
	Arenas  []arenaRecord `bson:"arenas"`
}

func toValueRecord(v models.Value) valueRecord {
	r := valueRecord{
		Type:  int32(v.Type),
		Flag:  int32(v.Flag),
		Unit:  v.Unit,
		Int:   v.Int,
		Float: v.Float,
		Str:   v.Str,
		Bytes: v.Bytes,
	}
	for _, f := range v.SeqFlags {
		r.SeqFlags = append(r.SeqFlags, int32(f))
	}
	return r
}

func (r valueRecord) value() models.Value {
	v := models.Value{
		Type:  models.DataType(r.Type),
		Flag:  models.Flag(r.Flag),
		Unit:  r.Unit,
		Int:   r.Int,
		Float: r.Float,
		Str:   r.Str,
		Bytes: r.Bytes,
	}
	for _, f := range r.SeqFlags {
		v.SeqFlags = append(v.SeqFlags, models.Flag(f))
	}
	return v
}

// Snapshot returns a deep copy of the store sharing the catalog. The copy
// has no journal and is meant for read-only query fan-out.
func (s *Store) Snapshot() *Store {
	out := NewStore(s.catalog, s.logger)
	for aid, a := range s.arenas {
		na := newArena()
		na.nextIid = a.nextIid
		a.tree.Ascend(func(item btree.Item) bool {
			na.tree.ReplaceOrInsert(item.(*Instance).clone())
			return true
		})
		out.arenas[aid] = na
	}
	out.reindex()
	return out
}

func (i *Instance) clone() *Instance {
	c := &Instance{
		Aid:    i.Aid,
		Iid:    i.Iid,
		values: make([]models.Value, len(i.values)),
		links:  make(map[models.RelationID][]int64, len(i.links)),
	}
	for idx, v := range i.values {
		c.values[idx] = v.Clone()
	}
	for _, nv := range i.instAttrs {
		c.instAttrs = append(c.instAttrs, models.NameValue{Name: nv.Name, Value: nv.Value.Clone()})
	}
	for id, l := range i.links {
		c.links[id] = append([]int64(nil), l...)
	}
	return c
}

// reindex rebuilds the unique index from the arenas.
func (s *Store) reindex() {
	s.unique = newUniqueIndex()
	for aid, a := range s.arenas {
		e, err := s.catalog.Element(aid)
		if err != nil {
			continue
		}
		a.tree.Ascend(func(item btree.Item) bool {
			inst := item.(*Instance)
			for idx, attr := range e.Attributes {
				if attr.Unique && !attr.IsID() {
					s.unique.add(e, idx, inst.value(idx, attr), inst.Iid)
				}
			}
			return true
		})
	}
}

// ExportBSON serializes every instance, value and link.
func (s *Store) ExportBSON() ([]byte, error) {
	rec := snapshotRecord{Version: snapshotVersion}

	aids := make([]int64, 0, len(s.arenas))
	for aid := range s.arenas {
		aids = append(aids, aid)
	}
	sort.Slice(aids, func(i, j int) bool { return aids[i] < aids[j] })

	for _, aid := range aids {
		e, err := s.catalog.Element(aid)
		if err != nil {
			return nil, err
		}
		a := s.arenas[aid]
		ar := arenaRecord{Aid: aid, NextIid: a.nextIid}
		a.tree.Ascend(func(item btree.Item) bool {
			inst := item.(*Instance)
			ir := instanceRecord{Iid: inst.Iid}
			for idx, attr := range e.Attributes {
				if idx < len(inst.values) && inst.values[idx].Type != models.DTUnknown {
					ir.Values = append(ir.Values, attrRecord{Name: attr.Name, Value: toValueRecord(inst.values[idx])})
				}
			}
			for _, nv := range inst.instAttrs {
				ir.InstAttrs = append(ir.InstAttrs, attrRecord{Name: nv.Name, Value: toValueRecord(nv.Value)})
			}
			ids := make([]int, 0, len(inst.links))
			for id := range inst.links {
				ids = append(ids, int(id))
			}
			sort.Ints(ids)
			for _, id := range ids {
				ir.Links = append(ir.Links, linkRecord{Relation: int32(id), Iids: inst.links[models.RelationID(id)]})
			}
			ar.Instances = append(ar.Instances, ir)
			return true
		})
		rec.Arenas = append(rec.Arenas, ar)
	}

	return helpers.EncodeBSON(rec)
}

// ImportBSON replaces the store content with a serialized snapshot. The
// store is left untouched when the snapshot does not fit the catalog.
func (s *Store) ImportBSON(data []byte) error {
	var rec snapshotRecord
	if err := helpers.DecodeBSON(data, &rec); err != nil {
		return models.WrapIOFailure(err, "decode store snapshot")
	}
	if rec.Version != snapshotVersion {
		return models.UnsupportedEncodingf("store snapshot version %d is not supported", rec.Version)
	}

	arenas := make(map[int64]*arena, len(rec.Arenas))
	for _, ar := range rec.Arenas {
		e, err := s.catalog.Element(ar.Aid)
		if err != nil {
			return err
		}
		a := newArena()
		a.nextIid = ar.NextIid
		for _, ir := range ar.Instances {
			inst := newInstance(e.Aid, ir.Iid, len(e.Attributes))
			for _, v := range ir.Values {
				_, idx := e.Attribute(v.Name)
				if idx < 0 {
					return models.SchemaViolationf("snapshot names unknown attribute %s.%s", e.Name, v.Name)
				}
				inst.values[idx] = v.Value.value()
			}
			for _, v := range ir.InstAttrs {
				inst.instAttrs = append(inst.instAttrs, models.NameValue{Name: v.Name, Value: v.Value.value()})
			}
			for _, l := range ir.Links {
				rel, err := s.catalog.Relation(models.RelationID(l.Relation))
				if err != nil {
					return err
				}
				if rel.Elem1 != e.Aid {
					return models.SchemaViolationf("snapshot links %s through foreign relation %s", e.Name, rel.Name)
				}
				inst.links[rel.ID] = l.Iids
			}
			a.tree.ReplaceOrInsert(inst)
			if ir.Iid >= a.nextIid {
				a.nextIid = ir.Iid + 1
			}
		}
		arenas[ar.Aid] = a
	}
	if err := s.checkLinks(arenas); err != nil {
		return err
	}

	s.arenas = arenas
	s.reindex()
	return nil
}

// checkLinks verifies that every link of a decoded snapshot points at an
// existing instance that links back the same number of times.
func (s *Store) checkLinks(arenas map[int64]*arena) error {
	var err error
	for _, a := range arenas {
		a.tree.Ascend(func(item btree.Item) bool {
			inst := item.(*Instance)
			for relID, targets := range inst.links {
				rel, _ := s.catalog.Relation(relID)
				inv := s.catalog.Inverse(rel)
				for t, n := range iidCount(targets) {
					var target *Instance
					if ta, ok := arenas[rel.Elem2]; ok {
						target = ta.get(t)
					}
					if target == nil {
						err = models.SchemaViolationf("snapshot links %s %d through %s to missing instance %d",
							s.elementName(inst.Aid), inst.Iid, rel.Name, t)
						return false
					}
					if back := iidCount(target.links[inv.ID])[inst.Iid]; back != n {
						err = models.SchemaViolationf("snapshot link %s %d -> %d through %s has %d inverse links, want %d",
							s.elementName(inst.Aid), inst.Iid, t, rel.Name, back, n)
						return false
					}
				}
			}
			return true
		})
		if err != nil {
			return err
		}
	}
	return nil
}
