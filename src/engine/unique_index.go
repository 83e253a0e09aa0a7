package engine

import (
	hashindex "odscore/src/hash_index"
	"odscore/src/models"
)

type indexKey struct {
	aid int64
	idx int
}

// uniqueIndex holds one hash index per unique attribute.
type uniqueIndex struct {
	indexes map[indexKey]*hashindex.HashIndex
}

func newUniqueIndex() *uniqueIndex {
	return &uniqueIndex{indexes: make(map[indexKey]*hashindex.HashIndex)}
}

func (u *uniqueIndex) index(aid int64, idx int, name string) *hashindex.HashIndex {
	k := indexKey{aid, idx}
	hi, ok := u.indexes[k]
	if !ok {
		hi = hashindex.NewHashIndex(hashindex.IndexField{FieldName: name, IsUnique: true})
		u.indexes[k] = hi
	}
	return hi
}

// check fails when another instance already holds v.
func (u *uniqueIndex) check(e *models.Element, a *models.Attribute, idx int, v models.Value, iid int64) error {
	if !v.IsValid() {
		return nil
	}
	hi, ok := u.indexes[indexKey{e.Aid, idx}]
	if !ok {
		return nil
	}
	for _, other := range hi.Lookup(v) {
		if other != iid {
			return models.ConstraintViolationf("unique attribute %s.%s: value %s is already used by instance %d", e.Name, a.Name, v, other)
		}
	}
	return nil
}

func (u *uniqueIndex) add(e *models.Element, idx int, v models.Value, iid int64) {
	// check ran before, so the insert cannot collide
	_ = u.index(e.Aid, idx, e.Attributes[idx].Name).Insert(v, iid)
}

func (u *uniqueIndex) remove(aid int64, idx int, v models.Value, iid int64) {
	if hi, ok := u.indexes[indexKey{aid, idx}]; ok {
		hi.Delete(v, iid)
	}
}
