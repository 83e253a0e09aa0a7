package hashindex

import (
	"bytes"

	"odscore/src/models"
)

/*

An in-memory linear hash index over one attribute of one element. Buckets
split one at a time once the average bucket length passes MaxFillFactor,
so growth never rehashes the whole table. Invalid values are not indexed.

*/

// HashIndex maps attribute values to the instances holding them
type HashIndex struct {
	field     IndexField
	buckets   [][]HashIndexItem
	maxBucket uint32 // Maximum bucket number in use
	highMask  uint32 // Mask to identify which bucket to use
	lowMask   uint32 // Mask for buckets not yet split
	numTuples uint64
}

// NewHashIndex creates an empty index for field
func NewHashIndex(field IndexField) *HashIndex {
	return &HashIndex{
		field:     field,
		buckets:   make([][]HashIndexItem, InitialBucketCount),
		maxBucket: InitialBucketCount - 1,
		highMask:  2*InitialBucketCount - 1,
		lowMask:   InitialBucketCount - 1,
	}
}

// Field returns the indexed field description
func (hi *HashIndex) Field() IndexField {
	return hi.field
}

// Len returns the number of indexed entries
func (hi *HashIndex) Len() int {
	return int(hi.numTuples)
}

// Insert adds an entry for iid. A unique index rejects a value already
// held by another instance.
func (hi *HashIndex) Insert(v models.Value, iid int64) error {
	if !v.IsValid() {
		return nil
	}
	key := encodeValue(v, hi.field)
	hash := hashKey(key)
	bucket := hi.computeBucket(hash)

	for _, item := range hi.buckets[bucket] {
		if item.HashValue != hash || !bytes.Equal(item.Key, key) {
			continue
		}
		if item.Iid == iid {
			return nil
		}
		if hi.field.IsUnique {
			return models.ConstraintViolationf("value %s of %s is already used by instance %d", v, hi.field.FieldName, item.Iid)
		}
	}

	hi.buckets[bucket] = append(hi.buckets[bucket], HashIndexItem{HashValue: hash, Key: key, Iid: iid})
	hi.numTuples++
	if hi.numTuples > uint64(hi.maxBucket+1)*MaxFillFactor {
		hi.split()
	}
	return nil
}

// Delete removes the entry of iid for v, if present
func (hi *HashIndex) Delete(v models.Value, iid int64) {
	if !v.IsValid() {
		return
	}
	key := encodeValue(v, hi.field)
	hash := hashKey(key)
	bucket := hi.computeBucket(hash)

	items := hi.buckets[bucket]
	for i, item := range items {
		if item.Iid == iid && item.HashValue == hash && bytes.Equal(item.Key, key) {
			hi.buckets[bucket] = append(items[:i], items[i+1:]...)
			hi.numTuples--
			return
		}
	}
}

// Lookup returns the instances holding v
func (hi *HashIndex) Lookup(v models.Value) []int64 {
	if !v.IsValid() {
		return nil
	}
	key := encodeValue(v, hi.field)
	hash := hashKey(key)

	var iids []int64
	for _, item := range hi.buckets[hi.computeBucket(hash)] {
		if item.HashValue == hash && bytes.Equal(item.Key, key) {
			iids = append(iids, item.Iid)
		}
	}
	return iids
}

// split adds one bucket and moves the entries that now hash to it
func (hi *HashIndex) split() {
	newBucket := hi.maxBucket + 1
	oldBucket := newBucket & hi.lowMask

	hi.maxBucket = newBucket
	if newBucket > hi.highMask {
		hi.lowMask = hi.highMask
		hi.highMask = newBucket | hi.lowMask
	}
	hi.buckets = append(hi.buckets, nil)

	old := hi.buckets[oldBucket]
	hi.buckets[oldBucket] = nil
	for _, item := range old {
		b := hi.computeBucket(item.HashValue)
		hi.buckets[b] = append(hi.buckets[b], item)
	}
}
