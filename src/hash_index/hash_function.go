package hashindex

import "hash/fnv"

// hashKey computes the hash value of an encoded key
func hashKey(key []byte) uint32 {
	h := fnv.New32a()
	h.Write(key)
	return h.Sum32()
}

// computeBucket determines which bucket a hash value belongs to.
// The bucket count doubles as the index grows; the low mask keeps old
// buckets addressable until they are split.
func (hi *HashIndex) computeBucket(hashValue uint32) uint32 {
	bucket := hashValue & hi.highMask
	if bucket > hi.maxBucket {
		bucket = hashValue & hi.lowMask
	}
	return bucket
}
