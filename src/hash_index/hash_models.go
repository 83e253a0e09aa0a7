package hashindex

// Constants for hash index
const (
	// Initial size - start with 4 buckets
	InitialBucketCount = 4

	// MaxFillFactor is the average bucket length that triggers a split
	MaxFillFactor = 4

	CollationBinary          = ""
	CollationCaseInsensitive = "case_insensitive"
)

// IndexField describes the attribute an index covers
type IndexField struct {
	FieldName string // The name of the indexed attribute
	IsUnique  bool   // Whether the index should enforce uniqueness
	Collation string // Optional collation for string comparison
}

// HashIndexItem represents a single entry in the hash index
type HashIndexItem struct {
	HashValue uint32 // Hash of the key
	Key       []byte // Encoded value
	Iid       int64  // Instance this entry points to
}
