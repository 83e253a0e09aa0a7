package helpers

import "sort"

// PrefixSums returns the running totals of lengths, starting with 0.
// The result has len(lengths)+1 entries; the last is the grand total.
func PrefixSums(lengths []int64) []int64 {
	sums := make([]int64, len(lengths)+1)
	for i, l := range lengths {
		sums[i+1] = sums[i] + l
	}
	return sums
}

// FindSegmentBinarySearch returns the segment i with sums[i] <= index < sums[i+1]
// for prefix sums built by PrefixSums, skipping empty segments. It returns
// false when index lies outside [0, total).
func FindSegmentBinarySearch(sums []int64, index int64) (int, bool) {
	if len(sums) < 2 || index < 0 || index >= sums[len(sums)-1] {
		return 0, false
	}
	// first boundary strictly greater than index closes the segment
	i := sort.Search(len(sums), func(i int) bool { return sums[i] > index })
	return i - 1, true
}
