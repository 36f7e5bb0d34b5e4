package roles

import (
	"sort"
	"strconv"
)

// KeyLess orders registry keys the way the realtime database orders children by key: keys
// that parse as 32-bit integers come first in numeric order, then all other keys in
// lexicographic order. Equal integers ("7", "007") fall back to length.
func KeyLess(a, b string) bool {
	ai, aInt := intKey(a)
	bi, bInt := intKey(b)
	switch {
	case aInt && bInt:
		if ai != bi {
			return ai < bi
		}
		return len(a) < len(b)
	case aInt:
		return true
	case bInt:
		return false
	}
	return a < b
}

// SortKeys sorts keys in place with KeyLess.
func SortKeys(keys []string) {
	sort.Slice(keys, func(i, j int) bool { return KeyLess(keys[i], keys[j]) })
}

func intKey(s string) (int64, bool) {
	digits := s
	if len(digits) > 0 && digits[0] == '-' {
		digits = digits[1:]
	}
	if len(digits) == 0 || len(digits) > 10 {
		return 0, false
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return n, true
}
