// Package tree holds the in-memory story tree: an arena of nodes indexed by
// id, built from a closure-table snapshot, plus the pure filter, view and
// integrity functions that run over it.
package tree

import (
	"sort"
	"strconv"
	"strings"
)

// RootID is the id of the single designated root node.
const RootID = "root"

// sortKey groups ids: root first, then all-numeric dotted ids, then the rest.
type sortKey struct {
	class int
	nums  []int
	raw   string
}

func keyOf(id string) sortKey {
	if id == RootID {
		return sortKey{class: 0}
	}
	parts := strings.Split(id, ".")
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return sortKey{class: 2, raw: id}
		}
		nums[i] = n
	}
	return sortKey{class: 1, nums: nums}
}

// CompareIDs orders ids lineage-first: "root" before everything, numeric
// dotted ids by segment value ("2" < "10" < "10.1"), then non-numeric ids
// lexicographically. It returns -1, 0 or +1.
func CompareIDs(a, b string) int {
	ka, kb := keyOf(a), keyOf(b)
	if ka.class != kb.class {
		return cmpInt(ka.class, kb.class)
	}
	switch ka.class {
	case 1:
		for i := 0; i < len(ka.nums) && i < len(kb.nums); i++ {
			if c := cmpInt(ka.nums[i], kb.nums[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(ka.nums), len(kb.nums))
	case 2:
		return strings.Compare(ka.raw, kb.raw)
	}
	return 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// SortIDs sorts ids in place with CompareIDs.
func SortIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool { return CompareIDs(ids[i], ids[j]) < 0 })
}

// SegmentCount returns the number of dot segments in id, 0 for the root.
// It is a display hint; structure comes from the closure table.
func SegmentCount(id string) int {
	if id == RootID || id == "" {
		return 0
	}
	return strings.Count(id, ".") + 1
}

// NextChildID proposes the id for a new child of parent given the ids of its
// existing children: root children are "1", "2", ...; deeper children append
// the next numeric segment to the parent id.
func NextChildID(parent string, siblings []string) string {
	prefix := ""
	if parent != RootID {
		prefix = parent + "."
	}
	next := 1
	for _, s := range siblings {
		if !strings.HasPrefix(s, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(s, prefix))
		if err == nil && n >= next {
			next = n + 1
		}
	}
	return prefix + strconv.Itoa(next)
}
