package validator

import "github.com/example/replica_sim/core"

// Jaccard returns 1 - |A∩B|/|A∪B| over the version ids of two logs.
// Duplicates collapse; two empty logs are identical.
func Jaccard(a, b []core.VersionID) float64 {
	set := make(map[core.VersionID]uint8, len(a)+len(b))
	for _, id := range a {
		set[id] |= 1
	}
	for _, id := range b {
		set[id] |= 2
	}
	if len(set) == 0 {
		return 0
	}
	both := 0
	for _, mask := range set {
		if mask == 3 {
			both++
		}
	}
	return 1 - float64(both)/float64(len(set))
}

// Levenshtein returns the edit distance between two logs divided by the
// length of the longer one.
func Levenshtein(a, b []core.VersionID) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	return float64(editDistance(a, b)) / float64(longest)
}

func editDistance(a, b []core.VersionID) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
