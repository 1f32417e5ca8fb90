// Package piece decides the order in which a downloader fetches chunks.
package piece

import (
	"sort"

	"github.com/Ankesh2004/swarmfs/internal/protocol"
)

// HolderCounts returns, for each chunk index in [0, chunkCount), the number
// of distinct peers holding it. Out-of-range indices in avail are ignored.
func HolderCounts(avail protocol.AvailabilityMap, chunkCount int) []int {
	counts := make([]int, max(chunkCount, 0))
	for _, chunks := range avail {
		seen := make(map[int]struct{}, len(chunks))
		for _, idx := range chunks {
			if idx < 0 || idx >= chunkCount {
				continue
			}
			if _, dup := seen[idx]; dup {
				continue
			}
			seen[idx] = struct{}{}
			counts[idx]++
		}
	}
	return counts
}

// RarestFirst orders every chunk index by holder count ascending, ties by
// index. Chunks nobody holds come first so a download that cannot finish
// fails before spending bandwidth on the rest.
func RarestFirst(avail protocol.AvailabilityMap, chunkCount int) []int {
	counts := HolderCounts(avail, chunkCount)
	order := make([]int, len(counts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return counts[order[a]] < counts[order[b]]
	})
	return order
}
