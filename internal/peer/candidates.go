package peer

import (
	"math/rand"
	"slices"

	"github.com/Ankesh2004/swarmfs/internal/protocol"
)

// Picker chooses one of n remaining candidates, returning an index in [0, n).
type Picker func(n int) int

// RandomPicker spreads load across holders.
func RandomPicker(n int) int {
	return rand.Intn(n)
}

// FirstPicker always takes the first remaining candidate (holders are sorted
// by address), which makes fetch order reproducible.
func FirstPicker(int) int {
	return 0
}

type candidateState uint8

const (
	candidatesRemaining candidateState = iota
	candidateSucceeded
	candidatesExhausted
)

func (s candidateState) String() string {
	switch s {
	case candidatesRemaining:
		return "remaining"
	case candidateSucceeded:
		return "succeeded"
	default:
		return "exhausted"
	}
}

// candidateSet tracks the holders still worth trying for one chunk. Each
// holder is tried at most once.
type candidateSet struct {
	state     candidateState
	remaining []protocol.Endpoint
	tried     int
	pick      Picker
}

func newCandidateSet(holders []protocol.Endpoint, self protocol.Endpoint, pick Picker) *candidateSet {
	if pick == nil {
		pick = RandomPicker
	}
	remaining := make([]protocol.Endpoint, 0, len(holders))
	for _, h := range holders {
		if h != self {
			remaining = append(remaining, h)
		}
	}
	return &candidateSet{remaining: remaining, pick: pick}
}

// next removes and returns one candidate. Once none are left the set moves
// to exhausted.
func (c *candidateSet) next() (protocol.Endpoint, bool) {
	if c.state != candidatesRemaining {
		return protocol.Endpoint{}, false
	}
	if len(c.remaining) == 0 {
		c.state = candidatesExhausted
		return protocol.Endpoint{}, false
	}
	i := c.pick(len(c.remaining))
	if i < 0 || i >= len(c.remaining) {
		i = 0
	}
	ep := c.remaining[i]
	c.remaining = slices.Delete(c.remaining, i, i+1)
	c.tried++
	return ep, true
}

func (c *candidateSet) succeed() {
	c.state = candidateSucceeded
}
