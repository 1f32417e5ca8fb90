package peer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ankesh2004/swarmfs/internal/protocol"
)

func ep(port int) protocol.Endpoint {
	return protocol.Endpoint{Host: "127.0.0.1", Port: port}
}

func TestCandidateSetExcludesSelf(t *testing.T) {
	c := newCandidateSet([]protocol.Endpoint{ep(1), ep(2), ep(3)}, ep(2), FirstPicker)

	var got []protocol.Endpoint
	for {
		e, ok := c.next()
		if !ok {
			break
		}
		got = append(got, e)
	}
	assert.Equal(t, []protocol.Endpoint{ep(1), ep(3)}, got)
	assert.Equal(t, candidatesExhausted, c.state)
	assert.Equal(t, 2, c.tried)
}

func TestCandidateSetSucceedStops(t *testing.T) {
	c := newCandidateSet([]protocol.Endpoint{ep(1), ep(2)}, protocol.Endpoint{}, FirstPicker)
	first, ok := c.next()
	assert.True(t, ok)
	assert.Equal(t, ep(1), first)

	c.succeed()
	_, ok = c.next()
	assert.False(t, ok)
	assert.Equal(t, "succeeded", c.state.String())
}

func TestCandidateSetPickerChoosesAndClamps(t *testing.T) {
	last := func(n int) int { return n - 1 }
	c := newCandidateSet([]protocol.Endpoint{ep(1), ep(2), ep(3)}, protocol.Endpoint{}, last)
	e, _ := c.next()
	assert.Equal(t, ep(3), e)

	wild := newCandidateSet([]protocol.Endpoint{ep(1)}, protocol.Endpoint{}, func(int) int { return 42 })
	e, ok := wild.next()
	assert.True(t, ok)
	assert.Equal(t, ep(1), e)
}

func TestCandidateSetEmpty(t *testing.T) {
	c := newCandidateSet(nil, ep(1), nil)
	_, ok := c.next()
	assert.False(t, ok)
	assert.Equal(t, candidatesExhausted, c.state)
}

func TestRandomPickerInRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		n := RandomPicker(3)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 3)
	}
}

func TestPercentRounding(t *testing.T) {
	assert.Equal(t, 33.33, percent(1, 3))
	assert.Equal(t, 66.67, percent(2, 3))
	assert.Equal(t, 100.0, percent(3, 3))
	assert.Equal(t, 100.0, newDownload("empty", 0, 0).Percent())
}
