package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	b := NewBackoff(0, 0)
	var got []time.Duration
	for i := 0; i < 8; i++ {
		got = append(got, b.Next())
	}
	s := time.Second
	assert.Equal(t, []time.Duration{5 * s, 10 * s, 20 * s, 40 * s, 80 * s, 120 * s, 120 * s, 120 * s}, got)

	// A new Backoff starts over at the floor
	assert.Equal(t, 5*s, NewBackoff(0, 0).Next())
}

func TestBackoff_CeilingBelowFloor(t *testing.T) {
	b := NewBackoff(time.Second, time.Millisecond)
	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, time.Second, b.Next())
}
