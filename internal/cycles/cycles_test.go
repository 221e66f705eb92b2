package cycles

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNowMonotonic(t *testing.T) {
	prev := Now()
	for i := 0; i < 1000; i++ {
		cur := Now()
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestSince(t *testing.T) {
	start := Now()
	time.Sleep(2 * time.Millisecond)
	elapsed := Since(start)
	assert.GreaterOrEqual(t, ToDuration(elapsed), 2*time.Millisecond)

	// A reading from the future clamps to zero instead of wrapping.
	assert.Equal(t, Ticks(0), Since(Now()+1<<40))
}

func TestConversion(t *testing.T) {
	assert.Equal(t, int64(1500), ToNanoseconds(Ticks(1500)))
	assert.Equal(t, 1500*time.Nanosecond, ToDuration(Ticks(1500)))
}
