package goid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	id := Get()
	require.Greater(t, id, int64(0))

	// Stable within the same goroutine.
	assert.Equal(t, id, Get())

	// Different in a spawned goroutine.
	ch := make(chan int64, 1)
	go func() { ch <- Get() }()
	other := <-ch
	assert.Greater(t, other, int64(0))
	assert.NotEqual(t, id, other)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
	}{
		{"typical header", "goroutine 123 [running]:\nmain.main()", 123},
		{"single digit", "goroutine 7 [chan receive]:", 7},
		{"no digits", "goroutine  [running]:", 0},
		{"wrong prefix", "gorauntine 12 [running]:", 0},
		{"truncated", "gorout", 0},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parse([]byte(tt.in)))
		})
	}
}
