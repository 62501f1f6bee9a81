package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConstantRetryDelay(t *testing.T) {
	gen := NewConstantRetryDelay(5 * time.Second)

	for _, readCount := range []int{1, 2, 10, 100} {
		assert.Equal(t, 5*time.Second, gen.NextDelay(readCount))
	}
}

func TestExponentialRetryDelay(t *testing.T) {
	t.Run("grows geometrically with read count", func(t *testing.T) {
		gen := NewExponentialRetryDelay(2*time.Second, 2, 10*time.Minute)

		tests := []struct {
			readCount int
			expected  time.Duration
		}{
			{1, 2 * time.Second},
			{2, 4 * time.Second},
			{3, 8 * time.Second},
			{4, 16 * time.Second},
		}

		for _, tt := range tests {
			assert.Equal(t, tt.expected, gen.NextDelay(tt.readCount))
		}
	})

	t.Run("caps the delay", func(t *testing.T) {
		gen := NewExponentialRetryDelay(time.Second, 2, 30*time.Second)

		assert.Equal(t, 30*time.Second, gen.NextDelay(6))
		assert.Equal(t, 30*time.Second, gen.NextDelay(50))
	})

	t.Run("treats read counts below one as first delivery", func(t *testing.T) {
		gen := NewExponentialRetryDelay(3*time.Second, 2, time.Minute)

		assert.Equal(t, 3*time.Second, gen.NextDelay(0))
		assert.Equal(t, 3*time.Second, gen.NextDelay(-5))
	})
}

func TestClampReturnDelay(t *testing.T) {
	assert.Equal(t, time.Duration(0), clampReturnDelay(-time.Second))
	assert.Equal(t, 10*time.Second, clampReturnDelay(10*time.Second))
	assert.Equal(t, maxReturnDelay, clampReturnDelay(time.Hour))
}
