package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregatorBaseline(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		completed     int
		observed      int
		expectedTotal int
		want          int
	}{
		{"nothing done", 0, 0, 8, 0},
		{"one of eight rounds up", 1, 1, 8, 13},
		{"half done", 4, 4, 8, 50},
		{"observed exceeds declared total", 9, 12, 8, 75},
		{"zero total never divides by zero", 0, 0, 0, 0},
		{"all done", 8, 8, 8, 100},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			a := NewAggregator()
			assert.Equal(t, tc.want, a.Display(tc.completed, tc.observed, tc.expectedTotal, false))
		})
	}
}

func TestAggregatorOverride(t *testing.T) {
	t.Parallel()

	t.Run("override above baseline wins", func(t *testing.T) {
		t.Parallel()

		a := NewAggregator()
		a.SetOverride(70)
		assert.Equal(t, 70, a.Display(1, 1, 8, false))
	})

	t.Run("override below baseline is ignored", func(t *testing.T) {
		t.Parallel()

		a := NewAggregator()
		a.SetOverride(20)
		assert.Equal(t, 50, a.Display(4, 4, 8, false))
	})

	t.Run("lower late override does not replace a higher one", func(t *testing.T) {
		t.Parallel()

		a := NewAggregator()
		a.SetOverride(60)
		a.SetOverride(25)
		assert.Equal(t, 60, a.Display(0, 0, 8, false))
	})

	t.Run("override above 100 is clamped", func(t *testing.T) {
		t.Parallel()

		a := NewAggregator()
		a.SetOverride(250)
		assert.Equal(t, 100, a.Display(0, 0, 8, false))
	})

	t.Run("negative override is harmless", func(t *testing.T) {
		t.Parallel()

		a := NewAggregator()
		a.SetOverride(-5)
		assert.Equal(t, 0, a.Display(0, 0, 8, false))
	})
}

func TestAggregatorRatchet(t *testing.T) {
	t.Parallel()

	t.Run("display never decreases within a job", func(t *testing.T) {
		t.Parallel()

		a := NewAggregator()
		assert.Equal(t, 50, a.Display(4, 4, 8, false))
		// Fewer completed steps reported later must not rewind.
		assert.Equal(t, 50, a.Display(2, 4, 8, false))
		assert.Equal(t, 63, a.Display(5, 5, 8, false))
	})

	t.Run("done pins the display at 100", func(t *testing.T) {
		t.Parallel()

		a := NewAggregator()
		assert.Equal(t, 100, a.Display(3, 4, 8, true))
		assert.Equal(t, 100, a.Display(3, 4, 8, true))
	})

	t.Run("reset drops the floor for the next job", func(t *testing.T) {
		t.Parallel()

		a := NewAggregator()
		a.SetOverride(90)
		assert.Equal(t, 90, a.Display(0, 0, 8, false))
		a.Reset()
		assert.Equal(t, 13, a.Display(1, 1, 8, false))
	})
}
