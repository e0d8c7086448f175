package schedule

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpaced(t *testing.T) {
	s := Spaced[error](50 * time.Millisecond)
	for attempt := 0; attempt < 5; attempt++ {
		d := s.Step(attempt, nil)
		assert.Equal(t, 50*time.Millisecond, d.Delay)
		assert.True(t, d.Continue)
	}
}

func TestExponential(t *testing.T) {
	s := Exponential[error](10*time.Millisecond, 2)
	assert.Equal(t, 10*time.Millisecond, s.Step(0, nil).Delay)
	assert.Equal(t, 20*time.Millisecond, s.Step(1, nil).Delay)
	assert.Equal(t, 40*time.Millisecond, s.Step(2, nil).Delay)
}

func TestCappedExponential(t *testing.T) {
	s := CappedExponential[error](10*time.Millisecond, 2, 35*time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, s.Step(0, nil).Delay)
	assert.Equal(t, 20*time.Millisecond, s.Step(1, nil).Delay)
	assert.Equal(t, 35*time.Millisecond, s.Step(2, nil).Delay, "expected cap at pre-jitter delay")
}

func TestFibonacci(t *testing.T) {
	s := Fibonacci[error](10 * time.Millisecond)
	want := []time.Duration{10, 10, 20, 30, 50, 80}
	for i, w := range want {
		assert.Equal(t, w*time.Millisecond, s.Step(i, nil).Delay)
	}
}

func TestRecurs(t *testing.T) {
	s := Recurs[error](3)
	assert.True(t, s.Step(0, nil).Continue)
	assert.True(t, s.Step(1, nil).Continue)
	assert.False(t, s.Step(2, nil).Continue, "attempt index 2 is the 3rd attempt, so no more retries")
}

func TestDoUntil(t *testing.T) {
	s := DoUntil[int](func(v int) bool { return v >= 3 })
	assert.True(t, s.Step(0, 1).Continue)
	assert.True(t, s.Step(1, 2).Continue)
	assert.False(t, s.Step(2, 3).Continue)
}

func TestJittered_NeverAccumulates(t *testing.T) {
	inner := Spaced[error](100 * time.Millisecond)
	rng := rand.New(rand.NewSource(1))
	s := Jittered(inner, 0.1, rng)

	for attempt := 0; attempt < 10; attempt++ {
		d := s.Step(attempt, nil)
		assert.GreaterOrEqual(t, d.Delay, 89*time.Millisecond)
		assert.LessOrEqual(t, d.Delay, 111*time.Millisecond)
	}
}

func TestAnd(t *testing.T) {
	a := Spaced[error](10 * time.Millisecond)
	b := Recurs[error](2)
	combined := And(a, b)

	d0 := combined.Step(0, nil)
	assert.Equal(t, 10*time.Millisecond, d0.Delay)
	assert.True(t, d0.Continue)

	d1 := combined.Step(1, nil)
	assert.False(t, d1.Continue, "Recurs(2) stops continuing after attempt index 1")
}
