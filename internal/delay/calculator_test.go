package delay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculatorNeverReturnsNegativeDelay(t *testing.T) {
	c := NewCalculator(-200, 20)

	now := int64(0)
	ts := uint32(0)
	for i := 0; i < 50; i++ {
		delay := c.OnFrame(2, now, ts, 90000)
		assert.GreaterOrEqual(t, delay, int64(0))
		now += 33
		ts += 2970
	}
}

func TestCalculatorFirstFrameUsesMinDelay(t *testing.T) {
	c := NewCalculator(50, 20)
	delay := c.OnFrame(2, 1000, 90000, 90000)
	assert.Equal(t, int64(50), delay)
}

func TestCalculatorDriftIsBoundedPerFrame(t *testing.T) {
	c := NewCalculator(0, 20)

	now := int64(0)
	ts := uint32(0)
	last := c.OnFrame(2, now, ts, 90000)
	for i := 0; i < 100; i++ {
		now += 33
		ts += 2970
		delay := c.OnFrame(2, now, ts, 90000)
		diff := delay - last
		if diff < 0 {
			diff = -diff
		}
		assert.LessOrEqual(t, diff, int64(20))
		last = delay
	}
}

func TestCalculatorReducesLatencyWhenArrivalsRunEarly(t *testing.T) {
	c := NewCalculator(0, 10)

	// Seed the reference with a generous expected spacing, then feed
	// frames that consistently arrive sooner than that, simulating a
	// network path with slack in its jitter budget.
	delay0 := c.OnFrame(2, 0, 0, 90000)
	now := int64(20)
	ts := uint32(90000) // 1000ms worth of ticks, but only 20ms of wall clock elapsed
	delayN := c.OnFrame(2, now, ts, 90000)

	// A second frame with the same 980ms lead over the reference: the
	// reference has moved back one 10ms step, so the delay drops by it.
	delay2 := c.OnFrame(2, 1020, 180000, 90000)

	assert.GreaterOrEqual(t, delay0, int64(0))
	assert.GreaterOrEqual(t, delayN, int64(0))
	assert.Equal(t, delayN-10, delay2)
}

func TestCalculatorHandlesTimestampWraparound(t *testing.T) {
	c := NewCalculator(0, 20)

	c.OnFrame(2, 0, 0xfffffff0, 90000)
	delay := c.OnFrame(2, 33, 0x00000010, 90000)
	assert.GreaterOrEqual(t, delay, int64(0))
}
