// Package delay computes a per-frame playout delay that keeps a
// stream's reference clock tracking the lowest latency its jitter
// budget allows, without ever asking a player for negative delay.
package delay

import "sync"

// Calculator recovers a reference (wall-clock, RTP timestamp) pair
// for a stream and uses it to derive a target playout delay for each
// arriving frame. A single Calculator is meant to be shared across the
// SSRCs of one session (audio and video together), so that both
// tracks settle on the same reference.
type Calculator struct {
	mu sync.Mutex

	minDelayMs             int64
	latencyReductionStepMs int64

	initialized  bool
	refTime      int64 // wall-clock ms, caller's clock
	refTimestamp uint32
	refClockRate uint32
}

// NewCalculator creates a Calculator with the given minimum-latency
// floor (negative is allowed, to request playout ahead of the
// reference) and the largest amount the reference clock may shift per
// frame.
func NewCalculator(minDelayMs, latencyReductionStepMs int64) *Calculator {
	return &Calculator{
		minDelayMs:             minDelayMs,
		latencyReductionStepMs: latencyReductionStepMs,
	}
}

// OnFrame records a frame arrival and returns the playout delay, in
// milliseconds, that should be applied to it.
//
// nowMs is the caller's wall clock in milliseconds; rtpTs and
// clockRate describe the frame's position on the stream's own
// timeline. The first call seeds the reference and returns minDelayMs,
// or 0 when minDelayMs is negative.
func (c *Calculator) OnFrame(ssrc uint32, nowMs int64, rtpTs uint32, clockRate uint32) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if clockRate == 0 {
		clockRate = 90000
	}

	if !c.initialized {
		c.refTime = nowMs
		c.refTimestamp = rtpTs
		c.refClockRate = clockRate
		c.initialized = true
	}

	tsMs := tsDeltaMs(rtpTs, c.refTimestamp, c.refClockRate)
	expectedArrival := c.refTime + tsMs

	delay := expectedArrival - nowMs + c.minDelayMs
	if delay < 0 {
		delay = 0
	}

	// Arrived earlier than the reference predicted: the jitter budget
	// has room to spare, so pull the reference forward and lower
	// future latency. Arrived later: push it back to avoid chronically
	// late playout. Either way the shift is capped at one step.
	early := nowMs - expectedArrival
	switch {
	case early > c.latencyReductionStepMs:
		c.refTime += c.latencyReductionStepMs
	case early < -c.latencyReductionStepMs:
		c.refTime -= c.latencyReductionStepMs
	}

	if delay == 0 && nowMs < c.refTime {
		// The shift above would leave the reference ahead of the
		// frame that's supposed to define it. Resynchronize directly
		// to this frame instead of drifting further.
		c.refTimestamp = rtpTs
		c.refClockRate = clockRate
		c.refTime = nowMs - c.minDelayMs
	}

	return delay
}

// tsDeltaMs converts the signed distance from refTimestamp to rtpTs,
// in clockRate units, into milliseconds. The subtraction is done in
// the RTP timestamp's native 32-bit wraparound arithmetic before
// widening, so a timestamp that has wrapped around still yields the
// correct small delta.
func tsDeltaMs(rtpTs, refTimestamp, clockRate uint32) int64 {
	delta := int64(int32(rtpTs - refTimestamp))
	return delta * 1000 / int64(clockRate)
}
