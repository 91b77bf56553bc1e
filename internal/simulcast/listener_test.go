package simulcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lowSSRC  = 1
	midSSRC  = 2
	highSSRC = 3
)

type forwarded struct {
	ssrc uint32
	ts   uint32
}

func newRecordingListener(numLayers int) (*Listener, *[]forwarded) {
	l := NewListener(numLayers)
	var got []forwarded
	l.AddListener(func(ssrc uint32, f Frame) {
		got = append(got, forwarded{ssrc: ssrc, ts: f.Timestamp})
	})
	return l, &got
}

func TestListenerPrefersHighestLayer(t *testing.T) {
	l, got := newRecordingListener(3)
	base := time.Now()

	for i := 0; i < 20; i++ {
		at := base.Add(time.Duration(i) * 33 * time.Millisecond)
		ts := uint32(i * 3000)
		l.OnFrame(lowSSRC, Frame{SSRC: lowSSRC, Width: 480, Timestamp: ts, Time: at, Intra: i == 0})
		l.OnFrame(midSSRC, Frame{SSRC: midSSRC, Width: 960, Timestamp: ts, Time: at, Intra: i == 0})
		l.OnFrame(highSSRC, Frame{SSRC: highSSRC, Width: 1920, Timestamp: ts, Time: at, Intra: i == 0})
	}

	require.NotEmpty(t, *got)
	for _, f := range *got {
		assert.Equal(t, uint32(highSSRC), f.ssrc)
	}
}

func TestListenerOutputIsMonotone(t *testing.T) {
	l, got := newRecordingListener(2)
	base := time.Now()

	for i := 0; i < 10; i++ {
		at := base.Add(time.Duration(i) * 33 * time.Millisecond)
		ts := uint32(i * 3000)
		l.OnFrame(lowSSRC, Frame{SSRC: lowSSRC, Width: 480, Timestamp: ts, Time: at, Intra: i == 0})
		l.OnFrame(highSSRC, Frame{SSRC: highSSRC, Width: 1920, Timestamp: ts, Time: at, Intra: i == 0})
	}

	var last int64 = -1
	for _, f := range *got {
		assert.Greater(t, int64(f.ts), last)
		last = int64(f.ts)
	}
}

func TestListenerSwitchesDownAfterSilence(t *testing.T) {
	l, got := newRecordingListener(2)
	base := time.Now()

	at := func(i int) time.Time { return base.Add(time.Duration(i) * 33 * time.Millisecond) }

	// Both layers active, high selected.
	for i := 0; i < 6; i++ {
		ts := uint32(i * 3000)
		l.OnFrame(lowSSRC, Frame{SSRC: lowSSRC, Width: 480, Timestamp: ts, Time: at(i), Intra: i == 0})
		l.OnFrame(highSSRC, Frame{SSRC: highSSRC, Width: 1920, Timestamp: ts, Time: at(i), Intra: i == 0})
	}
	require.NotEmpty(t, *got)
	for _, f := range *got {
		assert.Equal(t, uint32(highSSRC), f.ssrc)
	}

	// High layer goes silent; low keeps sending intra-refreshed frames.
	for i := 6; i < 30; i++ {
		ts := uint32(i * 3000)
		l.OnFrame(lowSSRC, Frame{SSRC: lowSSRC, Width: 480, Timestamp: ts, Time: at(i), Intra: i == 6})
	}

	sawLow := false
	for _, f := range *got {
		if f.ssrc == lowSSRC {
			sawLow = true
		}
	}
	assert.True(t, sawLow, "expected a switch down to the low layer once the high layer went silent")
}

func TestListenerStopDrainsWithoutForwarding(t *testing.T) {
	l, got := newRecordingListener(1)
	base := time.Now()

	l.OnFrame(lowSSRC, Frame{SSRC: lowSSRC, Width: 480, Timestamp: 0, Time: base, Intra: true})
	l.OnFrame(lowSSRC, Frame{SSRC: lowSSRC, Width: 480, Timestamp: 3000, Time: base.Add(33 * time.Millisecond)})

	before := len(*got)
	l.Stop()
	assert.Equal(t, before, len(*got))

	// Further frames after Stop must not be forwarded either, since
	// listeners were detached.
	l.OnFrame(lowSSRC, Frame{SSRC: lowSSRC, Width: 480, Timestamp: 6000, Time: base.Add(66 * time.Millisecond)})
	assert.Equal(t, before, len(*got))
}
