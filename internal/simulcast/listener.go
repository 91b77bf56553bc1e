// Package simulcast selects, among several SSRCs encoding the same
// scene at different resolutions, the highest-resolution layer that is
// currently live, forwarding it on a single strictly monotone output
// timeline.
package simulcast

import (
	"sort"
	"sync"
	"time"
)

// Frame is the codec-agnostic view a Listener needs of an inbound
// frame: enough to size layers, normalize timestamps, and forward the
// winning payload untouched.
type Frame struct {
	SSRC      uint32
	Width     int
	Timestamp uint32
	Time      time.Time
	Intra     bool
	Payload   interface{}
}

// Callback receives a forwarded frame, with Timestamp already
// normalized to the listener's common timeline.
type Callback func(ssrc uint32, frame Frame)

const (
	// defaultQueueFactor bounds the queue at this many frames per
	// layer before a flush is forced regardless of readiness.
	defaultQueueFactor = 5

	// defaultSilenceTimeout is how many expected frame intervals may
	// elapse on a layer before it's considered silent.
	defaultSilenceTimeout = 4

	// timestampTolerance is the maximum normalized-timestamp delta, in
	// RTP ticks, for two frames to be considered arrivals "at the same
	// time".
	timestampTolerance = 1

	// videoClockRate is the RTP clock rate video frames are timestamped
	// against. The common timeline this listener builds (queue
	// timestamps, timestampLayers) is kept in these ticks throughout;
	// only wall-clock comparisons (entryTime) convert out of them.
	videoClockRate = 90000
)

type queuedFrame struct {
	ssrc      uint32
	timestamp int64 // normalized
	frame     Frame
}

type tsEntry struct {
	timestamp int64
	ssrcs     map[uint32]bool
}

// Listener implements the selection policy described in the package doc.
type Listener struct {
	mu sync.Mutex

	numLayers    int
	maxQueueSize int

	listeners []Callback

	initialised     bool
	referenceTime   time.Time
	selectedSSRC    uint32
	hasSelected     bool
	lastForwardedTS int64
	hasForwarded    bool

	initialTimestamps map[uint32]int64
	layerDimensions   map[uint32]int
	lastSeen          map[uint32]time.Time
	avgInterval       map[uint32]float64
	sampleCount       map[uint32]int

	queue           []queuedFrame
	timestampLayers []tsEntry
}

// NewListener creates a Listener expecting up to numLayers distinct
// SSRCs.
func NewListener(numLayers int) *Listener {
	return &Listener{
		numLayers:         numLayers,
		maxQueueSize:      numLayers * defaultQueueFactor,
		initialTimestamps: make(map[uint32]int64),
		layerDimensions:   make(map[uint32]int),
		lastSeen:          make(map[uint32]time.Time),
		avgInterval:       make(map[uint32]float64),
		sampleCount:       make(map[uint32]int),
	}
}

// SetNumLayers updates the expected layer count (and the queue bound
// derived from it).
func (l *Listener) SetNumLayers(numLayers int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.numLayers = numLayers
	l.maxQueueSize = numLayers * defaultQueueFactor
}

// AddListener registers cb to receive forwarded frames.
func (l *Listener) AddListener(cb Callback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, cb)
}

// OnFrame records an arriving frame on ssrc and flushes any frames the
// selection policy is now ready to emit.
func (l *Listener) OnFrame(ssrc uint32, frame Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if frame.Width > l.layerDimensions[ssrc] {
		l.layerDimensions[ssrc] = frame.Width
	}

	if last, ok := l.lastSeen[ssrc]; ok {
		gap := msSince(last, frame.Time)
		n := l.sampleCount[ssrc]
		l.avgInterval[ssrc] = (l.avgInterval[ssrc]*float64(n) + gap) / float64(n+1)
		l.sampleCount[ssrc] = n + 1
	}
	l.lastSeen[ssrc] = frame.Time

	if !l.initialised {
		l.referenceTime = frame.Time
		l.initialised = true
	}

	if _, ok := l.initialTimestamps[ssrc]; !ok {
		offsetTicks := msToTicks(msSince(l.referenceTime, frame.Time))
		l.initialTimestamps[ssrc] = int64(frame.Timestamp) - offsetTicks
	}
	normalizedTS := int64(frame.Timestamp) - l.initialTimestamps[ssrc]
	frame.Timestamp = uint32(normalizedTS)

	l.insertTimestampLayer(normalizedTS, ssrc)
	l.queue = append(l.queue, queuedFrame{ssrc: ssrc, timestamp: normalizedTS, frame: frame})

	if len(l.queue) > l.maxQueueSize || l.oldestIsStale() {
		l.flush()
	}
}

func msSince(from, to time.Time) float64 {
	return to.Sub(from).Seconds() * 1000
}

// msToTicks converts a millisecond duration to RTP ticks at videoClockRate.
func msToTicks(ms float64) int64 {
	return int64(ms * videoClockRate / 1000)
}

// ticksToDuration converts a count of RTP ticks at videoClockRate to a
// wall-clock time.Duration.
func ticksToDuration(ticks int64) time.Duration {
	return time.Duration(ticks) * time.Second / videoClockRate
}

func (l *Listener) insertTimestampLayer(ts int64, ssrc uint32) {
	for i := range l.timestampLayers {
		if abs64(l.timestampLayers[i].timestamp-ts) <= timestampTolerance {
			l.timestampLayers[i].ssrcs[ssrc] = true
			return
		}
	}
	idx := sort.Search(len(l.timestampLayers), func(i int) bool {
		return l.timestampLayers[i].timestamp >= ts
	})
	entry := tsEntry{timestamp: ts, ssrcs: map[uint32]bool{ssrc: true}}
	l.timestampLayers = append(l.timestampLayers, tsEntry{})
	copy(l.timestampLayers[idx+1:], l.timestampLayers[idx:])
	l.timestampLayers[idx] = entry
}

// oldestIsStale reports whether the oldest queued frame is old enough,
// relative to the selected layer's observed cadence, that holding the
// queue open any longer for a better decision is pointless.
func (l *Listener) oldestIsStale() bool {
	if len(l.queue) == 0 || !l.hasSelected {
		return false
	}
	interval := l.avgInterval[l.selectedSSRC]
	if interval <= 0 {
		return false
	}
	last, ok := l.lastSeen[l.selectedSSRC]
	if !ok {
		return false
	}
	return msSince(last, l.queue[0].frame.Time) > interval*defaultSilenceTimeout
}

// topLayer returns the SSRC with the largest recorded width.
func (l *Listener) topLayer() (uint32, bool) {
	var best uint32
	bestWidth := -1
	found := false
	for ssrc, w := range l.layerDimensions {
		if w > bestWidth {
			bestWidth = w
			best = ssrc
			found = true
		}
	}
	return best, found
}

// healthy reports whether ssrc has contributed recently enough,
// relative to its own observed cadence, to still be considered live as
// of asOf.
func (l *Listener) healthy(ssrc uint32, asOf time.Time) bool {
	if l.sampleCount[ssrc] < 2 {
		return true
	}
	last, ok := l.lastSeen[ssrc]
	if !ok {
		return false
	}
	return msSince(last, asOf) < l.avgInterval[ssrc]*defaultSilenceTimeout
}

// flush walks timestampLayers from oldest, forwarding the selected
// ssrc's frame for every entry and dropping the rest at that timestamp.
func (l *Listener) flush() {
	top, ok := l.topLayer()
	if !ok {
		return
	}

	for _, entry := range l.timestampLayers {
		target := l.pickTarget(entry, top)

		if !l.hasForwarded || entry.timestamp > l.lastForwardedTS {
			if frame, found := l.takeFrame(entry.timestamp, target); found {
				l.emit(target, frame)
				l.selectedSSRC = target
				l.hasSelected = true
				l.lastForwardedTS = entry.timestamp
				l.hasForwarded = true
			}
		}
		l.dropTimestamp(entry.timestamp)
	}

	l.timestampLayers = l.timestampLayers[:0]
}

// pickTarget decides which ssrc to forward for entry, given the
// highest known layer top.
func (l *Listener) pickTarget(entry tsEntry, top uint32) uint32 {
	asOf := l.entryTime(entry)

	if entry.ssrcs[top] && l.healthy(top, asOf) {
		if !l.hasSelected || l.selectedSSRC == top || l.frameIsIntraAt(entry.timestamp, top) {
			return top
		}
	}
	if l.hasSelected {
		if entry.ssrcs[l.selectedSSRC] && l.healthy(l.selectedSSRC, asOf) {
			return l.selectedSSRC
		}
		// Currently selected layer has no frame here or is silent:
		// switch down to the highest-resolution present layer that has
		// an intra frame here.
		var candidates []uint32
		for ssrc := range entry.ssrcs {
			candidates = append(candidates, ssrc)
		}
		sort.Slice(candidates, func(i, j int) bool {
			return l.layerDimensions[candidates[i]] > l.layerDimensions[candidates[j]]
		})
		for _, ssrc := range candidates {
			if l.frameIsIntraAt(entry.timestamp, ssrc) {
				return ssrc
			}
		}
		// No intra frame to switch to: stay on the selected layer, so
		// nothing is forwarded here if it has no frame at this timestamp.
		return l.selectedSSRC
	}
	for ssrc := range entry.ssrcs {
		return ssrc
	}
	return 0
}

func (l *Listener) entryTime(entry tsEntry) time.Time {
	return l.referenceTime.Add(ticksToDuration(entry.timestamp))
}

func (l *Listener) frameIsIntraAt(ts int64, ssrc uint32) bool {
	for _, q := range l.queue {
		if q.ssrc == ssrc && q.timestamp == ts {
			return q.frame.Intra
		}
	}
	return false
}

func (l *Listener) takeFrame(ts int64, ssrc uint32) (Frame, bool) {
	for _, q := range l.queue {
		if q.ssrc == ssrc && q.timestamp == ts {
			return q.frame, true
		}
	}
	return Frame{}, false
}

func (l *Listener) dropTimestamp(ts int64) {
	kept := l.queue[:0]
	for _, q := range l.queue {
		if q.timestamp != ts {
			kept = append(kept, q)
		}
	}
	l.queue = kept
}

func (l *Listener) emit(ssrc uint32, frame Frame) {
	for _, cb := range l.listeners {
		cb(ssrc, frame)
	}
}

// Stop drains the queue without forwarding and detaches all listeners.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = nil
	l.timestampLayers = nil
	l.listeners = nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
