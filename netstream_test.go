package rtmpstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	frames []Frame
}

func (l *recordingListener) OnFrame(f Frame) {
	l.frames = append(l.frames, f)
}

func TestNetStreamDispatchVideoCachesSequenceHeader(t *testing.T) {
	ns := newNetStream(1, "live", "stream1", nil)
	seqHeader := []byte{0x17, 0x00, 0x00, 0x00, 0x00, 0xaa, 0xbb}
	ns.dispatchVideo(seqHeader, 0)

	ns.mu.Lock()
	cached := ns.avcHeader
	ns.mu.Unlock()
	assert.Equal(t, seqHeader, cached)
}

func TestNetStreamSubscribeReplaysSequenceHeader(t *testing.T) {
	ns := newNetStream(1, "live", "stream1", nil)
	ns.dispatchVideo([]byte{0x17, 0x00, 0x00, 0x00, 0x00, 0xaa}, 0)

	l := &recordingListener{}
	ns.Subscribe(l)

	require.Len(t, l.frames, 1)
	assert.True(t, l.frames[0].Video)
}

func TestNetStreamBroadcastsSubsequentFrames(t *testing.T) {
	ns := newNetStream(1, "live", "stream1", nil)
	l := &recordingListener{}
	ns.Subscribe(l)

	ns.dispatchVideo([]byte{0x27, 0x01, 0x00, 0x00, 0x00, 0xaa}, 100)
	require.Len(t, l.frames, 1)
	assert.Equal(t, uint32(100), l.frames[0].Timestamp)
}

func TestNetStreamUnsubscribeStopsDelivery(t *testing.T) {
	ns := newNetStream(1, "live", "stream1", nil)
	l := &recordingListener{}
	ns.Subscribe(l)
	ns.Unsubscribe(l)

	ns.dispatchVideo([]byte{0x27, 0x01, 0x00, 0x00, 0x00, 0xaa}, 100)
	assert.Empty(t, l.frames)
}

func TestNetStreamStateTransitions(t *testing.T) {
	ns := newNetStream(1, "live", "stream1", nil)
	assert.Equal(t, StreamCreated, ns.State())

	ns.publish()
	assert.Equal(t, StreamPublishing, ns.State())

	ns.destroy()
	assert.Equal(t, StreamDestroyed, ns.State())
}

func TestNetStreamTapReceivesRawBytes(t *testing.T) {
	ns := newNetStream(1, "live", "stream1", nil)
	ch := ns.Tap(4)

	body := []byte{0x27, 0x01, 0x00, 0x00, 0x00, 0xaa}
	ns.dispatchVideo(body, 0)

	select {
	case got := <-ch:
		assert.Equal(t, body, got)
	case <-time.After(time.Second):
		t.Fatal("tap never received bytes")
	}
}
