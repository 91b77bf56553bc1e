package rtmpstream

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecorderCopiesTappedBytesToWriter(t *testing.T) {
	ns := newNetStream(1, "live", "stream1", nil)
	var out bytes.Buffer

	r := StartRecording(ns, &out, 8)

	body := []byte{0x27, 0x01, 0x00, 0x00, 0x00, 0xaa, 0xbb}
	ns.dispatchVideo(body, 0)

	assert.Eventually(t, func() bool {
		return bytes.Contains(out.Bytes(), body)
	}, time.Second, 5*time.Millisecond)

	r.Stop()
}
