package h265

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func annexB(nals ...[]byte) []byte {
	var out []byte
	for _, n := range nals {
		out = append(out, 0, 0, 0, 1)
		out = append(out, n...)
	}
	return out
}

func TestPacketizerSingleNAL(t *testing.T) {
	p := NewPacketizer()

	idr := []byte{byte(NALUTypeIDRWRADL<<1) & 0x7e, 0x01, 0xaa, 0xbb, 0xcc}
	frame := p.ProcessAU(annexB(idr))

	assert.True(t, frame.Intra)
	require.Len(t, frame.RTPInfo, 1)
	assert.Nil(t, frame.RTPInfo[0].Prefix)
	assert.Equal(t, len(idr), frame.RTPInfo[0].Size)
}

func TestPacketizerFragmentsLargeNAL(t *testing.T) {
	p := NewPacketizer()

	body := make([]byte, RTPPayloadSize*2+37)
	for i := range body {
		body[i] = byte(i)
	}
	nal := append([]byte{byte(NALUTypeIDRWRADL<<1) & 0x7e, 0x01}, body...)

	frame := p.ProcessAU(annexB(nal))

	require.True(t, len(frame.RTPInfo) > 1)

	total := 0
	for i, info := range frame.RTPInfo {
		require.Len(t, info.Prefix, 3)
		assert.Equal(t, byte(NALUTypeFU), (info.Prefix[0]&0x7e)>>1)

		isStart := info.Prefix[2]&0x80 != 0
		isEnd := info.Prefix[2]&0x40 != 0
		if i == 0 {
			assert.True(t, isStart)
		} else {
			assert.False(t, isStart)
		}
		if i == len(frame.RTPInfo)-1 {
			assert.True(t, isEnd)
		} else {
			assert.False(t, isEnd)
		}
		total += info.Size
		assert.True(t, info.Size <= RTPPayloadSize-fuPrefixSize)
	}
	assert.Equal(t, len(body), total)
}
