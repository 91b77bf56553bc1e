package h265

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNALUFields(t *testing.T) {
	// type=19 (IDR_W_RADL), layer_id=5, tid=2.
	n := NALU{byte(19<<1)&0x7e | (5 >> 5 & 0x1), (5<<3)&0xf8 | 2}
	assert.Equal(t, byte(19), n.Type())
	assert.Equal(t, byte(5), n.LayerID())
	assert.Equal(t, byte(2), n.TID())
}

func TestIsParameterOrKeyframe(t *testing.T) {
	assert.True(t, IsParameterOrKeyframe(NALUTypeIDRWRADL))
	assert.True(t, IsParameterOrKeyframe(NALUTypeIDRNLP))
	assert.True(t, IsParameterOrKeyframe(NALUTypeSPS))
	assert.True(t, IsParameterOrKeyframe(NALUTypePPS))
	assert.False(t, IsParameterOrKeyframe(1))
	assert.False(t, IsParameterOrKeyframe(NALUTypeVPS))
}

func TestNalSliceAnnexB(t *testing.T) {
	var nals [][]byte
	data := []byte{0, 0, 0, 1, 0x42, 0x01, 0xaa, 0, 0, 1, 0x26, 0x01, 0xbb}
	NalSliceAnnexB(data, func(nal []byte) {
		nals = append(nals, append([]byte(nil), nal...))
	})
	assert := assert.New(t)
	assert.Len(nals, 2)
	assert.Equal([]byte{0x42, 0x01, 0xaa}, nals[0])
	assert.Equal([]byte{0x26, 0x01, 0xbb}, nals[1])
}
