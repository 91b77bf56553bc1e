package h265

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepacketizerSingleNAL(t *testing.T) {
	d := NewDepacketizer()

	nal := []byte{byte(NALUTypeIDRWRADL<<1) & 0x7e, 0x01, 0xde, 0xad, 0xbe, 0xef}
	frame, err := d.AddPacket(&Packet{Timestamp: 10, Mark: true, Payload: nal})
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.True(t, frame.Intra)
	require.Len(t, frame.RTPInfo, 1)
}

func TestDepacketizerAP(t *testing.T) {
	d := NewDepacketizer()

	vps := []byte{byte(NALUTypeVPS<<1) & 0x7e, 0x01, 0x01}
	sps := sampleSPSNAL()

	payloadHdr := []byte{byte(NALUTypeAP<<1) & 0x7e, 0x01}
	payload := append([]byte{}, payloadHdr...)
	payload = append(payload, byte(len(vps)>>8), byte(len(vps)))
	payload = append(payload, vps...)
	payload = append(payload, byte(len(sps)>>8), byte(len(sps)))
	payload = append(payload, sps...)

	frame, err := d.AddPacket(&Packet{Timestamp: 20, Mark: true, Payload: payload})
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.True(t, frame.Intra)
	require.Len(t, frame.ParameterSets, 2)
	assert.Equal(t, 1280, frame.Width)
	assert.Equal(t, 720, frame.Height)
}

func TestDepacketizerFU(t *testing.T) {
	d := NewDepacketizer()

	naluType := byte(NALUTypeIDRWRADL)
	body := make([]byte, 250)
	for i := range body {
		body[i] = byte(i)
	}

	payloadHdr := []byte{byte(NALUTypeFU<<1) & 0x7e, 0x01}
	nalHdr := []byte{(naluType<<1)&0x7e | 0, 0x01}

	first := append([]byte{}, payloadHdr...)
	first = append(first, 0x80|naluType)
	first = append(first, body[:80]...)

	mid := append([]byte{}, payloadHdr...)
	mid = append(mid, naluType)
	mid = append(mid, body[80:160]...)

	last := append([]byte{}, payloadHdr...)
	last = append(last, 0x40|naluType)
	last = append(last, body[160:]...)

	frame, err := d.AddPacket(&Packet{Timestamp: 5, Payload: first})
	require.NoError(t, err)
	assert.Nil(t, frame)

	frame, err = d.AddPacket(&Packet{Timestamp: 5, Payload: mid})
	require.NoError(t, err)
	assert.Nil(t, frame)

	frame, err = d.AddPacket(&Packet{Timestamp: 5, Mark: true, Payload: last})
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.True(t, frame.Intra)

	require.Len(t, frame.Payload, 4+2+250)
	assert.Equal(t, nalHdr[0], frame.Payload[4])
	assert.Equal(t, nalHdr[1], frame.Payload[5])
	assert.Equal(t, body, frame.Payload[6:])
}

func TestDepacketizerSkipsUnimplementedTypes(t *testing.T) {
	d := NewDepacketizer()

	payload := []byte{byte(NALUTypeAUD<<1) & 0x7e, 0x01, 0x00}
	frame, err := d.AddPacket(&Packet{Timestamp: 1, Mark: true, Payload: payload})
	require.NoError(t, err)
	// AUD carries no media payload; the frame completes empty.
	require.NotNil(t, frame)
	assert.Empty(t, frame.Payload)
}

func TestDepacketizerMalformedPayload(t *testing.T) {
	d := NewDepacketizer()
	_, err := d.AddPacket(&Packet{Timestamp: 1, Payload: []byte{0x01}})
	assert.ErrorIs(t, err, ErrParse)
}
