package h265

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleSPSRBSP is the SPS RBSP payload (vps_id onward, emulation bytes
// present) from a known-good 1280x736 (cropped to 1280x720) encode.
var sampleSPSRBSP = []byte{
	0x01, 0x01, 0x60, 0x00, 0x00, 0x03, 0x00, 0xb0,
	0x00, 0x00, 0x03, 0x00, 0x00, 0x03, 0x00, 0x5d,
	0xa0, 0x02, 0x80, 0x80, 0x2e, 0x1f, 0x13, 0x96,
	0xbb, 0x93, 0x24, 0xbb, 0x95, 0x82, 0x83, 0x03,
	0x01, 0x76, 0x85, 0x09, 0x40,
}

func sampleSPSNAL() []byte {
	// SPS NAL header: F=0, type=33 (SPS), layer_id=0, tid=0.
	header := []byte{byte(NALUTypeSPS<<1) & 0x7e, 0x01}
	return append(header, sampleSPSRBSP...)
}

func TestParseSPSDimensions(t *testing.T) {
	sps, err := ParseSPS(sampleSPSNAL(), 0)
	require.NoError(t, err)

	assert.Equal(t, uint32(0), sps.VPSID)
	assert.Equal(t, uint32(0), sps.MaxSubLayersMinus1)
	assert.Equal(t, uint32(1), sps.TemporalIDNestingFlag)
	assert.Equal(t, byte(1), sps.ProfileTierLevel.ProfileIDC)
	assert.Equal(t, byte(93), sps.ProfileTierLevel.LevelIDC)
	assert.Equal(t, uint32(0), sps.SeqParameterSetID)
	assert.Equal(t, uint32(1), sps.ChromaFormatIDC)
	assert.Equal(t, 1280, sps.Width)
	assert.Equal(t, 720, sps.Height)
}

func TestParseSPSRejectsNonZeroLayer(t *testing.T) {
	_, err := ParseSPS(sampleSPSNAL(), 1)
	assert.ErrorIs(t, err, errMultilayerUnsupported)
}

func TestParseSPSUnderflow(t *testing.T) {
	_, err := ParseSPS([]byte{0x42, 0x01}, 0)
	assert.Error(t, err)
}
