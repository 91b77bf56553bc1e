package h264

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleSPSNAL is a hand-built baseline-profile (profile_idc 66) SPS for
// a 176x144 (QCIF), non-cropped, frame-only encode: seq_parameter_set_id
// 0, log2_max_frame_num_minus4 0, pic_order_cnt_type 2, max_num_ref_frames
// 1, pic_width_in_mbs_minus1 10, pic_height_in_map_units_minus1 8,
// frame_mbs_only_flag 1, no cropping.
var sampleSPSNAL = []byte{0x67, 0x42, 0x00, 0x1e, 0xda, 0x0b, 0x13, 0x00}

func TestParseSPSDimensions(t *testing.T) {
	sps, err := ParseSPS(sampleSPSNAL)
	require.NoError(t, err)

	assert.Equal(t, uint32(66), sps.ProfileIDC)
	assert.Equal(t, uint32(30), sps.LevelIDC)
	assert.Equal(t, 176, sps.Width)
	assert.Equal(t, 144, sps.Height)
}

func TestParseSPSUnderflow(t *testing.T) {
	_, err := ParseSPS([]byte{0x67, 0x42})
	assert.Error(t, err)
}

func TestParseSPSHighProfileUnsupportedScalingList(t *testing.T) {
	// profile_idc 100 (High) with scaling_matrix_present_flag set; this
	// parser doesn't decode scaling lists, so it must report that
	// explicitly rather than silently misreading the rest of the SPS.
	nal := []byte{0x67, 0x64, 0x00, 0x1e, 0xff, 0xff, 0xff, 0xff}
	_, err := ParseSPS(nal)
	assert.ErrorIs(t, err, errUnsupportedScalingList)
}
