package h264

import "github.com/lanikai/rtmpstream/internal/bits"

// highProfiles lists profile_idc values that carry the chroma-format
// and bit-depth fields in the SPS (ITU-T H.264 §7.3.2.1.1).
var highProfiles = map[uint32]bool{
	100: true, 110: true, 122: true, 244: true, 44: true,
	83: true, 86: true, 118: true, 128: true, 138: true,
	139: true, 134: true, 135: true,
}

// SPS holds the fields of a decoded sequence parameter set needed to
// size a VideoFrame.
type SPS struct {
	ProfileIDC uint32
	LevelIDC   uint32
	Width      int
	Height     int
}

// ParseSPS decodes an H.264 SPS RBSP (NAL header byte included) and
// extracts profile/level and frame dimensions.
func ParseSPS(nal []byte) (*SPS, error) {
	if len(nal) < 1 {
		return nil, bits.ErrUnderflow
	}
	r := bits.NewRbspBitReader(nal[1:])

	sps := &SPS{}

	v, err := r.Get(8)
	if err != nil {
		return nil, err
	}
	sps.ProfileIDC = v

	if _, err := r.Get(8); err != nil { // constraint flags + reserved
		return nil, err
	}
	if v, err = r.Get(8); err != nil {
		return nil, err
	}
	sps.LevelIDC = v

	if _, err := r.GetExpGolomb(); err != nil { // seq_parameter_set_id
		return nil, err
	}

	chromaFormatIDC := uint32(1)
	separateColourPlane := false
	if highProfiles[sps.ProfileIDC] {
		if chromaFormatIDC, err = r.GetExpGolomb(); err != nil {
			return nil, err
		}
		if chromaFormatIDC == 3 {
			b, err := r.Get(1)
			if err != nil {
				return nil, err
			}
			separateColourPlane = b == 1
		}
		if _, err := r.GetExpGolomb(); err != nil { // bit_depth_luma_minus8
			return nil, err
		}
		if _, err := r.GetExpGolomb(); err != nil { // bit_depth_chroma_minus8
			return nil, err
		}
		if _, err := r.Get(1); err != nil { // qpprime_y_zero_transform_bypass_flag
			return nil, err
		}
		scalingMatrixPresent, err := r.Get(1)
		if err != nil {
			return nil, err
		}
		if scalingMatrixPresent == 1 {
			// Scaling lists aren't needed for dimension extraction; since
			// they're variably-sized Exp-Golomb-coded matrices this parser
			// doesn't support streams that rely on them for anything
			// beyond what's decoded here.
			return nil, errUnsupportedScalingList
		}
	}

	if _, err := r.GetExpGolomb(); err != nil { // log2_max_frame_num_minus4
		return nil, err
	}
	picOrderCntType, err := r.GetExpGolomb()
	if err != nil {
		return nil, err
	}
	switch picOrderCntType {
	case 0:
		if _, err := r.GetExpGolomb(); err != nil { // log2_max_pic_order_cnt_lsb_minus4
			return nil, err
		}
	case 1:
		if _, err := r.Get(1); err != nil { // delta_pic_order_always_zero_flag
			return nil, err
		}
		if _, err := r.GetExpGolomb(); err != nil { // offset_for_non_ref_pic
			return nil, err
		}
		if _, err := r.GetExpGolomb(); err != nil { // offset_for_top_to_bottom_field
			return nil, err
		}
		numRefFrames, err := r.GetExpGolomb()
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < numRefFrames; i++ {
			if _, err := r.GetExpGolomb(); err != nil {
				return nil, err
			}
		}
	}

	if _, err := r.GetExpGolomb(); err != nil { // max_num_ref_frames
		return nil, err
	}
	if _, err := r.Get(1); err != nil { // gaps_in_frame_num_value_allowed_flag
		return nil, err
	}

	widthInMbsMinus1, err := r.GetExpGolomb()
	if err != nil {
		return nil, err
	}
	heightInMapUnitsMinus1, err := r.GetExpGolomb()
	if err != nil {
		return nil, err
	}
	frameMbsOnly, err := r.Get(1)
	if err != nil {
		return nil, err
	}
	if frameMbsOnly == 0 {
		if _, err := r.Get(1); err != nil { // mb_adaptive_frame_field_flag
			return nil, err
		}
	}
	if _, err := r.Get(1); err != nil { // direct_8x8_inference_flag
		return nil, err
	}

	cropLeft, cropRight, cropTop, cropBottom := uint32(0), uint32(0), uint32(0), uint32(0)
	cropping, err := r.Get(1)
	if err != nil {
		return nil, err
	}
	if cropping == 1 {
		if cropLeft, err = r.GetExpGolomb(); err != nil {
			return nil, err
		}
		if cropRight, err = r.GetExpGolomb(); err != nil {
			return nil, err
		}
		if cropTop, err = r.GetExpGolomb(); err != nil {
			return nil, err
		}
		if cropBottom, err = r.GetExpGolomb(); err != nil {
			return nil, err
		}
	}

	subWidthC, subHeightC := 1, 1
	if !separateColourPlane {
		switch chromaFormatIDC {
		case 1:
			subWidthC, subHeightC = 2, 2
		case 2:
			subWidthC, subHeightC = 2, 1
		}
	}

	width := int(widthInMbsMinus1+1) * 16
	frameHeightMult := 2
	if frameMbsOnly == 1 {
		frameHeightMult = 1
	}
	height := int(heightInMapUnitsMinus1+1) * 16 * frameHeightMult

	width -= int(cropLeft+cropRight) * subWidthC
	height -= int(cropTop+cropBottom) * subHeightC * (2 - int(frameMbsOnly))

	sps.Width = width
	sps.Height = height

	if r.Error() {
		return nil, bits.ErrUnderflow
	}
	return sps, nil
}

var errUnsupportedScalingList = sps264Error("unsupported SPS scaling list")

type sps264Error string

func (e sps264Error) Error() string { return string(e) }
