package h265

import "github.com/lanikai/rtmpstream/internal/bits"

// hevcSubWidthC/hevcSubHeightC give the conformance-cropping unit size
// per chroma_format_idc (ITU-T H.265 Table 6-1).
var hevcSubWidthC = [4]int{1, 2, 2, 1}
var hevcSubHeightC = [4]int{1, 2, 1, 1}

const maxSubLayers = 8

// ProfileTierLevel holds the decoded general_profile_tier_level fields
// needed to report a level_idc; sub-layer PTLs are consumed but not
// retained since nothing downstream of SPS parsing needs them.
type ProfileTierLevel struct {
	ProfileSpace byte
	TierFlag     byte
	ProfileIDC   byte
	LevelIDC     byte
}

// SPS holds the fields of a decoded HEVC sequence parameter set needed
// to size a VideoFrame.
type SPS struct {
	VPSID                   uint32
	MaxSubLayersMinus1      uint32
	TemporalIDNestingFlag   uint32
	ProfileTierLevel        ProfileTierLevel
	SeqParameterSetID       uint32
	ChromaFormatIDC         uint32
	SeparateColourPlaneFlag uint32

	Width, Height int
}

// ParseSPS decodes an HEVC SPS NAL unit (2-byte NAL header included)
// and extracts profile/level and frame dimensions. layerID is the NAL's
// nuh_layer_id, which selects between sps_max_sub_layers_minus1 (layer
// 0) and the extension syntax (non-zero layer, currently rejected since
// no caller needs multilayer HEVC).
func ParseSPS(nal []byte, layerID byte) (*SPS, error) {
	if len(nal) < 3 {
		return nil, bits.ErrUnderflow
	}
	r := bits.NewRbspBitReader(nal[2:])

	sps := &SPS{}

	v, err := r.Get(4)
	if err != nil {
		return nil, err
	}
	sps.VPSID = v

	v, err = r.Get(3)
	if err != nil {
		return nil, err
	}
	if layerID != 0 {
		return nil, errMultilayerUnsupported
	}
	sps.MaxSubLayersMinus1 = v
	if sps.MaxSubLayersMinus1 > 6 {
		return nil, errSubLayersOutOfRange
	}

	v, err = r.Get(1)
	if err != nil {
		return nil, err
	}
	sps.TemporalIDNestingFlag = v

	ptl, err := parseProfileTierLevel(r, sps.MaxSubLayersMinus1)
	if err != nil {
		return nil, err
	}
	sps.ProfileTierLevel = *ptl

	if sps.SeqParameterSetID, err = r.GetExpGolomb(); err != nil {
		return nil, err
	}

	if sps.ChromaFormatIDC, err = r.GetExpGolomb(); err != nil {
		return nil, err
	}
	if sps.ChromaFormatIDC > 3 {
		return nil, errInvalidChromaFormat
	}
	if sps.ChromaFormatIDC == 3 {
		if sps.SeparateColourPlaneFlag, err = r.Get(1); err != nil {
			return nil, err
		}
	}
	chromaFormatIDC := sps.ChromaFormatIDC
	if sps.SeparateColourPlaneFlag == 1 {
		chromaFormatIDC = 0
	}

	picWidth, err := r.GetExpGolomb()
	if err != nil {
		return nil, err
	}
	picHeight, err := r.GetExpGolomb()
	if err != nil {
		return nil, err
	}

	width, height := int(picWidth), int(picHeight)

	conformanceWindow, err := r.Get(1)
	if err != nil {
		return nil, err
	}
	if conformanceWindow == 1 {
		horizMult := hevcSubWidthC[chromaFormatIDC]
		vertMult := hevcSubHeightC[chromaFormatIDC]

		left, err := r.GetExpGolomb()
		if err != nil {
			return nil, err
		}
		right, err := r.GetExpGolomb()
		if err != nil {
			return nil, err
		}
		top, err := r.GetExpGolomb()
		if err != nil {
			return nil, err
		}
		bottom, err := r.GetExpGolomb()
		if err != nil {
			return nil, err
		}
		width -= int(left+right) * horizMult
		height -= int(top+bottom) * vertMult
	}

	sps.Width = width
	sps.Height = height

	if r.Error() {
		return nil, bits.ErrUnderflow
	}
	return sps, nil
}

// parseProfileTierLevel decodes general_profile_tier_level plus, for
// each sub-layer, its presence flags and (if present) its own PTL. Only
// the general level is retained.
func parseProfileTierLevel(r *bits.BitReader, maxSubLayersMinus1 uint32) (*ProfileTierLevel, error) {
	if r.Left() < 2+1+5+32+4+43+1 {
		return nil, bits.ErrUnderflow
	}

	profileSpace, tierFlag, profileIDC, compat, err := decodeProfileCore(r)
	if err != nil {
		return nil, err
	}
	if err := skipConstraintBits(r, profileIDC, compat); err != nil {
		return nil, err
	}

	levelIDC, err := r.Get(8)
	if err != nil {
		return nil, err
	}

	ptl := &ProfileTierLevel{
		ProfileSpace: byte(profileSpace),
		TierFlag:     byte(tierFlag),
		ProfileIDC:   profileIDC,
		LevelIDC:     byte(levelIDC),
	}

	profilePresent := make([]uint32, maxSubLayersMinus1)
	levelPresent := make([]uint32, maxSubLayersMinus1)
	for i := uint32(0); i < maxSubLayersMinus1; i++ {
		if profilePresent[i], err = r.Get(1); err != nil {
			return nil, err
		}
		if levelPresent[i], err = r.Get(1); err != nil {
			return nil, err
		}
	}
	if maxSubLayersMinus1 > 0 {
		for i := maxSubLayersMinus1; i < maxSubLayers; i++ {
			if err := r.Skip(2); err != nil { // reserved_zero_2bits
				return nil, err
			}
		}
	}

	// Sub-layer PTLs mirror the general syntax (minus the trailing
	// level_idc, which is only present when sub_layer_level_present_flag
	// is set); their values aren't retained since only the general
	// level is reported.
	for i := uint32(0); i < maxSubLayersMinus1; i++ {
		if profilePresent[i] != 0 {
			_, _, subProfileIDC, subCompat, err := decodeProfileCore(r)
			if err != nil {
				return nil, err
			}
			if err := skipConstraintBits(r, subProfileIDC, subCompat); err != nil {
				return nil, err
			}
		}
		if levelPresent[i] != 0 {
			if _, err := r.Get(8); err != nil {
				return nil, err
			}
		}
	}

	return ptl, nil
}

// decodeProfileCore reads profile_space, tier_flag, general_profile_idc
// and the 32 compatibility flags, resolving the effective profile_idc
// per the same "first set compatibility flag" fallback the general
// syntax uses.
func decodeProfileCore(r *bits.BitReader) (profileSpace, tierFlag uint32, profileIDC byte, compat []byte, err error) {
	if profileSpace, err = r.Get(2); err != nil {
		return
	}
	if tierFlag, err = r.Get(1); err != nil {
		return
	}
	var idc uint32
	if idc, err = r.Get(5); err != nil {
		return
	}
	profileIDC = byte(idc)

	compat = make([]byte, 32)
	for i := 0; i < 32; i++ {
		var b uint32
		if b, err = r.Get(1); err != nil {
			return
		}
		compat[i] = byte(b)
		if profileIDC == 0 && i > 0 && compat[i] != 0 {
			profileIDC = byte(i)
		}
	}

	// progressive_source_flag, interlaced_source_flag,
	// non_packed_constraint_flag, frame_only_constraint_flag
	if _, err = r.Get(4); err != nil {
		return
	}
	return
}

func skipConstraintBits(r *bits.BitReader, profileIDC byte, compat []byte) error {
	checkProfile := func(idc byte) bool {
		return profileIDC == idc || compat[idc] != 0
	}

	switch {
	case checkProfile(4) || checkProfile(5) || checkProfile(6) || checkProfile(7) ||
		checkProfile(8) || checkProfile(9) || checkProfile(10):
		// max_12/10/8bit, max_422/420chroma, max_monochrome, intra,
		// one_picture_only, lower_bit_rate constraint flags (9 bits).
		if _, err := r.Get(9); err != nil {
			return err
		}
		if checkProfile(5) || checkProfile(9) || checkProfile(10) {
			if _, err := r.Get(1); err != nil { // max_14bit_constraint_flag
				return err
			}
			if err := r.Skip(33); err != nil {
				return err
			}
		} else {
			if err := r.Skip(34); err != nil {
				return err
			}
		}
	case checkProfile(2):
		if err := r.Skip(7); err != nil {
			return err
		}
		if _, err := r.Get(1); err != nil { // one_picture_only_constraint_flag
			return err
		}
		if err := r.Skip(35); err != nil {
			return err
		}
	default:
		if err := r.Skip(43); err != nil {
			return err
		}
	}

	if checkProfile(1) || checkProfile(2) || checkProfile(3) || checkProfile(4) ||
		checkProfile(5) || checkProfile(9) {
		if _, err := r.Get(1); err != nil { // inbld_flag
			return err
		}
	} else {
		if err := r.Skip(1); err != nil {
			return err
		}
	}
	return nil
}

type sps265Error string

func (e sps265Error) Error() string { return string(e) }

var (
	errMultilayerUnsupported = sps265Error("h265: multilayer SPS extension unsupported")
	errSubLayersOutOfRange   = sps265Error("h265: sps_max_sub_layers_minus1 out of range")
	errInvalidChromaFormat   = sps265Error("h265: invalid chroma_format_idc")
)
