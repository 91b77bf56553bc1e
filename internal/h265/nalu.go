// Package h265 implements HEVC Annex-B NAL slicing, SPS parsing, and RTP
// packetization/depacketization per RFC 7798.
package h265

import "github.com/lanikai/rtmpstream/internal/h264"

// NAL unit types, RFC 7798 Table 1 plus ITU-T H.265 Table 7-1.
const (
	NALUTypeIDRWRADL = 19
	NALUTypeIDRNLP   = 20
	NALUTypeVPS      = 32
	NALUTypeSPS      = 33
	NALUTypePPS      = 34
	NALUTypeAUD      = 35
	NALUTypeEOS      = 36
	NALUTypeEOB      = 37
	NALUTypeFD       = 38
	NALUTypeAP       = 48
	NALUTypeFU       = 49
)

// NALU is a single HEVC NAL unit, 2-byte header first.
type NALU []byte

// Type returns nal_unit_type, bits 1..6 of the first byte.
func (n NALU) Type() byte { return (n[0] & 0x7e) >> 1 }

// LayerID returns nuh_layer_id, split across the low bit of the first
// byte and the high 5 bits of the second.
func (n NALU) LayerID() byte { return ((n[0] & 0x1) << 5) + ((n[1] & 0xf8) >> 3) }

// TID returns the nuh_temporal_id_plus1 field as coded (the low 3 bits
// of the second byte), without subtracting 1.
func (n NALU) TID() byte { return n[1] & 0x7 }

// IsParameterOrKeyframe reports whether a NAL unit type should mark its
// access unit as intra.
func IsParameterOrKeyframe(naluType byte) bool {
	switch naluType {
	case NALUTypeIDRWRADL, NALUTypeIDRNLP, NALUTypeSPS, NALUTypePPS:
		return true
	default:
		return false
	}
}

// NalSliceAnnexB scans an Annex-B access unit and invokes emit once per
// NAL unit, in order. It reuses the codec-agnostic start-code scanner
// shared with H.264.
func NalSliceAnnexB(data []byte, emit func(nal []byte)) {
	h264.NalSliceAnnexB(data, emit)
}
