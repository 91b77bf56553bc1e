// Package h264 implements Annex-B NAL slicing, SPS parsing, and RTP
// packetization/depacketization for H.264 per RFC 6184.
package h264

// NAL unit types, RFC 6184 §5.2 plus ITU-T H.264 Table 7-1.
const (
	NALUTypeNonIDR = 1
	NALUTypeIDR    = 5
	NALUTypeSEI    = 6
	NALUTypeSPS    = 7
	NALUTypePPS    = 8
	NALUTypeSTAPA  = 24
	NALUTypeFUA    = 28
)

// NALU is a single H.264 NAL unit, header byte first.
type NALU []byte

func (n NALU) ForbiddenBit() byte { return n[0] & 0x80 >> 7 }
func (n NALU) NRI() byte          { return n[0] & 0x60 >> 5 }
func (n NALU) Type() byte         { return n[0] & 0x1f }

// IsParameterOrKeyframe reports whether a NAL unit type should mark the
// access unit it belongs to as intra (SPS/PPS arrive alongside an IDR,
// and IDR itself is always intra).
func IsParameterOrKeyframe(naluType byte) bool {
	return naluType == NALUTypeIDR || naluType == NALUTypeSPS || naluType == NALUTypePPS
}

// NalSliceAnnexB scans an Annex-B access unit (NAL units delimited by
// 0x000001/0x00000001 start codes) and invokes emit once per NAL unit,
// in order, with the start code and any start-code-adjacent zero
// padding removed.
func NalSliceAnnexB(data []byte, emit func(nal []byte)) {
	starts := findStartCodes(data)
	for i, s := range starts {
		end := len(data)
		if i+1 < len(starts) {
			end = starts[i+1] - 3
		}
		nal := data[s:end]
		// Trim trailing zero bytes, which belong either to a following
		// 4-byte start code or to Annex-B zero_byte padding; rbsp
		// trailing bits guarantee a real NAL never legitimately ends
		// in 0x00.
		for len(nal) > 0 && nal[len(nal)-1] == 0x00 {
			nal = nal[:len(nal)-1]
		}
		if len(nal) > 0 {
			emit(nal)
		}
	}
}

// findStartCodes returns, for each NAL unit in data, the offset of its
// first content byte (immediately after the 00 00 01 start code,
// whether preceded by a fourth leading zero or not).
func findStartCodes(data []byte) []int {
	var offsets []int
	for i := 0; i+2 < len(data); {
		if data[i] == 0 && data[i+1] == 0 && data[i+2] == 1 {
			offsets = append(offsets, i+3)
			i += 3
			continue
		}
		i++
	}
	return offsets
}
