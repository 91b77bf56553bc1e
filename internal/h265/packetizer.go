package h265

import (
	"math"

	"github.com/lanikai/rtmpstream/internal/media"
)

// RTPPayloadSize is the maximum RTP payload size before a NAL unit must
// be fragmented into FU packets.
const RTPPayloadSize = 1200

const (
	naluHeaderSize = 2
	fuPrefixSize   = 3 // PayloadHdr (2 bytes) + FU header
)

// Packetizer slices Annex-B access units into VideoFrames carrying the
// RTP packetization descriptors needed to emit single-NAL or FU
// fragments without re-scanning the bitstream.
type Packetizer struct {
	width, height int
}

// NewPacketizer creates an HEVC RTP packetizer.
func NewPacketizer() *Packetizer {
	return &Packetizer{}
}

// ProcessAU packetizes one Annex-B access unit into a new VideoFrame.
func (p *Packetizer) ProcessAU(au []byte) *media.VideoFrame {
	frame := media.NewVideoFrame(media.H265)

	NalSliceAnnexB(au, func(nal []byte) {
		p.emitNAL(frame, nal)
	})

	if frame.Width != 0 && frame.Height != 0 {
		p.width, p.height = frame.Width, frame.Height
	} else {
		frame.Width, frame.Height = p.width, p.height
	}

	return frame
}

func (p *Packetizer) emitNAL(frame *media.VideoFrame, nal NALU) {
	if len(nal) < 2 {
		return
	}
	naluType := nal.Type()
	layerID := nal.LayerID()
	tid := nal.TID()

	if IsParameterOrKeyframe(naluType) {
		frame.Intra = true
	}
	if naluType == NALUTypeSPS {
		if sps, err := ParseSPS(nal, layerID); err == nil {
			frame.Width, frame.Height = sps.Width, sps.Height
		}
	}
	if naluType == NALUTypeSPS || naluType == NALUTypePPS || naluType == NALUTypeVPS {
		cfg := make([]byte, 4+len(nal))
		cfg[0], cfg[1], cfg[2], cfg[3] = byte(len(nal)>>24), byte(len(nal)>>16), byte(len(nal)>>8), byte(len(nal))
		copy(cfg[4:], nal)
		frame.ParameterSets = append(frame.ParameterSets, cfg)
	}

	pos := frame.AppendNAL(nal)

	if len(nal) < RTPPayloadSize {
		frame.AddRTPPacket(pos, len(nal), nil)
		return
	}

	// FU fragmentation, RFC 7798 §4.4.3. PayloadHdr carries type 49 but
	// preserves the original NAL's LayerId/TID.
	payloadHdr0 := (NALUTypeFU<<1)&0x7e | (layerID>>5)&0x1
	payloadHdr1 := (layerID<<3)&0xf8 | tid&0x07
	fuHeader := naluType

	fuPrefix := []byte{payloadHdr0, payloadHdr1, fuHeader}

	payloadPos := pos + naluHeaderSize
	payloadLen := len(nal) - naluHeaderSize

	numPackets := int(math.Ceil(float64(payloadLen) / float64(RTPPayloadSize-fuPrefixSize)))
	packetLen := payloadLen / numPackets
	mod := payloadLen % numPackets

	fuPrefix[2] |= 0x80 // Start bit
	for i := 0; i < numPackets; i++ {
		l := packetLen
		if mod > 0 {
			l++
		}
		if i == numPackets-1 {
			fuPrefix[2] |= 0x40 // End bit
		}
		frame.AddRTPPacket(payloadPos, l, fuPrefix)
		fuPrefix[2] &= 0x3f // Clear Start bit for subsequent fragments
		payloadPos += l
		mod--
	}
}
