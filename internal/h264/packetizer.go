package h264

import (
	"math"

	"github.com/lanikai/rtmpstream/internal/media"
)

// RTPPayloadSize is the maximum RTP payload size before a NAL unit must
// be fragmented into FU-A packets.
const RTPPayloadSize = 1200

const (
	naluHeaderSize = 1
	fuPrefixSize   = 2 // FU indicator + FU header
)

// Packetizer slices Annex-B access units into VideoFrames carrying the
// RTP packetization descriptors needed to emit single-NAL or FU-A
// fragments without re-scanning the bitstream.
type Packetizer struct {
	width, height int
}

// NewPacketizer creates an H.264 RTP packetizer.
func NewPacketizer() *Packetizer {
	return &Packetizer{}
}

// ProcessAU packetizes one Annex-B access unit into a new VideoFrame.
func (p *Packetizer) ProcessAU(au []byte) *media.VideoFrame {
	frame := media.NewVideoFrame(media.H264)

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
	naluType := nal.Type()

	if IsParameterOrKeyframe(naluType) {
		frame.Intra = true
	}
	if naluType == NALUTypeSPS {
		if sps, err := ParseSPS(nal); err == nil {
			frame.Width, frame.Height = sps.Width, sps.Height
		}
	}
	if naluType == NALUTypeSPS || naluType == NALUTypePPS {
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

	// FU-A fragmentation, RFC 6184 §5.8.
	fuIndicator := nal[0]&0x60 | NALUTypeFUA
	fuHeader := nal[0] & 0x1f
	fuPrefix := []byte{fuIndicator, fuHeader}

	payloadPos := pos + naluHeaderSize
	payloadLen := len(nal) - naluHeaderSize

	numPackets := int(math.Ceil(float64(payloadLen) / float64(RTPPayloadSize-fuPrefixSize)))
	packetLen := payloadLen / numPackets
	mod := payloadLen % numPackets

	fuPrefix[1] |= 0x80 // Start bit
	for i := 0; i < numPackets; i++ {
		l := packetLen
		if mod > 0 {
			l++
		}
		if i == numPackets-1 {
			fuPrefix[1] |= 0x40 // End bit
		}
		frame.AddRTPPacket(payloadPos, l, fuPrefix)
		fuPrefix[1] &= 0x3f // Clear Start bit for subsequent fragments
		payloadPos += l
		mod--
	}
}
