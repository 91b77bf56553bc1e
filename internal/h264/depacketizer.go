package h264

import (
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/rtmpstream/internal/media"
)

// ErrParse indicates a malformed RTP payload; per policy the current
// frame's assembly state should be dropped and reset.
var ErrParse = errors.New("h264: malformed RTP payload")

// Packet is the minimal view of an inbound RTP packet the depacketizer
// needs; it deliberately omits sequence number and header extensions,
// which the core doesn't interpret.
type Packet struct {
	Timestamp   uint32
	ClockRate   uint32
	SSRC        uint32
	Mark        bool
	ArrivalTime time.Time
	SenderTime  time.Time
	Payload     []byte
}

// Depacketizer reassembles H.264 RTP packets (single-NAL, STAP-A, FU-A)
// into MediaFrames.
type Depacketizer struct {
	frame       *media.VideoFrame
	width       int
	height      int
	fragLenPos  int
	fragStarted bool
}

// NewDepacketizer creates an H.264 RTP depacketizer.
func NewDepacketizer() *Depacketizer {
	return &Depacketizer{frame: media.NewVideoFrame(media.H264)}
}

func (d *Depacketizer) reset() {
	d.frame.Reset()
	d.fragStarted = false
}

// AddPacket feeds one RTP packet. It returns the completed frame once
// the packet with Mark==true arrives, or nil if the access unit is
// still being assembled. On a malformed payload it returns ErrParse and
// resets assembly state so the next marked packet starts cleanly.
func (d *Depacketizer) AddPacket(pkt *Packet) (*media.VideoFrame, error) {
	if d.frame.Timestamp != pkt.Timestamp {
		d.reset()
	}
	if d.frame.Timestamp == 0 && len(d.frame.Payload) == 0 {
		d.frame.Timestamp = pkt.Timestamp
		d.frame.ClockRate = pkt.ClockRate
		d.frame.ArrivalTime = pkt.ArrivalTime
		d.frame.SenderTime = pkt.SenderTime
	}
	d.frame.SSRC = pkt.SSRC

	if err := d.addPayload(pkt.Payload); err != nil {
		d.reset()
		return nil, err
	}

	if !pkt.Mark {
		return nil, nil
	}

	if d.frame.Width != 0 && d.frame.Height != 0 {
		d.width, d.height = d.frame.Width, d.frame.Height
	} else {
		d.frame.Width, d.frame.Height = d.width, d.height
	}

	out := d.frame
	d.frame = media.NewVideoFrame(media.H264)
	return out, nil
}

func (d *Depacketizer) addPayload(payload []byte) error {
	if len(payload) < 1 {
		return ErrParse
	}
	naluType := payload[0] & 0x1f

	switch naluType {
	case NALUTypeSTAPA:
		return d.addSTAPA(payload)
	case NALUTypeFUA:
		return d.addFUA(payload)
	default:
		return d.addSingleNAL(payload)
	}
}

func (d *Depacketizer) addSingleNAL(nal []byte) error {
	naluType := nal[0] & 0x1f
	if IsParameterOrKeyframe(naluType) {
		d.frame.Intra = true
	}
	if naluType == NALUTypeSPS {
		if sps, err := ParseSPS(nal); err == nil {
			d.frame.Width, d.frame.Height = sps.Width, sps.Height
		}
		d.frame.ParameterSets = append(d.frame.ParameterSets, lengthPrefixed(nal))
	}
	if naluType == NALUTypePPS {
		d.frame.ParameterSets = append(d.frame.ParameterSets, lengthPrefixed(nal))
	}
	pos := d.frame.AppendNAL(nal)
	d.frame.AddRTPPacket(pos, len(nal), nil)
	return nil
}

func (d *Depacketizer) addSTAPA(payload []byte) error {
	p := payload[1:]
	for len(p) > 2 {
		size := int(p[0])<<8 | int(p[1])
		p = p[2:]
		if size <= 0 || size > len(p) {
			return ErrParse
		}
		nal := p[:size]
		if err := d.addSingleNAL(nal); err != nil {
			return err
		}
		p = p[size:]
	}
	return nil
}

func (d *Depacketizer) addFUA(payload []byte) error {
	if len(payload) < 2 {
		return ErrParse
	}
	indicator := payload[0]
	header := payload[1]
	start := header&0x80 != 0
	end := header&0x40 != 0
	naluType := header & 0x1f

	if start {
		fragHeader := indicator&0xe0 | naluType
		if IsParameterOrKeyframe(naluType) {
			d.frame.Intra = true
		}
		lenPos, pos := d.frame.ReserveNAL()
		d.fragLenPos = lenPos
		d.frame.AppendBytes([]byte{fragHeader})
		_ = pos
		d.fragStarted = true
	}

	if !d.fragStarted {
		return ErrParse
	}

	if len(payload) <= 2 {
		return ErrParse
	}
	d.frame.AddRTPPacket(len(d.frame.Payload), len(payload)-2, []byte{indicator, header})
	d.frame.AppendBytes(payload[2:])

	if end {
		size := len(d.frame.Payload) - d.fragLenPos - 4
		if size < 0 {
			return ErrParse
		}
		d.frame.PatchLength(d.fragLenPos, size)
		d.fragStarted = false
	}
	return nil
}

func lengthPrefixed(nal []byte) []byte {
	out := make([]byte, 4+len(nal))
	out[0], out[1], out[2], out[3] = byte(len(nal)>>24), byte(len(nal)>>16), byte(len(nal)>>8), byte(len(nal))
	copy(out[4:], nal)
	return out
}
