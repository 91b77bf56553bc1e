package h265

import (
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/rtmpstream/internal/media"
)

// ErrParse indicates a malformed RTP payload.
var ErrParse = errors.New("h265: malformed RTP payload")

// ErrUnsupportedDON names the DONL/DOND fields, which this depacketizer
// doesn't support: every AP and FU is parsed as if sprop-max-don-diff
// were 0 (the default). The depacketizer does not detect DONL/DOND and
// never returns this error; a packet carrying them is parsed as if they
// were absent.
var ErrUnsupportedDON = errors.New("h265: DONL/DOND fields unsupported (sprop-max-don-diff must be 0)")

// Packet is the minimal view of an inbound RTP packet the depacketizer
// needs.
type Packet struct {
	Timestamp   uint32
	ClockRate   uint32
	SSRC        uint32
	Mark        bool
	ArrivalTime time.Time
	SenderTime  time.Time
	Payload     []byte
}

// Depacketizer reassembles HEVC RTP packets (single-NAL, AP, FU) into
// MediaFrames.
type Depacketizer struct {
	frame       *media.VideoFrame
	width       int
	height      int
	fragLenPos  int
	fragStarted bool
}

// NewDepacketizer creates an HEVC RTP depacketizer.
func NewDepacketizer() *Depacketizer {
	return &Depacketizer{frame: media.NewVideoFrame(media.H265)}
}

func (d *Depacketizer) reset() {
	d.frame.Reset()
	d.fragStarted = false
}

// AddPacket feeds one RTP packet. It returns the completed frame once
// the packet with Mark==true arrives, or nil while assembly continues.
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
	d.frame = media.NewVideoFrame(media.H265)
	return out, nil
}

func (d *Depacketizer) addPayload(payload []byte) error {
	if len(payload) < 2 {
		return ErrParse
	}

	naluType := (payload[0] & 0x7e) >> 1

	switch naluType {
	case NALUTypeAUD, NALUTypeEOS, NALUTypeEOB, NALUTypeFD:
		return nil
	case NALUTypeAP:
		return d.addAP(payload)
	case NALUTypeFU:
		return d.addFU(payload)
	default:
		return d.addSingleNAL(payload)
	}
}

// addSingleNAL handles 4.4.1 Single NAL Unit Packets: the entire RTP
// payload, 2-byte PayloadHdr included, is one NAL unit.
func (d *Depacketizer) addSingleNAL(nal []byte) error {
	naluType := (nal[0] & 0x7e) >> 1
	layerID := ((nal[0] & 0x1) << 5) + ((nal[1] & 0xf8) >> 3)

	if IsParameterOrKeyframe(naluType) {
		d.frame.Intra = true
	}
	switch naluType {
	case NALUTypeSPS:
		if sps, err := ParseSPS(nal, layerID); err == nil {
			d.frame.Width, d.frame.Height = sps.Width, sps.Height
		}
		d.frame.ParameterSets = append(d.frame.ParameterSets, lengthPrefixed(nal))
	case NALUTypePPS, NALUTypeVPS:
		d.frame.ParameterSets = append(d.frame.ParameterSets, lengthPrefixed(nal))
	}

	pos := d.frame.AppendNAL(nal)
	d.frame.AddRTPPacket(pos, len(nal), nil)
	return nil
}

// addAP handles 4.4.2 Aggregation Packets (type 48): a PayloadHdr
// followed by a sequence of (2-byte size, NAL) pairs, DONL/DOND absent.
func (d *Depacketizer) addAP(payload []byte) error {
	p := payload[2:]
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

// addFU handles 4.4.3 Fragmentation Units (type 49): PayloadHdr (2
// bytes) + FU header (S|E|R|Type, 1 byte) + fragment payload.
func (d *Depacketizer) addFU(payload []byte) error {
	if len(payload) < 3 {
		return ErrParse
	}
	fuHeader := payload[2]
	start := fuHeader&0x80 != 0
	end := fuHeader&0x40 != 0
	naluType := fuHeader & 0x3f

	if start {
		layerID := ((payload[0] & 0x1) << 5) + ((payload[1] & 0xf8) >> 3)
		tid := payload[1] & 0x7
		hdr0 := (naluType<<1)&0x7e | (layerID>>5)&0x1
		hdr1 := (layerID<<3)&0xf8 | tid&0x7

		if IsParameterOrKeyframe(naluType) {
			d.frame.Intra = true
		}

		lenPos, _ := d.frame.ReserveNAL()
		d.fragLenPos = lenPos
		d.frame.AppendBytes([]byte{hdr0, hdr1})
		d.fragStarted = true
	}

	if !d.fragStarted {
		return ErrParse
	}

	fragment := payload[3:]
	d.frame.AddRTPPacket(len(d.frame.Payload), len(fragment), payload[:3])
	d.frame.AppendBytes(fragment)

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
