// Package media defines the codec-agnostic frame types shared by the
// RTMP ingest path and the RTP depacketizer/packetizer: VideoFrame,
// AudioFrame, and the MediaFrame union they both satisfy.
package media

import "time"

// Codec identifies the payload codec carried by a MediaFrame.
type Codec int

const (
	CodecUnknown Codec = iota
	H264
	H265
	AAC
	PCMU
	PCMA
	Opus
)

func (c Codec) String() string {
	switch c {
	case H264:
		return "h264"
	case H265:
		return "h265"
	case AAC:
		return "aac"
	case PCMU:
		return "pcmu"
	case PCMA:
		return "pcma"
	case Opus:
		return "opus"
	default:
		return "unknown"
	}
}

// RTPPacketizationInfo describes one RTP packet's worth of payload
// already materialized inside VideoFrame.Payload: the byte offset and
// length of the portion to copy, plus an optional prefix (FU
// indicator/header bytes) that isn't itself part of Payload.
type RTPPacketizationInfo struct {
	Pos    int
	Size   int
	Prefix []byte
}

// common holds the fields shared by every MediaFrame implementation:
// codec, ssrc, timestamp, clockRate, arrivalTime, senderTime.
type common struct {
	Codec       Codec
	SSRC        uint32
	Timestamp   uint32 // in ClockRate units
	ClockRate   uint32
	ArrivalTime time.Time
	SenderTime  time.Time
}

// MediaFrame is the union of VideoFrame and AudioFrame.
type MediaFrame interface {
	GetCodec() Codec
	GetSSRC() uint32
	GetTimestamp() uint32
	GetClockRate() uint32
	GetArrivalTime() time.Time
	GetSenderTime() time.Time
	IsVideo() bool
}

func (c *common) GetCodec() Codec              { return c.Codec }
func (c *common) GetSSRC() uint32              { return c.SSRC }
func (c *common) GetTimestamp() uint32         { return c.Timestamp }
func (c *common) GetClockRate() uint32         { return c.ClockRate }
func (c *common) GetArrivalTime() time.Time    { return c.ArrivalTime }
func (c *common) GetSenderTime() time.Time     { return c.SenderTime }
func (c *common) SetSSRC(ssrc uint32)          { c.SSRC = ssrc }
func (c *common) SetTimestamp(ts uint32)       { c.Timestamp = ts }
func (c *common) SetClockRate(rate uint32)     { c.ClockRate = rate }
func (c *common) SetArrivalTime(t time.Time)   { c.ArrivalTime = t }
func (c *common) SetSenderTime(t time.Time)    { c.SenderTime = t }

// VideoFrame is an ordered sequence of length-prefixed NAL units plus
// the RTP packetization descriptors needed to re-emit them without a
// second pass over the bitstream.
type VideoFrame struct {
	common

	Width, Height int
	Intra         bool

	// Payload holds each NAL unit as a 4-byte big-endian length prefix
	// followed by the NAL bytes, concatenated in arrival/emission order.
	Payload []byte

	// RTPInfo describes how Payload maps onto RTP packets: each entry
	// is either a single-NAL reference (Prefix == nil) or one
	// fragmentation-unit fragment (Prefix holding the FU bytes).
	RTPInfo []RTPPacketizationInfo

	// ParameterSets accumulates out-of-band SPS/PPS/VPS NAL units (with
	// their own 4-byte length prefix) seen on this frame, so a listener
	// can replay codec configuration to a newly joined subscriber.
	ParameterSets [][]byte
}

// NewVideoFrame creates an empty VideoFrame for the given codec.
func NewVideoFrame(codec Codec) *VideoFrame {
	return &VideoFrame{common: common{Codec: codec}}
}

func (f *VideoFrame) IsVideo() bool { return true }

// SetSSRC, SetTimestamp, SetClockRate, SetArrivalTime, SetSenderTime are
// promoted from common.

// Reset clears payload/packetization state so the frame can be reused
// for the next access unit, keeping codec and clock rate.
func (f *VideoFrame) Reset() {
	f.Timestamp = 0
	f.Intra = false
	f.Payload = f.Payload[:0]
	f.RTPInfo = f.RTPInfo[:0]
	f.ParameterSets = nil
}

// AppendNAL appends one length-prefixed NAL unit to Payload and returns
// the byte offset at which the NAL body (after the 4-byte length) begins.
func (f *VideoFrame) AppendNAL(nal []byte) (pos int) {
	var lenPrefix [4]byte
	lenPrefix[0] = byte(len(nal) >> 24)
	lenPrefix[1] = byte(len(nal) >> 16)
	lenPrefix[2] = byte(len(nal) >> 8)
	lenPrefix[3] = byte(len(nal))
	f.Payload = append(f.Payload, lenPrefix[:]...)
	pos = len(f.Payload)
	f.Payload = append(f.Payload, nal...)
	return pos
}

// ReserveNAL appends a placeholder 4-byte length prefix (to be
// back-patched once the NAL's final size is known) and returns the
// offset of that prefix and the offset the NAL body will start at.
func (f *VideoFrame) ReserveNAL() (lenPos, pos int) {
	lenPos = len(f.Payload)
	f.Payload = append(f.Payload, 0, 0, 0, 0)
	pos = len(f.Payload)
	return
}

// AppendBytes appends raw bytes (no length prefix) to Payload, e.g. NAL
// header bytes or fragment payload, and returns the offset they start at.
func (f *VideoFrame) AppendBytes(b []byte) (pos int) {
	pos = len(f.Payload)
	f.Payload = append(f.Payload, b...)
	return pos
}

// PatchLength rewrites the 4-byte length prefix at lenPos to equal size.
func (f *VideoFrame) PatchLength(lenPos, size int) {
	f.Payload[lenPos] = byte(size >> 24)
	f.Payload[lenPos+1] = byte(size >> 16)
	f.Payload[lenPos+2] = byte(size >> 8)
	f.Payload[lenPos+3] = byte(size)
}

// AddRTPPacket records a single-NAL (prefix == nil) or FU fragment RTP
// packetization descriptor over Payload[pos:pos+size].
func (f *VideoFrame) AddRTPPacket(pos, size int, prefix []byte) {
	var p []byte
	if len(prefix) > 0 {
		p = append([]byte(nil), prefix...)
	}
	f.RTPInfo = append(f.RTPInfo, RTPPacketizationInfo{Pos: pos, Size: size, Prefix: p})
}

// AudioFrame carries one opaque, unfragmented audio payload (RTMP AAC/
// PCMU bodies are never split across RTP packets the way video NALs are).
type AudioFrame struct {
	common

	Payload []byte
}

// NewAudioFrame creates an empty AudioFrame for the given codec.
func NewAudioFrame(codec Codec) *AudioFrame {
	return &AudioFrame{common: common{Codec: codec}}
}

func (f *AudioFrame) IsVideo() bool { return false }
