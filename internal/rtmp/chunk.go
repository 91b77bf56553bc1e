package rtmp

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// ErrParse wraps every malformed-input error this package returns, so
// callers can test for it with errors.Is regardless of the specific
// cause.
var ErrParse = errors.New("rtmp: parse error")

const (
	defaultChunkSize = 128

	// extendedTimestampMarker is the sentinel chunk timestamp (or
	// timestamp delta) value that means "see the 4-byte extended
	// timestamp field instead".
	extendedTimestampMarker = 0xffffff
)

type chunkFormat uint8

const (
	chunkFormat0 chunkFormat = iota // full header
	chunkFormat1                    // no stream id
	chunkFormat2                    // timestamp delta only
	chunkFormat3                    // no header, inherits everything
)

var chunkHeaderSize = [4]int{11, 7, 3, 0}

// inputChunkStream holds reassembly state for one chunk stream id on
// the read side.
type inputChunkStream struct {
	header     MessageHeader
	delta      uint32
	extended   bool
	chunkCount uint64

	body []byte
}

// outputChunkStream remembers the last header sent on one chunk
// stream id, so later messages on it can be sent as Type 1/2/3 deltas.
type outputChunkStream struct {
	header  MessageHeader
	delta   uint32
	hasSent bool
}

// ChunkConn reads and writes RTMP messages over an already
// handshaken connection: chunk basic/Type0-3 header coding, per-csid
// reassembly, and window-acknowledgement bookkeeping.
type ChunkConn struct {
	r *bufio.Reader
	w *bufio.Writer

	inChunkSize  uint32
	outChunkSize uint32

	inputs  map[ChunkStreamID]*inputChunkStream
	outputs map[ChunkStreamID]*outputChunkStream

	// Window acknowledgement: how many bytes may arrive before we owe
	// the peer an Acknowledgement control message.
	windowAckSize uint32
	bytesRead     uint64
	ackedThrough  uint64

	// peerWindowAckSize is what we last told the peer, via Set Peer
	// Bandwidth, to use as its own ack window. Once this side has sent a
	// Dynamic limit type, a later Dynamic send may only lower it, never
	// raise it.
	peerWindowAckSize   uint32
	peerLimitWasDynamic bool
}

// NewChunkConn wraps rw, assumed to already be past the RTMP
// handshake.
func NewChunkConn(rw io.ReadWriter) *ChunkConn {
	return &ChunkConn{
		r:            bufio.NewReader(rw),
		w:            bufio.NewWriter(rw),
		inChunkSize:  defaultChunkSize,
		outChunkSize: defaultChunkSize,
		inputs:       make(map[ChunkStreamID]*inputChunkStream),
		outputs:      make(map[ChunkStreamID]*outputChunkStream),
	}
}

// SetWindowAckSize configures how many inbound bytes may accumulate
// between Acknowledgement messages this side sends.
func (c *ChunkConn) SetWindowAckSize(size uint32) {
	c.windowAckSize = size
}

// BytesRead reports the cumulative number of payload bytes read off
// the wire, for callers that want to drive their own bandwidth
// accounting.
func (c *ChunkConn) BytesRead() uint64 {
	return c.bytesRead
}

// ReadMessage reads and reassembles chunks until one full RTMP
// message is available, applying any Set Chunk Size control message
// it sees along the way and emitting Acknowledgements as the window
// demands.
func (c *ChunkConn) ReadMessage() (*Message, error) {
	for {
		csid, format, err := c.readBasicHeader()
		if err != nil {
			return nil, err
		}

		stream, ok := c.inputs[csid]
		if !ok {
			stream = &inputChunkStream{}
			c.inputs[csid] = stream
		}

		if err := c.readChunkMessageHeader(stream, format, csid); err != nil {
			return nil, err
		}

		need := int(stream.header.MessageLength) - len(stream.body)
		if need < 0 {
			return nil, errors.Wrap(ErrParse, "message length shrank mid-assembly")
		}

		chunked := need
		if chunked > int(c.inChunkSize) {
			chunked = int(c.inChunkSize)
		}

		if chunked > 0 {
			buf := make([]byte, chunked)
			if _, err := io.ReadFull(c.r, buf); err != nil {
				return nil, errors.Wrap(err, "rtmp: read chunk payload")
			}
			stream.body = append(stream.body, buf...)
			c.bytesRead += uint64(chunked)
		}
		stream.chunkCount++

		if uint32(len(stream.body)) < stream.header.MessageLength {
			c.maybeAck()
			continue
		}

		msg := &Message{MessageHeader: stream.header, Body: stream.body}
		stream.body = nil

		if msg.MessageType == MessageTypeSetChunkSize {
			if len(msg.Body) < 4 {
				return nil, errors.Wrap(ErrParse, "short Set Chunk Size body")
			}
			c.inChunkSize = binary.BigEndian.Uint32(msg.Body)
		}

		c.maybeAck()
		return msg, nil
	}
}

// maybeAck sends an Acknowledgement whenever enough bytes have
// arrived since the last one to cross the configured window.
func (c *ChunkConn) maybeAck() error {
	if c.windowAckSize == 0 {
		return nil
	}
	for c.bytesRead-c.ackedThrough >= uint64(c.windowAckSize) {
		c.ackedThrough += uint64(c.windowAckSize)
		if err := c.writeControlUint32(MessageTypeAcknowledgement, uint32(c.ackedThrough)); err != nil {
			return err
		}
	}
	return nil
}

func (c *ChunkConn) readBasicHeader() (ChunkStreamID, chunkFormat, error) {
	b0, err := c.r.ReadByte()
	if err != nil {
		return 0, 0, errors.Wrap(err, "rtmp: read basic header")
	}
	format := chunkFormat((b0 >> 6) & 0x03)
	cid := uint32(b0 & 0x3f)

	switch cid {
	case 0:
		b1, err := c.r.ReadByte()
		if err != nil {
			return 0, 0, errors.Wrap(err, "rtmp: read basic header")
		}
		cid = 64 + uint32(b1)
	case 1:
		var b [2]byte
		if _, err := io.ReadFull(c.r, b[:]); err != nil {
			return 0, 0, errors.Wrap(err, "rtmp: read basic header")
		}
		cid = 64 + uint32(b[0]) + uint32(b[1])*256
	}

	return ChunkStreamID(cid), format, nil
}

func (c *ChunkConn) readChunkMessageHeader(stream *inputChunkStream, format chunkFormat, csid ChunkStreamID) error {
	if stream.chunkCount == 0 && format != chunkFormat0 {
		return errors.Wrapf(ErrParse, "first chunk on stream %d must be type 0, got %d", csid, format)
	}
	// fresh: this chunk starts a new message rather than continuing one.
	fresh := len(stream.body) == 0
	if !fresh && format == chunkFormat0 {
		return errors.Wrap(ErrParse, "type 0 chunk mid-message")
	}

	buf := make([]byte, chunkHeaderSize[format])
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return errors.Wrap(err, "rtmp: read chunk message header")
	}

	h := &stream.header
	h.ChunkStreamID = csid

	if format <= chunkFormat2 {
		stream.delta = uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
		buf = buf[3:]

		stream.extended = stream.delta >= extendedTimestampMarker
		if !stream.extended {
			if format == chunkFormat0 {
				h.Timestamp = stream.delta
			} else {
				h.Timestamp += stream.delta
			}
		}

		if format <= chunkFormat1 {
			h.MessageLength = uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
			buf = buf[3:]
			h.MessageType = MessageType(buf[0])
			buf = buf[1:]
			if format == chunkFormat0 {
				h.StreamID = binary.LittleEndian.Uint32(buf)
			}
		}
	} else if fresh && !stream.extended {
		h.Timestamp += stream.delta
	}

	if stream.extended {
		var ext [4]byte
		if _, err := io.ReadFull(c.r, ext[:]); err != nil {
			return errors.Wrap(err, "rtmp: read extended timestamp")
		}
		// A Type-3 chunk continuing a message already in progress
		// still carries this field on the wire (most encoders send it
		// unconditionally), but it doesn't change that message's
		// timestamp; only a fresh chunk (format 0-2, or a bare
		// leading Type-3) does.
		if format != chunkFormat3 || fresh {
			ts := binary.BigEndian.Uint32(ext[:]) &^ 0x80000000
			if format == chunkFormat0 {
				h.Timestamp = ts
			} else {
				h.Timestamp += ts
			}
		}
	}

	return nil
}

// WriteMessage chunks body according to mt/streamID/timestamp,
// preferring a delta encoding against whatever was last sent on csid.
func (c *ChunkConn) WriteMessage(csid ChunkStreamID, mt MessageType, streamID uint32, timestamp uint32, body []byte) error {
	out, ok := c.outputs[csid]
	if !ok {
		out = &outputChunkStream{}
		c.outputs[csid] = out
	}

	header := MessageHeader{
		Timestamp:     timestamp,
		MessageLength: uint32(len(body)),
		MessageType:   mt,
		StreamID:      streamID,
		ChunkStreamID: csid,
	}

	firstHeader, err := c.encodeHeader(out, header)
	if err != nil {
		return err
	}
	contHeader, err := c.encodeType3(out, header)
	if err != nil {
		return err
	}

	for remaining, wroteOnce := body, false; !wroteOnce || len(remaining) > 0; wroteOnce = true {
		h := contHeader
		if !wroteOnce {
			h = firstHeader
		}
		if _, err := c.w.Write(h); err != nil {
			return errors.Wrap(err, "rtmp: write chunk header")
		}
		n := len(remaining)
		if n > int(c.outChunkSize) {
			n = int(c.outChunkSize)
		}
		if _, err := c.w.Write(remaining[:n]); err != nil {
			return errors.Wrap(err, "rtmp: write chunk payload")
		}
		remaining = remaining[n:]
	}

	out.header = header
	out.hasSent = true
	return c.w.Flush()
}

// encodeHeader produces the basic+Type-0 header for the first chunk
// of a message, using a Type-1/2 delta instead when cheaper.
func (c *ChunkConn) encodeHeader(out *outputChunkStream, h MessageHeader) ([]byte, error) {
	format := chunkFormat0
	delta := h.Timestamp
	if out.hasSent && out.header.StreamID == h.StreamID {
		if out.header.MessageType == h.MessageType && out.header.MessageLength == h.MessageLength {
			format = chunkFormat2
		} else {
			format = chunkFormat1
		}
		delta = h.Timestamp - out.header.Timestamp
	}

	ext := delta >= extendedTimestampMarker
	buf := []byte{byte(format)<<6 | basicHeaderCID(h.ChunkStreamID)[0]}
	buf = append(buf, basicHeaderCID(h.ChunkStreamID)[1:]...)

	tsField := delta
	if ext {
		tsField = extendedTimestampMarker
	}
	buf = append(buf, byte(tsField>>16), byte(tsField>>8), byte(tsField))

	if format <= chunkFormat1 {
		buf = append(buf,
			byte(h.MessageLength>>16), byte(h.MessageLength>>8), byte(h.MessageLength),
			byte(h.MessageType),
		)
	}
	if format == chunkFormat0 {
		var sid [4]byte
		binary.LittleEndian.PutUint32(sid[:], h.StreamID)
		buf = append(buf, sid[:]...)
	}
	if ext {
		var tbuf [4]byte
		binary.BigEndian.PutUint32(tbuf[:], delta)
		buf = append(buf, tbuf[:]...)
	}
	return buf, nil
}

func (c *ChunkConn) encodeType3(out *outputChunkStream, h MessageHeader) ([]byte, error) {
	cidBytes := basicHeaderCID(h.ChunkStreamID)
	buf := []byte{byte(chunkFormat3)<<6 | cidBytes[0]}
	buf = append(buf, cidBytes[1:]...)
	return buf, nil
}

// basicHeaderCID encodes a chunk stream id into its basic-header
// bytes: the first byte's low 6 bits (or 0/1 plus 1-2 extension
// bytes) per the RTMP basic header layout.
func basicHeaderCID(csid ChunkStreamID) []byte {
	id := uint32(csid)
	switch {
	case id < 64:
		return []byte{byte(id)}
	case id < 320:
		return []byte{0, byte(id - 64)}
	default:
		rem := id - 64
		return []byte{1, byte(rem % 256), byte(rem / 256)}
	}
}

func (c *ChunkConn) writeControlUint32(mt MessageType, v uint32) error {
	var body [4]byte
	binary.BigEndian.PutUint32(body[:], v)
	return c.WriteMessage(ChunkStreamIDProtocolControl, mt, 0, 0, body[:])
}

// WriteSetChunkSize sets this side's outbound chunk size and tells
// the peer to expect it.
func (c *ChunkConn) WriteSetChunkSize(size uint32) error {
	c.outChunkSize = size
	return c.writeControlUint32(MessageTypeSetChunkSize, size)
}

// WriteWindowAckSize tells the peer how many bytes it may send us
// before we require an Acknowledgement from it.
func (c *ChunkConn) WriteWindowAckSize(size uint32) error {
	c.windowAckSize = size
	return c.writeControlUint32(MessageTypeWindowAcknowledgementSize, size)
}

// WriteSetPeerBandwidth tells the peer the window it should use for
// its own outbound Acknowledgements. A Dynamic limit type is only
// ever lowered on a later call, never raised, matching how real
// publishers renegotiate bandwidth without oscillating the window.
func (c *ChunkConn) WriteSetPeerBandwidth(size uint32, limit LimitType) error {
	if limit == LimitDynamic && c.peerLimitWasDynamic && size > c.peerWindowAckSize {
		size = c.peerWindowAckSize
	}
	var body [5]byte
	binary.BigEndian.PutUint32(body[:4], size)
	body[4] = byte(limit)
	if err := c.WriteMessage(ChunkStreamIDProtocolControl, MessageTypeSetPeerBandwidth, 0, 0, body[:]); err != nil {
		return err
	}
	c.peerWindowAckSize = size
	c.peerLimitWasDynamic = limit == LimitDynamic
	return nil
}
