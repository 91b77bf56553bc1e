//////////////////////////////////////////////////////////////////////////////
//
// Buffer decouples a fast producer from a slow consumer via a
// channel, implementing io.Reader and io.WriteCloser. Used by Recorder
// to keep a tapped stream's raw bytes flowing to disk without making
// the connection's read loop wait on file I/O.
//
//////////////////////////////////////////////////////////////////////////////

package rtmpstream

import (
	"io"
)

type Buffer struct {
	ch   chan []byte
	dead chan struct{}
}

func NewBuffer() *Buffer {
	return &Buffer{
		ch:   make(chan []byte, 32),
		dead: make(chan struct{}),
	}
}

// Read next frame from the buffer. Blocks until either a frame is available or
// the buffer is closed.
func (b *Buffer) Read(p []byte) (int, error) {
	select {
	case <-b.dead:
		return 0, io.EOF
	case buf := <-b.ch:
		n := copy(p, buf)
		if n < len(buf) {
			return n, io.ErrShortBuffer
		}
		return n, nil
	}
}

// Write frame into buffer. Blocks until the channel has space for it or the
// buffer is closed.
func (b *Buffer) Write(p []byte) (int, error) {
	// Copy p into a temporary buffer, that we can send across the channel.
	buf := append([]byte(nil), p...)

	select {
	case b.ch <- buf:
		return len(buf), nil
	case <-b.dead:
		return 0, io.ErrClosedPipe
	}
}

// Close the buffer. Further reads return io.EOF and further writes return
// io.ErrClosedPipe, except that a call whose channel operation is also ready
// may still complete it (select picks among ready cases at random).
func (b *Buffer) Close() error {
	select {
	case <-b.dead:
	default:
		close(b.dead)
	}
	return nil
}
