package rtmpstream

import (
	"io"
	"sync"
)

// Recorder copies a NetStream's tapped raw FLV-tag bytes to an
// io.Writer (typically a file) on its own goroutine, so a slow disk
// never backpressures the stream's connection.
type Recorder struct {
	buf  *Buffer
	tap  <-chan []byte
	ns   *NetStream
	wg   sync.WaitGroup
	once sync.Once
}

// StartRecording taps ns and copies every message body it
// demultiplexes into w until Stop is called or ns is destroyed.
// tapDepth bounds how many messages may be buffered before the
// recorder starts dropping the oldest ones, per Broadcaster's normal
// backlog policy.
func StartRecording(ns *NetStream, w io.Writer, tapDepth int) *Recorder {
	r := &Recorder{
		buf: NewBuffer(),
		tap: ns.Tap(tapDepth),
		ns:  ns,
	}

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		for body := range r.tap {
			if _, err := r.buf.Write(body); err != nil {
				return
			}
		}
		r.buf.Close()
	}()
	go func() {
		defer r.wg.Done()
		frame := make([]byte, 65536)
		for {
			n, err := r.buf.Read(frame)
			if n > 0 {
				if _, werr := w.Write(frame[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	return r
}

// Stop untaps the stream and waits for buffered bytes to finish
// writing.
func (r *Recorder) Stop() {
	r.once.Do(func() {
		r.ns.Untap(r.tap)
		r.buf.Close()
	})
	r.wg.Wait()
}
