package rtmpstream

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/rtmpstream/internal/logging"
	"github.com/lanikai/rtmpstream/internal/rtmp"
	"github.com/lanikai/rtmpstream/internal/timeservice"
)

var log = logging.DefaultLogger.WithTag("rtmpstream")

// Connection is one accepted TCP connection speaking RTMP: the
// handshake, chunk stream, and command dispatch for every NetStream
// it creates. All state mutation happens on the connection's
// executor goroutine, so NetStream callbacks invoked from other
// connections' Async calls never race with this connection's own
// read loop.
type Connection struct {
	conn   net.Conn
	chunks *rtmp.ChunkConn
	exec   *timeservice.Executor
	server *Server
	cfg    Config

	app        string
	appEntry   *application
	nextStream uint32
	streams    map[uint32]*NetStream

	mu     sync.Mutex
	closed bool
}

func newConnection(c net.Conn, server *Server, cfg Config) *Connection {
	return &Connection{
		conn:    c,
		chunks:  rtmp.NewChunkConn(c),
		exec:    timeservice.NewExecutor(),
		server:  server,
		cfg:     cfg,
		streams: make(map[uint32]*NetStream),
	}
}

// serve runs the handshake and then the read loop. It blocks until
// the connection is closed, either by the peer or by an error.
func (c *Connection) serve() {
	go c.exec.Run()
	defer c.exec.Stop()
	defer c.Close()

	if c.cfg.HandshakeTimeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	}
	if _, err := rtmp.Handshake(c.conn); err != nil {
		log.Warn("handshake failed from %s: %s", c.conn.RemoteAddr(), err)
		return
	}
	c.conn.SetDeadline(time.Time{})

	c.chunks.SetWindowAckSize(c.cfg.WindowAckSize)
	if err := c.chunks.WriteWindowAckSize(c.cfg.WindowAckSize); err != nil {
		return
	}
	if err := c.chunks.WriteSetPeerBandwidth(c.cfg.WindowAckSize, rtmp.LimitDynamic); err != nil {
		return
	}
	if err := c.chunks.WriteSetChunkSize(c.cfg.ChunkSize); err != nil {
		return
	}

	for {
		if c.cfg.IdleTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
		}
		msg, err := c.chunks.ReadMessage()
		if err != nil {
			if !c.isClosed() {
				log.Debug("%s: read message: %s", c.conn.RemoteAddr(), err)
			}
			return
		}

		done := make(chan struct{})
		c.exec.Async(func() {
			defer close(done)
			if err := c.dispatch(msg); err != nil {
				log.Warn("%s: dispatch: %s", c.conn.RemoteAddr(), err)
			}
		})
		<-done
	}
}

func (c *Connection) dispatch(msg *rtmp.Message) error {
	switch msg.MessageType {
	case rtmp.MessageTypeAMF0Command, rtmp.MessageTypeAMF3Command:
		return c.dispatchCommand(msg)
	case rtmp.MessageTypeAudio:
		if ns, ok := c.streams[msg.StreamID]; ok {
			ns.dispatchAudio(msg.Body, msg.Timestamp)
		}
	case rtmp.MessageTypeVideo:
		if ns, ok := c.streams[msg.StreamID]; ok {
			ns.dispatchVideo(msg.Body, msg.Timestamp)
		}
	}
	return nil
}

func (c *Connection) dispatchCommand(msg *rtmp.Message) error {
	cmd, err := rtmp.DecodeCommand(msg.Body)
	if err != nil {
		return newError(KindParse, c.app, "", "decode command", err)
	}

	switch cmd.Name {
	case rtmp.CommandConnect:
		return c.handleConnect(cmd)
	case rtmp.CommandCreateStream:
		return c.handleCreateStream(cmd)
	case rtmp.CommandDeleteStream, rtmp.CommandCloseStream:
		return c.handleDeleteStream(cmd)
	case rtmp.CommandPublish:
		return c.handlePublish(msg.StreamID, cmd)
	case rtmp.CommandPlay:
		return c.handlePlay(msg.StreamID, cmd)
	case rtmp.CommandPause, rtmp.CommandReceiveAudio, rtmp.CommandReceiveVideo,
		rtmp.CommandReleaseStream, rtmp.CommandFCPublish:
		// Acknowledged implicitly; this server doesn't model
		// pause/bitrate-hint state beyond the publish/play lifecycle.
		return nil
	default:
		log.Debug("%s: unhandled command %q", c.conn.RemoteAddr(), cmd.Name)
		return nil
	}
}

func (c *Connection) handleConnect(cmd *rtmp.Command) error {
	app, _ := rtmp.GetString(cmd.Object, "app")
	tcURL, _ := rtmp.GetString(cmd.Object, "tcUrl")
	c.app = app
	c.appEntry = c.server.registry.applicationFor(app)
	log.Info("connect: app=%q tcUrl=%q", app, tcURL)

	infoObj, err := rtmp.EncodeObject(
		rtmp.KeyValue{Key: "level", Value: "status"},
		rtmp.KeyValue{Key: "code", Value: "NetConnection.Connect.Success"},
		rtmp.KeyValue{Key: "description", Value: "Connection succeeded."},
	)
	if err != nil {
		return err
	}
	props, err := rtmp.EncodeObject(
		rtmp.KeyValue{Key: "fmsVer", Value: "FMS/3,0,1,123"},
		rtmp.KeyValue{Key: "capabilities", Value: float64(31)},
	)
	if err != nil {
		return err
	}
	body, err := rtmp.EncodeCommand(rtmp.CommandResult, cmd.TransactionID, props, infoObj)
	if err != nil {
		return err
	}
	return c.chunks.WriteMessage(rtmp.ChunkStreamIDCommand, rtmp.MessageTypeAMF0Command, 0, 0, body)
}

func (c *Connection) handleCreateStream(cmd *rtmp.Command) error {
	c.nextStream++
	id := c.nextStream
	c.streams[id] = newNetStream(id, c.app, "", c)

	body, err := rtmp.EncodeCommand(rtmp.CommandResult, cmd.TransactionID, nil, float64(id))
	if err != nil {
		return err
	}
	return c.chunks.WriteMessage(rtmp.ChunkStreamIDCommand, rtmp.MessageTypeAMF0Command, 0, 0, body)
}

func (c *Connection) handleDeleteStream(cmd *rtmp.Command) error {
	if len(cmd.Args) == 0 {
		return nil
	}
	id, ok := cmd.Args[0].(float64)
	if !ok {
		return nil
	}
	c.destroyStream(uint32(id))
	return nil
}

func (c *Connection) handlePublish(streamID uint32, cmd *rtmp.Command) error {
	ns, ok := c.streams[streamID]
	if !ok || len(cmd.Args) == 0 {
		return errors.New("rtmpstream: publish on unknown stream")
	}
	name, _ := cmd.Args[0].(string)

	if a := c.cfg.Authorizer; a != nil {
		if err := a.AuthorizePublish(c.app, name, ""); err != nil {
			return c.rejectStream(streamID, "publish", err)
		}
	}

	ns.Name = name
	ns.publish()
	if c.appEntry != nil {
		c.appEntry.put(name, ns)
	}
	return c.statusEvent(streamID, "onStatus", "NetStream.Publish.Start", name+" is now published.")
}

func (c *Connection) handlePlay(streamID uint32, cmd *rtmp.Command) error {
	ns, ok := c.streams[streamID]
	if !ok || len(cmd.Args) == 0 {
		return errors.New("rtmpstream: play on unknown stream")
	}
	name, _ := cmd.Args[0].(string)

	if a := c.cfg.Authorizer; a != nil {
		if err := a.AuthorizePlay(c.app, name, ""); err != nil {
			return c.rejectStream(streamID, "play", err)
		}
	}

	ns.Name = name
	ns.play()

	if c.appEntry != nil {
		if publisher, ok := c.appEntry.get(name); ok {
			publisher.Subscribe(&streamForwarder{conn: c, streamID: streamID})
		}
	}

	return c.statusEvent(streamID, "onStatus", "NetStream.Play.Start", "Started playing "+name+".")
}

func (c *Connection) rejectStream(streamID uint32, verb string, cause error) error {
	log.Warn("%s rejected for app=%q: %s", verb, c.app, cause)
	return c.statusEvent(streamID, "onStatus", "NetStream."+verb+".BadName", "Unauthorized.")
}

func (c *Connection) statusEvent(streamID uint32, command, code, description string) error {
	info, err := rtmp.EncodeObject(
		rtmp.KeyValue{Key: "level", Value: "status"},
		rtmp.KeyValue{Key: "code", Value: code},
		rtmp.KeyValue{Key: "description", Value: description},
	)
	if err != nil {
		return err
	}
	body, err := rtmp.EncodeCommand(command, 0, nil, info)
	if err != nil {
		return err
	}
	return c.chunks.WriteMessage(rtmp.ChunkStreamIDCommand, rtmp.MessageTypeAMF0Command, streamID, 0, body)
}

func (c *Connection) destroyStream(id uint32) {
	ns, ok := c.streams[id]
	if !ok {
		return
	}
	if c.appEntry != nil && ns.Name != "" {
		c.appEntry.delete(ns.Name)
	}
	ns.destroy()
	delete(c.streams, id)
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close tears down every stream this connection owns and closes the
// underlying socket. Safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	for id := range c.streams {
		c.destroyStream(id)
	}
	return c.conn.Close()
}

// streamForwarder bridges a played stream's frame callbacks, invoked
// on the publisher's connection goroutine, onto the playing
// connection's own executor so the resulting WriteMessage calls never
// race with that connection's command dispatch.
type streamForwarder struct {
	conn     *Connection
	streamID uint32
}

func (f *streamForwarder) OnFrame(frame Frame) {
	f.conn.exec.Async(func() {
		if f.conn.isClosed() {
			return
		}
		mt := rtmp.MessageTypeVideo
		csid := rtmp.ChunkStreamIDVideo
		if !frame.Video {
			mt = rtmp.MessageTypeAudio
			csid = rtmp.ChunkStreamIDAudio
		}
		if err := f.conn.chunks.WriteMessage(csid, mt, f.streamID, frame.Timestamp, frame.Body); err != nil {
			log.Debug("%s: forward frame: %s", f.conn.conn.RemoteAddr(), err)
		}
	})
}
