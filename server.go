package rtmpstream

import (
	"crypto/tls"
	"net"

	"golang.org/x/net/netutil"

	"github.com/lanikai/rtmpstream/internal/logging"
)

// Server accepts RTMP connections and dispatches each to its own
// Connection. Every accepted connection runs independently; the
// Registry is the only state shared between them.
type Server struct {
	cfg      Config
	registry *Registry

	listener net.Listener
}

// NewServer creates a Server with cfg, applying documented defaults
// for any zero-valued field.
func NewServer(cfg Config) *Server {
	cfg = cfg.withDefaults()
	cacheSize := defaultRegistryCacheSize
	return &Server{
		cfg:      cfg,
		registry: NewRegistry(cacheSize),
	}
}

const defaultRegistryCacheSize = 256

// ListenAndServe opens cfg.ListenAddr and serves connections until the
// listener is closed.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return newError(KindTransport, "", "", "listen", err)
	}
	return s.Serve(l)
}

// ListenAndServeTLS is like ListenAndServe, but wraps the listener
// with crypto/tls for RTMPS. TLS itself is out of scope for this
// package beyond this thin wrapper.
func (s *Server) ListenAndServeTLS(certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return newError(KindTransport, "", "", "load certificate", err)
	}
	l, err := tls.Listen("tcp", s.cfg.ListenAddr, &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		return newError(KindTransport, "", "", "listen tls", err)
	}
	return s.Serve(l)
}

// Serve accepts connections from l until it is closed or returns an
// error. If cfg.MaxConnections is set, l is wrapped with
// netutil.LimitListener so excess connections queue at accept time
// instead of being handled and immediately rejected.
func (s *Server) Serve(l net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		l = netutil.LimitListener(l, s.cfg.MaxConnections)
	}
	s.listener = l

	log := logging.DefaultLogger.WithTag("rtmpstream")
	log.Info("listening on %s", l.Addr())

	for {
		conn, err := l.Accept()
		if err != nil {
			return newError(KindTransport, "", "", "accept", err)
		}
		c := newConnection(conn, s, s.cfg)
		go c.serve()
	}
}

// Close stops accepting new connections. Connections already accepted
// continue running until they close themselves.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}
