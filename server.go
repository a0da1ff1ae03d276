package cairovnc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gerph/cairo-vnc/recording"
)

// ServerOptions configures a Server. Fields map 1:1 onto the construction
// options the host-facing interface describes, plus the logging and
// recording hooks ambient to this codebase.
type ServerOptions struct {
	Host string
	Port int

	// Password is required for full-control VNC Authentication; empty
	// disables it. ReadOnlyPassword, if set independently, authenticates
	// a view-only session. Both empty means the None security type.
	Password         string
	ReadOnlyPassword string

	DisplayName string

	// MaxClients caps concurrently registered connections; zero means
	// unlimited.
	MaxClients int

	// MaxFramerate bounds both the snapshot cache's recapture rate and
	// each connection's update-send rate, in frames per second.
	MaxFramerate float64

	// EventQueueLength bounds the shared input event queue; zero means a
	// reasonable default rather than literally unbounded, since an
	// unbounded Go channel cannot be allocated up front.
	EventQueueLength int

	// PushRequests enables push-frames mode by default for every client;
	// a client can also opt itself in via encoding -1011 regardless of
	// this setting.
	PushRequests bool

	// ReadOnly makes every connection read-only regardless of which
	// password (if any) authenticated it. Defaults to true unless both
	// Password and ReadOnlyPassword are set (spec.md §6).
	ReadOnly bool

	// ClientTimeout bounds individual message-payload reads in the active
	// loop; defaults to clientTimeout.
	ClientTimeout time.Duration

	// OnClientCutText is invoked with the decoded text of each
	// ClientCutText message from a non-read-only client. Nil means the
	// default: logging only (spec.md §4.5).
	OnClientCutText func(text string)

	Logger   *slog.Logger
	Recorder recording.Recorder
}

func (o *ServerOptions) setDefaults() {
	if o.DisplayName == "" {
		o.DisplayName = "cairo-vnc"
	}
	if o.MaxFramerate <= 0 {
		o.MaxFramerate = 30
	}
	if o.EventQueueLength <= 0 {
		o.EventQueueLength = 256
	}
	if o.ClientTimeout <= 0 {
		o.ClientTimeout = clientTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if !o.ReadOnly && (o.Password == "" || o.ReadOnlyPassword == "") {
		o.ReadOnly = true
	}
}

func (o *ServerOptions) effectiveMaxFramerate() float64 {
	if o.MaxFramerate <= 0 {
		return 30
	}
	return o.MaxFramerate
}

// Server is the supervisor: it accepts connections, owns the shared
// snapshot cache and event queue, and broadcasts host-side change
// notifications to every active connection (spec.md §4.7).
type Server struct {
	options  *ServerOptions
	security *securityRegistry

	listener net.Listener

	mu          sync.Mutex
	clients     map[*connection]struct{}
	surface     Surface
	lock        Locker
	snapshots   *SnapshotCache
	displayName string
	closed      bool

	events *EventQueue

	wg sync.WaitGroup
}

// NewServer builds a Server bound to surface (guarded by lock) but does not
// start listening; call Serve to accept connections.
func NewServer(options ServerOptions, surface Surface, lock Locker) *Server {
	options.setDefaults()

	return &Server{
		options:     &options,
		security:    buildSecurityRegistry(options.Password, options.ReadOnlyPassword),
		clients:     make(map[*connection]struct{}),
		surface:     surface,
		lock:        lock,
		snapshots:   NewSnapshotCache(surface, lock, options.effectiveMaxFramerate()),
		displayName: options.DisplayName,
		events:      NewEventQueue(options.EventQueueLength),
	}
}

// Serve accepts connections on options.Host:options.Port until Close is
// called. It blocks for the lifetime of the server, matching the teacher's
// Server.Start (server.go).
func (s *Server) Serve() error {
	addr := fmt.Sprintf("%s:%d", s.options.Host, s.options.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("cairovnc: listen on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.options.Logger.Info("vnc server listening", "addr", addr)

	for {
		netConn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("cairovnc: accept: %w", err)
		}
		go s.handle(netConn)
	}
}

// rejectForCapacity implements max_clients enforcement by accepting then
// immediately closing the connection, per spec.md §4.7.
func (s *Server) rejectForCapacity(netConn net.Conn) {
	s.options.Logger.Info("rejecting client: capacity exceeded", "remote", netConn.RemoteAddr())
	netConn.Close()
}

// addClient records c in the registry, enforcing MaxClients (spec.md
// §4.7's accept-then-close capacity policy: the TCP accept already
// happened, so over-capacity connections are closed rather than refused at
// the listener).
func (s *Server) addClient(c *connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.options.MaxClients > 0 && len(s.clients) >= s.options.MaxClients {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

func (s *Server) removeClient(c *connection) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) handle(netConn net.Conn) {
	s.wg.Add(1)
	defer s.wg.Done()

	c := newConnection(s, netConn)
	if !s.addClient(c) {
		s.rejectForCapacity(netConn)
		return
	}
	defer s.removeClient(c)

	s.options.Logger.Info("client connected", "remote", netConn.RemoteAddr())
	c.serve()
	s.options.Logger.Info("client disconnected", "remote", netConn.RemoteAddr())
}

// DisplayName returns the current desktop name.
func (s *Server) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayName
}

// ReplaceSurface swaps the surface the snapshot cache reads from. If
// surface is identical to the current one, only the lock is replaced and
// no client is notified of a display change (spec.md §4.7).
func (s *Server) ReplaceSurface(surface Surface, lock Locker) {
	s.mu.Lock()
	sameSurface := s.surface == surface
	s.surface = surface
	s.lock = lock
	s.snapshots = NewSnapshotCache(surface, lock, s.options.effectiveMaxFramerate())
	clients := s.clientSnapshot()
	s.mu.Unlock()

	if sameSurface {
		return
	}
	for _, c := range clients {
		c.displayChanged = true
	}
}

// SetDisplayName updates the desktop name and flags every connection to
// notify its client on its next tick.
func (s *Server) SetDisplayName(name string) {
	s.mu.Lock()
	s.displayName = name
	clients := s.clientSnapshot()
	s.mu.Unlock()

	for _, c := range clients {
		c.nameChanged = true
	}
}

// NotifyFrame flags every connection that a new frame is ready, which
// matters only to clients in push-frames mode (spec.md §4.6).
func (s *Server) NotifyFrame() {
	s.mu.Lock()
	clients := s.clientSnapshot()
	s.mu.Unlock()

	for _, c := range clients {
		c.framePushed = true
	}
}

// clientSnapshot returns a stable slice of active connections, read without
// holding the registry lock by callers once returned (spec.md §5).
func (s *Server) clientSnapshot() []*connection {
	out := make([]*connection, 0, len(s.clients))
	for c := range s.clients {
		out = append(out, c)
	}
	return out
}

// NextEvent returns the next input event, blocking until one arrives or ctx
// is done.
func (s *Server) NextEvent(ctx context.Context) (Event, bool) {
	return s.events.Next(ctx.Done())
}

// Close stops accepting new connections, closes every active connection's
// stream, and drains the event queue so no blocked producer leaks a
// goroutine (spec.md §4.7). Draining runs concurrently with waiting for
// connection goroutines to exit: a handler can be parked in EventQueue.Push
// on a full queue at the moment its stream closes, and only a concurrent
// drain — not the closed stream — frees it.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	clients := s.clientSnapshot()
	s.mu.Unlock()

	for _, c := range clients {
		c.stream.Close()
	}

	stopDrain := make(chan struct{})
	go s.events.Drain(stopDrain)
	s.wg.Wait()
	close(stopDrain)

	return err
}
