package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/1broseidon/surfacebridge/internal/binary"
)

// HandlerFunc serves one request. It decodes req completely, writes the
// response fields to resp and returns nil, or returns an error that is sent
// back to the client as a failure frame.
type HandlerFunc func(ctx context.Context, peer *Peer, req *binary.Reader, resp *binary.Writer) error

// Peer is one connected client.
type Peer struct {
	id     uint64
	conn   net.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	// afterReply is only touched by the goroutine serving this peer.
	afterReply []func()
}

// AfterReply schedules fn to run once the response to the request being
// handled has been written. It must be called from a HandlerFunc.
func (p *Peer) AfterReply(fn func()) {
	p.afterReply = append(p.afterReply, fn)
}

// ID returns a process-unique peer number.
func (p *Peer) ID() uint64 {
	return p.id
}

// Notify sends an unsolicited message on channel. No response is expected.
func (p *Peer) Notify(channel string, encode func(*binary.Writer)) error {
	w := binary.NewWriter()
	if encode != nil {
		encode(w)
	}
	return p.write(Frame{Kind: FrameNotification, Channel: channel, Payload: w.Bytes()})
}

func (p *Peer) write(f Frame) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return WriteFrame(p.conn, f)
}

// Server accepts client connections on a unix socket and dispatches their
// requests by channel. Requests from one connection are served in order.
type Server struct {
	socketPath string
	listener   net.Listener
	logger     *zap.Logger

	mu           sync.RWMutex
	handlers     map[string]HandlerFunc
	onDisconnect func(*Peer)

	nextPeer atomic.Uint64
	peersMu  sync.Mutex
	peers    map[*Peer]struct{}

	shuttingDown bool
	shutdownMu   sync.Mutex
	wg           sync.WaitGroup
}

// NewServer creates a server for socketPath. Call HandleFunc for every
// channel, then Start.
func NewServer(socketPath string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		socketPath: socketPath,
		logger:     logger,
		handlers:   make(map[string]HandlerFunc),
		peers:      make(map[*Peer]struct{}),
	}
}

// HandleFunc registers h for requests on channel.
func (s *Server) HandleFunc(channel string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.handlers[channel]; dup {
		panic(fmt.Sprintf("ipc: handler for %s registered twice", channel))
	}
	s.handlers[channel] = h
}

// OnDisconnect sets a callback invoked after a peer's connection ends.
func (s *Server) OnDisconnect(fn func(*Peer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnect = fn
}

// Start begins listening for connections.
func (s *Server) Start() error {
	// Remove a stale socket left by a previous run.
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create host socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Info("host listening", zap.String("socket", s.socketPath))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			stopping := s.shuttingDown
			s.shutdownMu.Unlock()
			if stopping || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept error", zap.Error(err))
			continue
		}

		peer := &Peer{id: s.nextPeer.Add(1), conn: conn, logger: s.logger}
		s.peersMu.Lock()
		s.peers[peer] = struct{}{}
		s.peersMu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(peer)
	}
}

func (s *Server) handleConnection(peer *Peer) {
	defer s.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		peer.conn.Close()

		s.peersMu.Lock()
		delete(s.peers, peer)
		s.peersMu.Unlock()

		s.mu.RLock()
		fn := s.onDisconnect
		s.mu.RUnlock()
		if fn != nil {
			fn(peer)
		}
	}()

	logger := s.logger.With(zap.Uint64("peer", peer.id))
	logger.Debug("client connected")

	reader := bufio.NewReader(peer.conn)
	for {
		f, err := ReadFrame(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Warn("read error", zap.Error(err))
			}
			logger.Debug("client disconnected")
			return
		}
		if f.Kind != FrameRequest {
			logger.Warn("unexpected frame from client", zap.Stringer("kind", f.Kind), zap.String("channel", f.Channel))
			continue
		}

		reply := s.serve(ctx, peer, f)
		err = peer.write(reply)
		after := peer.afterReply
		peer.afterReply = nil
		for _, fn := range after {
			fn()
		}
		if err != nil {
			logger.Warn("failed to send response", zap.String("channel", f.Channel), zap.Error(err))
			return
		}
	}
}

// serve runs the handler for one request and builds the reply frame.
func (s *Server) serve(ctx context.Context, peer *Peer, f Frame) (reply Frame) {
	reply = Frame{Kind: FrameResponse, CallID: f.CallID, Channel: f.Channel}

	s.mu.RLock()
	h := s.handlers[f.Channel]
	s.mu.RUnlock()
	if h == nil {
		reply.Kind = FrameFailure
		reply.Payload = []byte("unknown channel " + f.Channel)
		return reply
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic recovered", zap.String("channel", f.Channel), zap.Any("panic", r))
			reply.Kind = FrameFailure
			reply.Payload = []byte(fmt.Sprintf("handler panic: %v", r))
		}
	}()

	resp := binary.NewWriter()
	if err := h(ctx, peer, binary.NewReader(f.Payload), resp); err != nil {
		s.logger.Debug("request failed", zap.String("channel", f.Channel), zap.Error(err))
		reply.Kind = FrameFailure
		reply.Payload = []byte(err.Error())
		return reply
	}
	reply.Payload = resp.Bytes()
	return reply
}

// Stop closes the listener and every client connection, then waits for
// connection handlers to return.
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	if s.shuttingDown {
		s.shutdownMu.Unlock()
		return
	}
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}

	s.peersMu.Lock()
	for p := range s.peers {
		p.conn.Close()
	}
	s.peersMu.Unlock()

	s.wg.Wait()
	os.Remove(s.socketPath)
}
