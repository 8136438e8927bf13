package server

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/coreprotocols/gomodbus/buffer"
	"github.com/coreprotocols/gomodbus/common"
	"github.com/coreprotocols/gomodbus/logging"
	"github.com/coreprotocols/gomodbus/mbproto"
	"github.com/coreprotocols/gomodbus/store"
)

// TCPServer implements a Modbus TCP server. Each connection is served by
// one goroutine that reads a complete MBAP-framed request, hands its raw
// bytes to a Frame, processes it against the server's store, and writes
// back whatever FinalizeResponse produces.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4 (Modbus Protocol Description)
// Ref: Modbus_Messaging_Implementation_Guide_V1_0b.pdf, Section 3 (Modbus TCP/IP Protocol)
type TCPServer struct {
	address  string
	port     int
	listener net.Listener

	store store.Store

	running      bool
	clients      map[string]*clientConn
	clientsMutex sync.RWMutex
	mutex        sync.RWMutex
	logger       common.LoggerInterface
	stopChan     chan struct{}

	onConnect    func(ConnectedClient)
	onDisconnect func(ConnectedClient)
}

// TCPServerOption is a function type for configuring a TCPServer
type TCPServerOption func(*TCPServer)

// WithServerPort sets the TCP port for the server
func WithServerPort(port int) TCPServerOption {
	return func(s *TCPServer) {
		s.port = port
	}
}

// WithServerLogger sets the logger for the TCP server
func WithServerLogger(logger common.LoggerInterface) TCPServerOption {
	return func(s *TCPServer) {
		s.logger = logger
	}
}

// WithServerStore sets the register store backing the server.
func WithServerStore(st store.Store) TCPServerOption {
	return func(s *TCPServer) {
		s.store = st
	}
}

// WithOnClientConnect registers a callback invoked each time a client
// connects, after it has been added to ConnectedClients.
func WithOnClientConnect(fn func(ConnectedClient)) TCPServerOption {
	return func(s *TCPServer) {
		s.onConnect = fn
	}
}

// WithOnClientDisconnect registers a callback invoked each time a client
// disconnects, after it has been removed from ConnectedClients.
func WithOnClientDisconnect(fn func(ConnectedClient)) TCPServerOption {
	return func(s *TCPServer) {
		s.onDisconnect = fn
	}
}

// NewTCPServer creates a new Modbus TCP server
func NewTCPServer(address string, options ...TCPServerOption) *TCPServer {
	server := &TCPServer{
		address: address,
		port:    common.DefaultTCPPort,
		store:   store.New(),
		logger:  logging.NewLogger(),
		clients: make(map[string]*clientConn),
	}

	for _, option := range options {
		option(server)
	}

	return server
}

// WithLogger sets the logger for the server and returns it for chaining.
func (s *TCPServer) WithLogger(logger common.LoggerInterface) *TCPServer {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.logger = logger
	return s
}

// WithStore sets the register store for the server and returns it for chaining.
func (s *TCPServer) WithStore(st store.Store) *TCPServer {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.store = st
	return s
}

// Store returns the register store backing the server.
func (s *TCPServer) Store() store.Store {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.store
}

// Start starts the server
func (s *TCPServer) Start(ctx context.Context) error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return fmt.Errorf("server already running")
	}

	addr := fmt.Sprintf("%s:%d", s.address, s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.mutex.Unlock()
		return err
	}

	s.listener = listener
	s.running = true
	s.stopChan = make(chan struct{})
	s.mutex.Unlock()

	s.logger.Info(ctx, "Modbus TCP server started on %s", addr)

	go s.acceptLoop(ctx)

	return nil
}

// Stop stops the server
func (s *TCPServer) Stop(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return nil
	}

	close(s.stopChan)

	if s.listener != nil {
		s.listener.Close()
	}

	s.clientsMutex.Lock()
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.clients = make(map[string]*clientConn)
	s.clientsMutex.Unlock()

	s.running = false
	s.logger.Info(ctx, "Modbus TCP server stopped")
	return nil
}

// IsRunning returns true if the server is running
func (s *TCPServer) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.running
}

// acceptLoop accepts incoming connections
func (s *TCPServer) acceptLoop(ctx context.Context) {
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		s.listener.(*net.TCPListener).SetDeadline(time.Now().Add(time.Second))

		conn, err := s.listener.Accept()
		if err != nil {
			if opErr, ok := err.(*net.OpError); ok && opErr.Timeout() {
				continue
			}

			select {
			case <-s.stopChan:
				return
			default:
				s.logger.Error(ctx, "Error accepting connection: %v", err)
				continue
			}
		}

		s.logger.Info(ctx, "New client connected: %s", conn.RemoteAddr().String())

		cc := &clientConn{remoteAddr: conn.RemoteAddr().String(), connectedAt: time.Now(), conn: conn}
		s.clientsMutex.Lock()
		s.clients[cc.remoteAddr] = cc
		s.clientsMutex.Unlock()

		if s.onConnect != nil {
			s.onConnect(cc.snapshot())
		}

		go s.handleConnection(cc)
	}
}

// handleConnection handles a client connection: it reads one complete
// MBAP frame at a time, runs it through a Frame, and writes back
// whatever FinalizeResponse produces.
// Ref: Modbus_Messaging_Implementation_Guide_V1_0b.pdf, Section 3 (Message Processing)
func (s *TCPServer) handleConnection(cc *clientConn) {
	ctx := context.Background()
	conn := cc.conn
	defer func() {
		s.clientsMutex.Lock()
		delete(s.clients, cc.remoteAddr)
		s.clientsMutex.Unlock()

		conn.Close()
		s.logger.Info(ctx, "Client disconnected: %s", cc.remoteAddr)
		if s.onDisconnect != nil {
			s.onDisconnect(cc.snapshot())
		}
	}()

	out := buffer.NewDynamic(256)

	for {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		// MBAP prefix: transaction id (2) + protocol id (2) + length (2).
		// Ref: Modbus_Messaging_Implementation_Guide_V1_0b.pdf, Section 3.1
		prefix := make([]byte, 6)
		if _, err := io.ReadFull(conn, prefix); err != nil {
			if err == io.EOF || strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			s.logger.Error(ctx, "Error reading header from %s: %v", cc.remoteAddr, err)
			return
		}

		length := binary.BigEndian.Uint16(prefix[4:6])
		if length == 0 {
			s.logger.Error(ctx, "Invalid frame length from %s: %d", cc.remoteAddr, length)
			continue
		}

		rest := make([]byte, length)
		if _, err := io.ReadFull(conn, rest); err != nil {
			s.logger.Error(ctx, "Error reading body from %s: %v", cc.remoteAddr, err)
			return
		}

		raw := append(prefix, rest...)
		cc.rxCount.Add(1)
		if len(rest) >= 2 {
			cc.fcCount[rest[1]].Add(1)
		}

		sent, err := s.serveOne(ctx, raw, out)
		if err != nil {
			s.logger.Error(ctx, "Error processing request from %s: %v", cc.remoteAddr, err)
			return
		}
		if !sent {
			continue
		}

		if _, err := conn.Write(out.AsSlice()); err != nil {
			s.logger.Error(ctx, "Error sending response to %s: %v", cc.remoteAddr, err)
			return
		}
		cc.txCount.Add(1)
	}
}

// serveOne runs one raw TCP frame through the Frame state machine against
// the server's store and leaves the response (if any) in out.
func (s *TCPServer) serveOne(ctx context.Context, raw []byte, out buffer.Buffer) (bool, error) {
	out.Clear()
	f := New(mbproto.TcpUdp, raw, out)
	if err := f.Parse(); err != nil {
		return false, err
	}

	if f.ProcessingRequired() {
		s.mutex.RLock()
		st := s.store
		s.mutex.RUnlock()

		var err error
		if f.Function().IsRead() {
			err = f.ProcessRead(st)
		} else {
			err = f.ProcessWrite(st)
		}
		if err != nil {
			return false, err
		}
	}

	return f.FinalizeResponse()
}

// ConnectedClients returns a snapshot of every currently-connected client.
func (s *TCPServer) ConnectedClients() []ConnectedClient {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()

	out := make([]ConnectedClient, 0, len(s.clients))
	for _, cc := range s.clients {
		out = append(out, cc.snapshot())
	}
	return out
}
