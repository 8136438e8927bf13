package client

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/coreprotocols/gomodbus/common"
)

// TCPClient is a Modbus TCP client that dials its connection lazily on
// Connect, so it can be constructed and configured before a server is
// reachable.
type TCPClient struct {
	*BaseClient
	host    string
	port    int
	timeout time.Duration
	options []Option
}

// TCPOption is a function that configures a TCPClient before it dials.
type TCPOption func(*TCPClient)

// WithPort sets the TCP port to dial.
func WithPort(port int) TCPOption {
	return func(c *TCPClient) {
		c.port = port
	}
}

// WithDialTimeout sets the timeout applied to the initial TCP dial.
func WithDialTimeout(d time.Duration) TCPOption {
	return func(c *TCPClient) {
		c.timeout = d
	}
}

// WithTCPLogger sets the logger the client uses once connected.
func WithTCPLogger(logger common.LoggerInterface) TCPOption {
	return func(c *TCPClient) {
		c.options = append(c.options, WithLogger(logger))
	}
}

// WithTCPUnitID sets the unit ID the client addresses once connected.
func WithTCPUnitID(unitID common.UnitID) TCPOption {
	return func(c *TCPClient) {
		c.options = append(c.options, WithUnitID(unitID))
	}
}

// NewTCPClient creates a new Modbus TCP client for host. It does not dial
// until Connect is called.
func NewTCPClient(host string, options ...TCPOption) *TCPClient {
	client := &TCPClient{host: host, port: common.DefaultTCPPort, timeout: 10 * time.Second}
	for _, option := range options {
		option(client)
	}
	return client
}

// WithOptions applies further TCPOptions to c; they take effect at the
// next Connect, which dials and builds the underlying BaseClient.
func (c *TCPClient) WithOptions(options ...TCPOption) *TCPClient {
	for _, option := range options {
		option(c)
	}
	return c
}

// Connect dials host:port and builds the BaseClient session around it.
func (c *TCPClient) Connect(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	c.BaseClient = NewBaseClient(conn, c.options...)
	return nil
}
