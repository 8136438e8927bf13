package client

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/coreprotocols/gomodbus/buffer"
	"github.com/coreprotocols/gomodbus/common"
	"github.com/coreprotocols/gomodbus/logging"
	"github.com/coreprotocols/gomodbus/mbclient"
)

// BaseClient is a Modbus TCP client session: it owns a connection, a
// reusable mbclient.Request that builds outgoing frames, and an output
// buffer the request is assembled into before it hits the wire.
type BaseClient struct {
	logger  common.LoggerInterface
	conn    net.Conn
	req     *mbclient.Request
	out     buffer.Buffer
	timeout time.Duration
}

// Option is a function that configures a BaseClient
type Option func(*BaseClient)

// WithLogger sets the logger for the client
func WithLogger(logger common.LoggerInterface) Option {
	return func(c *BaseClient) {
		c.logger = logger
	}
}

// WithUnitID sets the unit ID for the client
func WithUnitID(unitID common.UnitID) Option {
	return func(c *BaseClient) {
		c.req.UnitID = byte(unitID)
	}
}

// WithTimeout sets the per-request deadline applied when ctx carries none.
func WithTimeout(d time.Duration) Option {
	return func(c *BaseClient) {
		c.timeout = d
	}
}

// NewBaseClient creates a new BaseClient bound to conn, framing requests
// as Modbus TCP (MBAP header; the transaction id is incremented before
// each request, so the first request carries 2).
func NewBaseClient(conn net.Conn, options ...Option) *BaseClient {
	client := &BaseClient{
		logger:  logging.NewLogger(),
		conn:    conn,
		req:     mbclient.NewTCP(0, 1),
		out:     buffer.NewDynamic(256),
		timeout: 30 * time.Second,
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// WithLogger returns a new client with the given logger.
func (c *BaseClient) WithLogger(logger common.LoggerInterface) *BaseClient {
	return &BaseClient{logger: logger, conn: c.conn, req: c.req, out: c.out, timeout: c.timeout}
}

// Connect is a no-op: BaseClient is constructed already bound to a live
// net.Conn. It exists so callers written against the connect/disconnect
// lifecycle of the rest of this package keep working.
func (c *BaseClient) Connect(ctx context.Context) error {
	return nil
}

// Disconnect closes the underlying connection.
func (c *BaseClient) Disconnect(ctx context.Context) error {
	c.logger.Info(ctx, "Disconnecting from Modbus server")
	return c.conn.Close()
}

// IsConnected reports whether the client still has a connection to close.
func (c *BaseClient) IsConnected() bool {
	return c.conn != nil
}

// roundTrip writes c.out's contents, reads one complete MBAP-framed
// response, and returns its raw bytes.
func (c *BaseClient) roundTrip(ctx context.Context) ([]byte, error) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	c.conn.SetDeadline(deadline)

	if _, err := c.conn.Write(c.out.AsSlice()); err != nil {
		return nil, err
	}

	prefix := make([]byte, 6)
	if _, err := io.ReadFull(c.conn, prefix); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint16(prefix[4:6])
	rest := make([]byte, length)
	if _, err := io.ReadFull(c.conn, rest); err != nil {
		return nil, err
	}
	return append(prefix, rest...), nil
}

// ReadCoils reads coils from the server.
func (c *BaseClient) ReadCoils(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.CoilValue, error) {
	c.logger.Debug(ctx, "Reading %d coils from address %d", quantity, address)

	c.req.TransactionID++
	if err := c.req.GenerateGetCoils(uint16(address), uint16(quantity), c.out); err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(ctx)
	if err != nil {
		c.logger.Error(ctx, "Error sending read coils request: %v", err)
		return nil, err
	}
	values, err := c.req.ParseBool(resp)
	if err != nil {
		c.logger.Error(ctx, "Error parsing read coils response: %v", err)
		return nil, err
	}
	c.logger.Debug(ctx, "Read %d coils successfully", len(values))
	return values, nil
}

// ReadDiscreteInputs reads discrete inputs from the server.
func (c *BaseClient) ReadDiscreteInputs(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.DiscreteInputValue, error) {
	c.logger.Debug(ctx, "Reading %d discrete inputs from address %d", quantity, address)

	c.req.TransactionID++
	if err := c.req.GenerateGetDiscretes(uint16(address), uint16(quantity), c.out); err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(ctx)
	if err != nil {
		c.logger.Error(ctx, "Error sending read discrete inputs request: %v", err)
		return nil, err
	}
	values, err := c.req.ParseBool(resp)
	if err != nil {
		c.logger.Error(ctx, "Error parsing read discrete inputs response: %v", err)
		return nil, err
	}
	c.logger.Debug(ctx, "Read %d discrete inputs successfully", len(values))
	return values, nil
}

// ReadHoldingRegisters reads holding registers from the server.
func (c *BaseClient) ReadHoldingRegisters(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.RegisterValue, error) {
	c.logger.Debug(ctx, "Reading %d holding registers from address %d", quantity, address)

	c.req.TransactionID++
	if err := c.req.GenerateGetHoldings(uint16(address), uint16(quantity), c.out); err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(ctx)
	if err != nil {
		c.logger.Error(ctx, "Error sending read holding registers request: %v", err)
		return nil, err
	}
	values, err := c.req.ParseU16(resp)
	if err != nil {
		c.logger.Error(ctx, "Error parsing read holding registers response: %v", err)
		return nil, err
	}
	c.logger.Debug(ctx, "Read %d holding registers successfully", len(values))
	return values, nil
}

// ReadInputRegisters reads input registers from the server.
func (c *BaseClient) ReadInputRegisters(ctx context.Context, address common.Address, quantity common.Quantity) ([]common.InputRegisterValue, error) {
	c.logger.Debug(ctx, "Reading %d input registers from address %d", quantity, address)

	c.req.TransactionID++
	if err := c.req.GenerateGetInputs(uint16(address), uint16(quantity), c.out); err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(ctx)
	if err != nil {
		c.logger.Error(ctx, "Error sending read input registers request: %v", err)
		return nil, err
	}
	values, err := c.req.ParseU16(resp)
	if err != nil {
		c.logger.Error(ctx, "Error parsing read input registers response: %v", err)
		return nil, err
	}
	c.logger.Debug(ctx, "Read %d input registers successfully", len(values))
	return values, nil
}

// WriteSingleCoil writes a single coil to the server.
func (c *BaseClient) WriteSingleCoil(ctx context.Context, address common.Address, value common.CoilValue) error {
	c.logger.Info(ctx, "Writing coil at address %d with value %t", address, value)

	c.req.TransactionID++
	if err := c.req.GenerateSetCoil(uint16(address), value, c.out); err != nil {
		return err
	}
	resp, err := c.roundTrip(ctx)
	if err != nil {
		return err
	}
	if err := c.req.ParseOK(resp); err != nil {
		c.logger.Error(ctx, "Error parsing write single coil response: %v", err)
		return err
	}
	c.logger.Debug(ctx, "Wrote coil %d=%v successfully", address, value)
	return nil
}

// WriteSingleRegister writes a single register to the server.
func (c *BaseClient) WriteSingleRegister(ctx context.Context, address common.Address, value common.RegisterValue) error {
	c.logger.Info(ctx, "Writing register at address %d with value %d", address, value)

	c.req.TransactionID++
	if err := c.req.GenerateSetHolding(uint16(address), value, c.out); err != nil {
		return err
	}
	resp, err := c.roundTrip(ctx)
	if err != nil {
		return err
	}
	if err := c.req.ParseOK(resp); err != nil {
		c.logger.Error(ctx, "Error parsing write single register response: %v", err)
		return err
	}
	c.logger.Debug(ctx, "Wrote register %d=%d successfully", address, value)
	return nil
}

// WriteMultipleCoils writes multiple coils to the server.
func (c *BaseClient) WriteMultipleCoils(ctx context.Context, address common.Address, values []common.CoilValue) error {
	c.logger.Info(ctx, "Writing %d coils starting at address %d", len(values), address)

	c.req.TransactionID++
	if err := c.req.GenerateSetCoilsBulk(uint16(address), values, c.out); err != nil {
		return err
	}
	resp, err := c.roundTrip(ctx)
	if err != nil {
		return err
	}
	if err := c.req.ParseOK(resp); err != nil {
		c.logger.Error(ctx, "Error parsing write multiple coils response: %v", err)
		return err
	}
	c.logger.Debug(ctx, "Wrote %d coils successfully", len(values))
	return nil
}

// WriteMultipleRegisters writes multiple registers to the server.
func (c *BaseClient) WriteMultipleRegisters(ctx context.Context, address common.Address, values []common.RegisterValue) error {
	c.logger.Info(ctx, "Writing %d registers starting at address %d", len(values), address)

	c.req.TransactionID++
	if err := c.req.GenerateSetHoldingsBulk(uint16(address), values, c.out); err != nil {
		return err
	}
	resp, err := c.roundTrip(ctx)
	if err != nil {
		return err
	}
	if err := c.req.ParseOK(resp); err != nil {
		c.logger.Error(ctx, "Error parsing write multiple registers response: %v", err)
		return err
	}
	c.logger.Debug(ctx, "Wrote %d registers successfully", len(values))
	return nil
}
