package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/goburrow/modbus"
)

// ClientConfig holds the serial settings and slave address for a Client.
type ClientConfig struct {
	SerialConfig

	// UnitID is the Modbus slave address (1..247).
	UnitID byte
}

// Client is a Modbus RTU master for one slave on a serial line.
//
// The underlying goburrow client is not safe for concurrent use, so every
// transaction holds the client lock. Each call checks ctx before touching
// the line; a transaction already on the wire runs to the configured
// timeout.
type Client struct {
	mu      sync.Mutex
	handler *modbus.RTUClientHandler
	client  modbus.Client
}

// Dial opens the serial port and returns a connected client.
//
// Returns:
//   - *Client: Connected client (call Close when done)
//   - error: ErrPortOpen wrapping the driver error
func Dial(cfg ClientConfig) (*Client, error) {
	sc := cfg.SerialConfig.withDefaults()

	handler := modbus.NewRTUClientHandler(sc.Port)
	handler.BaudRate = sc.BaudRate
	handler.DataBits = sc.DataBits
	handler.StopBits = sc.StopBits
	handler.Parity = sc.Parity
	handler.SlaveId = cfg.UnitID
	if sc.Timeout > 0 {
		handler.Timeout = sc.Timeout
	}

	if err := handler.Connect(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPortOpen, sc.Port, err)
	}

	return &Client{handler: handler, client: modbus.NewClient(handler)}, nil
}

// newClientWith wraps an existing goburrow client. Used by tests.
func newClientWith(mc modbus.Client) *Client {
	return &Client{client: mc}
}

// Close releases the serial port. Safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	c.client = nil
	if c.handler == nil {
		return nil
	}
	if err := c.handler.Close(); err != nil {
		return fmt.Errorf("closing serial port: %w", err)
	}
	return nil
}

// ReadHoldingRegisters reads count registers starting at address (FC 3).
//
// Returns:
//   - []uint16: Exactly count words
//   - error: Transport, exception or ErrShortResponse
func (c *Client) ReadHoldingRegisters(ctx context.Context, address, count uint16) ([]uint16, error) {
	if count < 1 || count > MaxReadCount {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}

	var raw []byte
	err := c.do(ctx, func(mc modbus.Client) (err error) {
		raw, err = mc.ReadHoldingRegisters(address, count)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading %d register(s) at %d: %w", count, address, err)
	}
	if len(raw) < int(count)*2 {
		return nil, fmt.Errorf("%w: %d bytes for %d registers", ErrShortResponse, len(raw), count)
	}
	return bytesToWords(raw[:int(count)*2]), nil
}

// WriteSingleRegister writes one register (FC 6).
func (c *Client) WriteSingleRegister(ctx context.Context, address, value uint16) error {
	err := c.do(ctx, func(mc modbus.Client) error {
		_, err := mc.WriteSingleRegister(address, value)
		return err
	})
	if err != nil {
		return fmt.Errorf("writing register %d: %w", address, err)
	}
	return nil
}

// WriteMultipleRegisters writes consecutive registers (FC 16).
//
// Returns:
//   - addr: Start address echoed by the slave
//   - count: Register count echoed by the slave
//   - err: Transport, exception or ErrShortResponse
func (c *Client) WriteMultipleRegisters(ctx context.Context, address uint16, words []uint16) (addr, count uint16, err error) {
	if len(words) < 1 || len(words) > MaxWriteCount {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidCount, len(words))
	}

	var raw []byte
	err = c.do(ctx, func(mc modbus.Client) (err error) {
		raw, err = mc.WriteMultipleRegisters(address, uint16(len(words)), wordsToBytes(words)) // #nosec G115 -- checked above
		return err
	})
	if err != nil {
		return 0, 0, fmt.Errorf("writing %d register(s) at %d: %w", len(words), address, err)
	}
	if len(raw) < 2 {
		return 0, 0, fmt.Errorf("%w: %d bytes", ErrShortResponse, len(raw))
	}
	// goburrow checks the echoed address and returns only the quantity.
	return address, binary.BigEndian.Uint16(raw), nil
}

func (c *Client) do(ctx context.Context, fn func(modbus.Client) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if c.client == nil {
		return ErrNotConnected
	}
	return fn(c.client)
}
