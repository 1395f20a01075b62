// Package modbus talks Modbus TCP to the rig's I/O coupler and keeps a
// process image the control loop can read and write without blocking.
package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

var ErrNotConnected = errors.New("not connected")

type Client struct {
	address       string
	conn          net.Conn
	mu            sync.Mutex
	transactionID uint16
	timeout       time.Duration
	connected     bool
}

func NewClient(address string, timeout time.Duration) *Client {
	return &Client{
		address: address,
		timeout: timeout,
	}
}

func (c *Client) Address() string { return c.address }

func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	conn, err := net.DialTimeout("tcp", c.address, c.timeout)
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	c.conn = conn
	c.connected = true
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if !c.connected {
		return nil
	}
	err := c.conn.Close()
	c.connected = false
	c.conn = nil
	return err
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SendFrame sends a request and waits for the matching response. A transport
// error drops the connection so the next exchange reconnects.
func (c *Client) SendFrame(ctx context.Context, request *ModbusFrame) (*ModbusFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, ErrNotConnected
	}

	c.transactionID++
	request.TransactionID = c.transactionID

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	if _, err := c.conn.Write(request.Encode()); err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("write failed: %w", err)
	}

	header := make([]byte, mbapLength)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("read failed: %w", err)
	}
	length := int(binary.BigEndian.Uint16(header[4:6]))
	if length < 2 || mbapLength+length-1 > maxFrameSize {
		c.closeLocked()
		return nil, fmt.Errorf("invalid response length: %d", length)
	}
	body := make([]byte, length-1)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		c.closeLocked()
		return nil, fmt.Errorf("read failed: %w", err)
	}

	response, err := DecodeFrame(append(header, body...))
	if err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}

	if response.TransactionID != request.TransactionID {
		return nil, fmt.Errorf("transaction ID mismatch: expected %d, got %d",
			request.TransactionID, response.TransactionID)
	}

	return response, nil
}

func (c *Client) ReadCoils(ctx context.Context, unitID uint8, startAddr, quantity uint16) ([]bool, error) {
	response, err := c.SendFrame(ctx, ReadCoilsRequest(unitID, startAddr, quantity))
	if err != nil {
		return nil, err
	}
	return response.ParseBitResponse(quantity)
}

func (c *Client) ReadDiscreteInputs(ctx context.Context, unitID uint8, startAddr, quantity uint16) ([]bool, error) {
	response, err := c.SendFrame(ctx, ReadDiscreteInputsRequest(unitID, startAddr, quantity))
	if err != nil {
		return nil, err
	}
	return response.ParseBitResponse(quantity)
}

func (c *Client) ReadHoldingRegisters(ctx context.Context, unitID uint8, startAddr, quantity uint16) ([]uint16, error) {
	response, err := c.SendFrame(ctx, ReadHoldingRegistersRequest(unitID, startAddr, quantity))
	if err != nil {
		return nil, err
	}
	return response.ParseRegisterResponse()
}

func (c *Client) ReadInputRegisters(ctx context.Context, unitID uint8, startAddr, quantity uint16) ([]uint16, error) {
	response, err := c.SendFrame(ctx, ReadInputRegistersRequest(unitID, startAddr, quantity))
	if err != nil {
		return nil, err
	}
	return response.ParseRegisterResponse()
}

func (c *Client) WriteSingleRegister(ctx context.Context, unitID uint8, addr uint16, value uint16) error {
	response, err := c.SendFrame(ctx, WriteSingleRegisterRequest(unitID, addr, value))
	if err != nil {
		return err
	}
	return response.Exception()
}

func (c *Client) WriteMultipleCoils(ctx context.Context, unitID uint8, startAddr uint16, coils []bool) error {
	response, err := c.SendFrame(ctx, WriteMultipleCoilsRequest(unitID, startAddr, coils))
	if err != nil {
		return err
	}
	return response.Exception()
}
