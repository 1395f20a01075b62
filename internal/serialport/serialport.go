// Package serialport opens the 8N1 serial links used by the telemetry line,
// the current logger and the touch panel.
package serialport

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Port is an open serial link.
type Port interface {
	io.Reader
	io.Writer
	io.Closer
}

// Open opens portName at baudRate with 8 data bits, no parity, one stop bit.
func Open(portName string, baudRate int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return port, nil
}

// List returns the serial ports present on the host.
func List() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
