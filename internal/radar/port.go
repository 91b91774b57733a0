package radar

import (
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is the sensor's reporting rate after configuration.
const DefaultBaudRate = 9600

// Port is the UART connected to the sensor.
type Port interface {
	io.ReadWriteCloser

	// SetBaudRate reconfigures the line rate, keeping the frame format.
	SetBaudRate(baud int) error

	// ResetInputBuffer discards received but unread bytes.
	ResetInputBuffer() error
}

// PortOptions describes the serial line parameters.
type PortOptions struct {
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
}

// Normalize validates the options and applies 9600 8N1 defaults for unset
// values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}

	return opts, nil
}

// SerialMode converts the options into a go.bug.st/serial mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	}
	return mode, nil
}

// readTimeout bounds each blocking read so Pump can observe cancellation.
const readTimeout = 100 * time.Millisecond

// SerialPort is a Port backed by a tty.
type SerialPort struct {
	port serial.Port
	mode serial.Mode
	path string
}

// OpenSerial opens the tty at path.
func OpenSerial(path string, opts PortOptions) (*SerialPort, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}

	return &SerialPort{port: port, mode: *mode, path: path}, nil
}

// Read reads received bytes. It returns 0, nil when the read timeout expires.
func (p *SerialPort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

// Write sends b.
func (p *SerialPort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// SetBaudRate switches the line rate.
func (p *SerialPort) SetBaudRate(baud int) error {
	mode := p.mode
	mode.BaudRate = baud
	if err := p.port.SetMode(&mode); err != nil {
		return fmt.Errorf("set %s to %d baud: %w", p.path, baud, err)
	}
	p.mode = mode
	return nil
}

// ResetInputBuffer discards pending input.
func (p *SerialPort) ResetInputBuffer() error {
	return p.port.ResetInputBuffer()
}

// Close closes the tty.
func (p *SerialPort) Close() error {
	return p.port.Close()
}
