package corella

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=corella

// Transport represents an established, half-duplex byte stream to a Corella
// module.
//
// A Transport is assumed to be already connected and ready for use. Read
// must honour the timeout given to SetReadTimeout: when it elapses without
// data, Read returns 0 and a nil error, the same way a go.bug.st/serial port
// does. Any error returned from Read or Write is treated as a fault of the
// channel.
type Transport interface {
	io.ReadWriteCloser

	// SetReadTimeout bounds how long a single Read waits for data.
	SetReadTimeout(t time.Duration) error
}

// Dialer opens a Transport to a Corella module.
//
// Dialer abstracts how the connection is created (for example, via a
// serial port, a serial-to-WebSocket bridge, or a test double). A Module
// keeps its Dialer so it can reopen the connection after a fault.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport cannot be
	// established.
	Dial(ctx context.Context) (Transport, error)
}

// DefaultBaudRate is the factory baud rate of the Corella module.
const DefaultBaudRate = 9600

// SerialDialer opens a Corella module over a serial port using go.bug.st/serial.
type SerialDialer struct {
	// PortName is the serial device, e.g. "/dev/ttyUSB0".
	PortName string
	// Mode overrides the default 9600 8N1 line settings.
	Mode *serial.Mode
}

// DefaultSerialMode returns the line settings the module ships with.
func DefaultSerialMode() *serial.Mode {
	return &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Dial opens the serial port. The returned serial.Port satisfies Transport
// directly.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if d.PortName == "" {
		return nil, errors.New("corella: serial port name is required")
	}
	if ctx == nil {
		return nil, errors.New("corella: context is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		mode = DefaultSerialMode()
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("corella: open serial port %s: %w", d.PortName, err)
	}
	return port, nil
}

func (d SerialDialer) String() string {
	baud := DefaultBaudRate
	if d.Mode != nil {
		baud = d.Mode.BaudRate
	}
	return fmt.Sprintf("serial %s @ %d baud", d.PortName, baud)
}

// inputResetter is implemented by transports that can drop bytes received
// before the current exchange, such as serial.Port.
type inputResetter interface {
	ResetInputBuffer() error
}
