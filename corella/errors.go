package corella

import (
	"errors"
	"fmt"

	"i4.energy/across/corella/at"
)

var (
	// ErrNoDialer is returned when a Module is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the module.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Module
	// that has no transport.
	//
	// This can occur if the Dialer returned a nil Transport or if the Module
	// was not created via New.
	ErrNotInitialized = errors.New("module not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Module that has
	// already been closed, or when an exchange is attempted after Close.
	ErrAlreadyClosed = errors.New("module already closed")

	// ErrTimeout is returned when the module sent nothing within the
	// configured window. The connection is marked closed.
	ErrTimeout = errors.New("response timeout")

	// ErrTransport is returned when the underlying channel reports a fault,
	// for example because the device was unplugged. The connection is
	// marked closed and the exchange is not retried.
	ErrTransport = errors.New("transport fault")

	// ErrNotConnected is returned when an exchange is attempted after a
	// timeout or transport fault marked the connection closed. Call Open to
	// re-establish it.
	ErrNotConnected = fmt.Errorf("%w: connection closed", ErrTransport)

	// ErrInvalidArgument is returned for command arguments rejected before
	// anything is written to the module.
	ErrInvalidArgument = at.ErrInvalidArgument

	// ErrProtocol is returned when the module answered with text that could
	// not be parsed or lacks an expected field.
	ErrProtocol = at.ErrProtocol
)
