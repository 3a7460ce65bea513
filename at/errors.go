package at

import "errors"

var (
	// ErrInvalidArgument is returned when a Command cannot be framed because
	// its arguments are missing, out of range or too long.
	//
	// The check happens locally; a command failing it never reaches the
	// module.
	ErrInvalidArgument = errors.New("invalid command argument")

	// ErrProtocol is returned when the module answered but the response
	// could not be parsed, or lacks a field the caller asked for.
	ErrProtocol = errors.New("protocol error")
)
