package at

import (
	"fmt"
	"strconv"
)

// Kind identifies one of the operations the Corella module accepts.
type Kind int

const (
	KindIdentify Kind = iota + 1
	KindVersion
	KindDiagnostics
	KindLEDsOn
	KindLEDsOff
	KindSend
)

func (k Kind) String() string {
	switch k {
	case KindIdentify:
		return "IDENTIFY"
	case KindVersion:
		return "VERSION"
	case KindDiagnostics:
		return "DIAGNOSTICS"
	case KindLEDsOn:
		return "LED_ON"
	case KindLEDsOff:
		return "LED_OFF"
	case KindSend:
		return "SEND"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Command is a single request for the module. Only KindSend carries
// arguments.
type Command struct {
	Kind     Kind
	PacketID int
	Payload  []byte
}

func Identify() Command    { return Command{Kind: KindIdentify} }
func Version() Command     { return Command{Kind: KindVersion} }
func Diagnostics() Command { return Command{Kind: KindDiagnostics} }
func LEDsOn() Command      { return Command{Kind: KindLEDsOn} }
func LEDsOff() Command     { return Command{Kind: KindLEDsOff} }

// Send builds a SEND command. The payload is copied so later changes to
// the caller's slice do not alter the command.
func Send(packetID int, payload []byte) Command {
	return Command{
		Kind:     KindSend,
		PacketID: packetID,
		Payload:  append([]byte(nil), payload...),
	}
}

// Validate checks the command arguments against the limits of the module
// firmware. All failures wrap ErrInvalidArgument.
func (c Command) Validate() error {
	switch c.Kind {
	case KindIdentify, KindVersion, KindDiagnostics, KindLEDsOn, KindLEDsOff:
		if c.PacketID != 0 || len(c.Payload) != 0 {
			return fmt.Errorf("%w: %s takes no arguments", ErrInvalidArgument, c.Kind)
		}
		return nil
	case KindSend:
	default:
		return fmt.Errorf("%w: unknown command kind %d", ErrInvalidArgument, int(c.Kind))
	}

	if c.PacketID < MinPacketID || c.PacketID > MaxPacketID {
		return fmt.Errorf("%w: packet id %d outside %d-%d",
			ErrInvalidArgument, c.PacketID, MinPacketID, MaxPacketID)
	}
	if len(c.Payload) == 0 {
		return fmt.Errorf("%w: payload is required", ErrInvalidArgument)
	}
	if len(c.Payload) > MaxPayloadSize {
		return fmt.Errorf("%w: payload is %d bytes, limit is %d",
			ErrInvalidArgument, len(c.Payload), MaxPayloadSize)
	}

	// The firmware has no escape sequence, so line terminators and other
	// control bytes cannot be carried in a payload.
	for i, b := range c.Payload {
		if b < 0x20 || b > 0x7E {
			return fmt.Errorf("%w: payload byte %d (0x%02X) is not printable ASCII",
				ErrInvalidArgument, i, b)
		}
	}
	return nil
}

// String returns the request line without its terminator. It does not
// validate the command.
func (c Command) String() string {
	switch c.Kind {
	case KindIdentify:
		return CmdID
	case KindVersion:
		return CmdVersion
	case KindDiagnostics:
		return CmdDiagnostics
	case KindLEDsOn:
		return CmdLEDs + LEDsOnState
	case KindLEDsOff:
		return CmdLEDs + LEDsOffState
	case KindSend:
		return CmdSend + strconv.Itoa(c.PacketID) + "," + string(c.Payload)
	default:
		return ""
	}
}

// Encode validates the command and returns its CRLF terminated wire form.
func (c Command) Encode() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return []byte(c.String() + CRLF), nil
}
