package at

const (
	// Terminal Control
	CRLF = "\r\n"

	// Commands
	CmdID          = "AT+ID?"
	CmdVersion     = "AT+VERSION?"
	CmdDiagnostics = "AT+DIAGNOSTICS?"
	CmdLEDs        = "AT+LEDS="
	CmdSend        = "AT+SEND="

	// LED states
	LEDsOnState  = "ON"
	LEDsOffState = "OFF"

	// Response Codes
	OK           = "OK"
	ERROR        = "ERROR"
	LEDsOnReply  = "LEDS ON"
	LEDsOffReply = "LEDS OFF"

	// Version fields
	FieldFirmware = "F.W"
	FieldHardware = "H.W"

	// Diagnostics fields
	FieldBattery     = "BATTERY"
	FieldTemperature = "TEMP"
	FieldMaxTemp     = "MAX TEMP"
	FieldMinTemp     = "MIN TEMP"
)

// Payload limits accepted by the module firmware.
const (
	MaxPayloadSize = 12
	MinPacketID    = 1
	MaxPacketID    = 9
)

type ResponseType int

const (
	TypeFinal ResponseType = iota // OK, ERROR
	TypeData                      // ID, KEY=VALUE, LEDS ON
)
