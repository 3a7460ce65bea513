// Package corellatest provides a simulated Corella module for tests.
package corellatest

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"i4.energy/across/corella/corella"
	"i4.energy/across/corella/at"
)

// Packet is a payload accepted by the simulated module.
type Packet struct {
	ID      int
	Payload []byte
}

// Device simulates a Corella module behind a serial line. It implements
// corella.Transport, answering each request line written to it, and
// corella.Dialer, returning itself.
//
// Reads never block: when no answer is queued Read returns 0, nil as a
// serial port does once its read timeout elapses.
type Device struct {
	mu sync.Mutex

	ID          string
	Title       string
	Firmware    string
	Hardware    string
	Diagnostics []at.Field

	// Echo makes the device repeat each request line before answering.
	Echo bool
	// Silent makes the device swallow requests without answering.
	Silent bool
	// RejectSends makes AT+SEND answer ERROR.
	RejectSends bool
	// ReadErr and WriteErr, when set, are returned by Read and Write.
	ReadErr  error
	WriteErr error

	leds        bool
	sent        []Packet
	requests    []string
	input       []byte
	output      []byte
	closed      bool
	readTimeout time.Duration
}

// New returns a device with factory defaults.
func New() *Device {
	return &Device{
		ID:       "0001A2B3",
		Title:    "CORELLA",
		Firmware: "1.2.0",
		Hardware: "3",
		Diagnostics: []at.Field{
			{Key: "BATTERY", Value: "3.21V"},
			{Key: "TEMP", Value: "24"},
			{Key: "MAX TEMP", Value: "31"},
			{Key: "MIN TEMP", Value: "-2"},
		},
	}
}

var _ corella.Transport = (*Device)(nil)
var _ corella.Dialer = (*Device)(nil)

// Dial reopens the device and returns it.
func (d *Device) Dial(ctx context.Context) (corella.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = false
	d.input = nil
	d.output = nil
	return d, nil
}

func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, io.ErrClosedPipe
	}
	if d.WriteErr != nil {
		return 0, d.WriteErr
	}

	d.input = append(d.input, p...)
	for {
		i := bytes.IndexByte(d.input, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(d.input[:i]), "\r")
		d.input = d.input[i+1:]
		if line != "" {
			d.handle(line)
		}
	}
	return len(p), nil
}

func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, io.EOF
	}
	if d.ReadErr != nil {
		return 0, d.ReadErr
	}

	n := copy(p, d.output)
	d.output = d.output[n:]
	return n, nil
}

func (d *Device) SetReadTimeout(t time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readTimeout = t
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// LEDs reports whether the LEDs are on.
func (d *Device) LEDs() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.leds
}

// Sent returns the packets accepted so far.
func (d *Device) Sent() []Packet {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Packet(nil), d.sent...)
}

// Requests returns every request line received, in order.
func (d *Device) Requests() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.requests...)
}

// ReadTimeout returns the timeout last set by the driver.
func (d *Device) ReadTimeout() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readTimeout
}

func (d *Device) handle(line string) {
	d.requests = append(d.requests, line)
	if d.Silent {
		return
	}
	if d.Echo {
		d.reply(line)
	}

	switch {
	case line == at.CmdID:
		d.reply(d.ID)
	case line == at.CmdVersion:
		d.reply(d.Title)
		d.reply(at.FieldFirmware + "=" + d.Firmware)
		d.reply(at.FieldHardware + "=" + d.Hardware)
	case line == at.CmdDiagnostics:
		for _, f := range d.Diagnostics {
			d.reply(f.Key + "=" + f.Value)
		}
	case line == at.CmdLEDs+at.LEDsOnState:
		d.leds = true
		d.reply(at.LEDsOnReply)
	case line == at.CmdLEDs+at.LEDsOffState:
		d.leds = false
		d.reply(at.LEDsOffReply)
	case strings.HasPrefix(line, at.CmdSend):
		d.send(strings.TrimPrefix(line, at.CmdSend))
	default:
		d.reply(at.ERROR)
	}
}

func (d *Device) send(args string) {
	id, payload, ok := strings.Cut(args, ",")
	if !ok || d.RejectSends {
		d.reply(at.ERROR)
		return
	}
	n, err := strconv.Atoi(id)
	if err != nil {
		d.reply(at.ERROR)
		return
	}
	d.sent = append(d.sent, Packet{ID: n, Payload: []byte(payload)})
	d.reply(at.OK)
}

func (d *Device) reply(line string) {
	d.output = append(d.output, line+at.CRLF...)
}
