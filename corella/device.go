package corella

import (
	"context"
	"fmt"

	"i4.energy/across/corella/at"
)

// Key aliases for values whose name differs between firmware revisions.
var (
	temperatureKeys    = []string{at.FieldTemperature, "TEMPERATURE", "CURRENT TEMP"}
	maxTemperatureKeys = []string{at.FieldMaxTemp, "MAX TEMPERATURE"}
	minTemperatureKeys = []string{at.FieldMinTemp, "MIN TEMPERATURE"}
)

// Version is the firmware and hardware revision reported by the module.
type Version struct {
	Firmware string
	Hardware string
}

// DiagnosticsReport is the typed view of the diagnostics block. Supply
// voltage is in volts and temperatures in degrees Celsius; a nil
// temperature was not reported by the firmware.
type DiagnosticsReport struct {
	Battery        float64
	Temperature    *float64
	MaxTemperature *float64
	MinTemperature *float64
}

// ID returns the unique device ID used to match the module's data on the
// Taggle network.
func (m *Module) ID(ctx context.Context) (string, error) {
	res, err := m.exchange(ctx, at.Identify(), at.ResultScalar)
	if err != nil {
		return "", err
	}
	return res.Scalar, nil
}

// Version returns the firmware and hardware revision.
func (m *Module) Version(ctx context.Context) (Version, error) {
	fields, err := m.mapping(ctx, at.Version())
	if err != nil {
		return Version{}, err
	}

	firmware, err := fields.Lookup(at.FieldFirmware)
	if err != nil {
		return Version{}, err
	}
	hardware, err := fields.Lookup(at.FieldHardware)
	if err != nil {
		return Version{}, err
	}
	return Version{Firmware: firmware, Hardware: hardware}, nil
}

// Diagnostics returns the raw diagnostics block.
func (m *Module) Diagnostics(ctx context.Context) (at.Mapping, error) {
	return m.mapping(ctx, at.Diagnostics())
}

// DiagnosticsReport returns the diagnostics block as typed values. The
// battery voltage is required; temperatures are optional.
func (m *Module) DiagnosticsReport(ctx context.Context) (DiagnosticsReport, error) {
	fields, err := m.mapping(ctx, at.Diagnostics())
	if err != nil {
		return DiagnosticsReport{}, err
	}

	var report DiagnosticsReport
	if report.Battery, err = fields.Number(at.FieldBattery); err != nil {
		return DiagnosticsReport{}, err
	}
	if report.Temperature, err = optionalNumber(fields, temperatureKeys); err != nil {
		return DiagnosticsReport{}, err
	}
	if report.MaxTemperature, err = optionalNumber(fields, maxTemperatureKeys); err != nil {
		return DiagnosticsReport{}, err
	}
	if report.MinTemperature, err = optionalNumber(fields, minTemperatureKeys); err != nil {
		return DiagnosticsReport{}, err
	}
	return report, nil
}

// Battery returns the supply voltage in volts.
func (m *Module) Battery(ctx context.Context) (float64, error) {
	return m.number(ctx, at.FieldBattery)
}

// Temperature returns the current internal temperature in degrees Celsius.
func (m *Module) Temperature(ctx context.Context) (float64, error) {
	return m.number(ctx, temperatureKeys...)
}

// MaxTemperature returns the highest internal temperature recorded by the module.
func (m *Module) MaxTemperature(ctx context.Context) (float64, error) {
	return m.number(ctx, maxTemperatureKeys...)
}

// MinTemperature returns the lowest internal temperature recorded by the module.
func (m *Module) MinTemperature(ctx context.Context) (float64, error) {
	return m.number(ctx, minTemperatureKeys...)
}

// LEDsOn turns on the module's LEDs.
func (m *Module) LEDsOn(ctx context.Context) (at.Status, error) {
	return m.status(ctx, at.LEDsOn())
}

// LEDsOff turns off the module's LEDs.
func (m *Module) LEDsOff(ctx context.Context) (at.Status, error) {
	return m.status(ctx, at.LEDsOff())
}

// Send transmits up to at.MaxPayloadSize bytes of payload tagged with
// packetID. The payload is sent verbatim; longer payloads are rejected with
// ErrInvalidArgument rather than truncated.
//
// A StatusFailure means the module refused the packet; it is not an error.
func (m *Module) Send(ctx context.Context, packetID int, payload []byte) (at.Status, error) {
	return m.status(ctx, at.Send(packetID, payload))
}

func (m *Module) mapping(ctx context.Context, cmd at.Command) (at.Mapping, error) {
	res, err := m.exchange(ctx, cmd, at.ResultMapping)
	if err != nil {
		return at.Mapping{}, err
	}
	return res.Mapping, nil
}

func (m *Module) number(ctx context.Context, keys ...string) (float64, error) {
	fields, err := m.mapping(ctx, at.Diagnostics())
	if err != nil {
		return 0, err
	}
	return fields.Number(keys...)
}

func (m *Module) status(ctx context.Context, cmd at.Command) (at.Status, error) {
	res, err := m.exchange(ctx, cmd, at.ResultStatus)
	if err != nil {
		return 0, err
	}
	return res.Status, nil
}

func optionalNumber(fields at.Mapping, keys []string) (*float64, error) {
	if _, err := fields.Lookup(keys...); err != nil {
		return nil, nil
	}
	n, err := fields.Number(keys...)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// unexpected reports a response whose shape does not fit the command.
func unexpected(cmd at.Command, res at.Result) error {
	if res.Kind == at.ResultStatus {
		return fmt.Errorf("%w: %s answered %q", ErrProtocol, cmd.Kind, res.Token)
	}
	return fmt.Errorf("%w: %s answered with a %s", ErrProtocol, cmd.Kind, res.Kind)
}
