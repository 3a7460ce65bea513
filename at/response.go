package at

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Status is the outcome token of a command that only acknowledges.
type Status int

const (
	StatusSuccess Status = iota + 1
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// OK reports whether the module accepted the command.
func (s Status) OK() bool {
	return s == StatusSuccess
}

// ResultKind tells which field of a Result is populated.
type ResultKind int

const (
	ResultScalar ResultKind = iota + 1
	ResultMapping
	ResultStatus
)

func (k ResultKind) String() string {
	switch k {
	case ResultScalar:
		return "scalar"
	case ResultMapping:
		return "mapping"
	case ResultStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Result is a parsed module response. Exactly one of Scalar, Mapping or
// Status is meaningful, as selected by Kind.
type Result struct {
	Kind    ResultKind
	Scalar  string
	Mapping Mapping
	Status  Status
	// Token is the literal status line, e.g. "LEDS ON" or "ERROR 3".
	Token string
}

// Succeeded reports whether the result counts as a successful exchange:
// any scalar or mapping, or a success status.
func (r Result) Succeeded() bool {
	switch r.Kind {
	case ResultScalar, ResultMapping:
		return true
	case ResultStatus:
		return r.Status == StatusSuccess
	default:
		return false
	}
}

// Field is a single KEY=VALUE entry of a Mapping.
type Field struct {
	Key   string
	Value string
}

// Mapping is an ordered key/value block such as the diagnostics report.
// Keys keep the module's casing; lookups go through NormalizeKey.
type Mapping struct {
	// Header is a title line preceding the fields, if the module sent one.
	Header string
	Fields []Field
}

// NormalizeKey folds the naming variations seen across firmware revisions
// ("MAX TEMP", "max_temp", "MaxTemp", "F.W", "FW") onto a single form.
func NormalizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '_', '-', '.':
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(key)))
}

// Get returns the value stored under key.
func (m Mapping) Get(key string) (string, bool) {
	want := NormalizeKey(key)
	for _, f := range m.Fields {
		if NormalizeKey(f.Key) == want {
			return f.Value, true
		}
	}
	return "", false
}

// Lookup returns the value of the first key present.
func (m Mapping) Lookup(keys ...string) (string, error) {
	for _, key := range keys {
		if v, ok := m.Get(key); ok {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: missing field %s", ErrProtocol, strings.Join(keys, "|"))
}

// Number returns the value of the first key present as a float.
func (m Mapping) Number(keys ...string) (float64, error) {
	v, err := m.Lookup(keys...)
	if err != nil {
		return 0, err
	}
	n, err := ParseNumber(v)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", keys[0], err)
	}
	return n, nil
}

// Map returns the fields as a plain map keyed by the module's key names.
func (m Mapping) Map() map[string]string {
	out := make(map[string]string, len(m.Fields))
	for _, f := range m.Fields {
		out[f.Key] = f.Value
	}
	return out
}

func (m Mapping) Len() int {
	return len(m.Fields)
}

var numberPrefix = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)`)

// ParseNumber reads the leading decimal number of a value, ignoring a unit
// suffix: "3.21V" is 3.21, "-2C" is -2.
func ParseNumber(s string) (float64, error) {
	match := numberPrefix.FindString(strings.TrimSpace(s))
	if match == "" {
		return 0, fmt.Errorf("%w: %q is not numeric", ErrProtocol, s)
	}
	n, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not numeric", ErrProtocol, s)
	}
	return n, nil
}

// ParseStatus recognizes the acknowledgement tokens of the module.
func ParseStatus(line string) (Status, bool) {
	token := strings.Join(strings.Fields(strings.ToUpper(line)), " ")

	switch token {
	case OK, LEDsOnReply, LEDsOffReply:
		return StatusSuccess, true
	}
	if Classify(token) == TypeFinal {
		return StatusFailure, true
	}
	return 0, false
}

// Parse converts the lines of a response into a Result. echo is the
// request line; when the module echoes it back it is skipped.
func Parse(lines []string, echo string) (Result, error) {
	if len(lines) > 0 && echo != "" && strings.EqualFold(strings.TrimSpace(lines[0]), echo) {
		lines = lines[1:]
	}
	if len(lines) == 0 {
		return Result{}, fmt.Errorf("%w: empty response", ErrProtocol)
	}

	if len(lines) == 1 {
		if status, ok := ParseStatus(lines[0]); ok {
			return Result{Kind: ResultStatus, Status: status, Token: lines[0]}, nil
		}
	}

	last := lines[len(lines)-1]
	if Classify(last) == TypeFinal && len(lines) > 1 {
		status, _ := ParseStatus(last)
		if status == StatusFailure {
			return Result{Kind: ResultStatus, Status: status, Token: last}, nil
		}
		return Parse(lines[:len(lines)-1], "")
	}

	if len(lines) == 1 && separatorIndex(lines[0]) < 0 {
		return Result{Kind: ResultScalar, Scalar: strings.TrimSpace(lines[0])}, nil
	}

	mapping, err := parseMapping(lines)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: ResultMapping, Mapping: mapping}, nil
}

func parseMapping(lines []string) (Mapping, error) {
	var m Mapping
	seen := make(map[string]bool, len(lines))

	for i, line := range lines {
		sep := separatorIndex(line)
		if sep < 0 {
			if i == 0 && len(lines) > 1 {
				m.Header = strings.TrimSpace(line)
				continue
			}
			return Mapping{}, fmt.Errorf("%w: unrecognized response line %q", ErrProtocol, line)
		}

		key := strings.TrimSpace(line[:sep])
		value := strings.TrimSpace(line[sep+1:])
		if key == "" {
			return Mapping{}, fmt.Errorf("%w: empty key in %q", ErrProtocol, line)
		}

		norm := NormalizeKey(key)
		if seen[norm] {
			return Mapping{}, fmt.Errorf("%w: duplicate key %q", ErrProtocol, key)
		}
		seen[norm] = true
		m.Fields = append(m.Fields, Field{Key: key, Value: value})
	}

	if len(m.Fields) == 0 {
		return Mapping{}, fmt.Errorf("%w: unrecognized response", ErrProtocol)
	}
	return m, nil
}

// separatorIndex returns the position of the first '=' or ':' in line.
func separatorIndex(line string) int {
	return strings.IndexAny(line, "=:")
}
