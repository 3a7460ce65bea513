package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter is used for tokenizing Corella module responses. It uses
// the signature of bufio.SplitFunc so it can be directly used with bufio.Scanner.
//
// It splits the input on LF and strips the CR of a CRLF line ending, so
// modules configured for bare LF output are handled the same way.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[0:i], []byte{'\r'}), nil
	}

	if atEOF {
		return len(data), bytes.TrimSuffix(data, []byte{'\r'}), nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// Lines splits a raw response into trimmed, non-empty lines.
func Lines(raw []byte) []string {
	var lines []string

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Split(Splitter)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// Classify identifies the nature of a module output line
func Classify(line string) ResponseType {
	line = strings.ToUpper(strings.TrimSpace(line))

	switch {
	case line == OK, line == ERROR:
		return TypeFinal
	case strings.Contains(line, "="):
		return TypeData
	case strings.HasPrefix(line, ERROR):
		return errorSuffix(line[len(ERROR):])
	case strings.HasPrefix(line, "+"+ERROR):
		return errorSuffix(line[len(ERROR)+1:])
	default:
		return TypeData
	}
}

// errorSuffix classifies what follows a leading ERROR: nothing, a colon,
// or a space and a numeric code make it final. "ERRORS=0" or
// "ERROR COUNT: 2" are data.
func errorSuffix(rest string) ResponseType {
	switch {
	case rest == "", strings.HasPrefix(rest, ":"):
		return TypeFinal
	case strings.HasPrefix(rest, " ") && isCode(strings.TrimSpace(rest)):
		return TypeFinal
	default:
		return TypeData
	}
}

func isCode(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Terminated reports whether raw ends with a complete final line. Data
// after the last line ending is not considered complete.
func Terminated(raw []byte) bool {
	end := bytes.LastIndexByte(raw, '\n')
	if end < 0 {
		return false
	}

	lines := Lines(raw[:end+1])
	if len(lines) == 0 {
		return false
	}
	return Classify(lines[len(lines)-1]) == TypeFinal
}
