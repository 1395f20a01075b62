// Package telemetry emits the rig's line-oriented KIND;KEY;VALUE; records.
// Downstream tooling splits lines on ';' and reads fields by position, so
// field order and the trailing delimiter must not change.
package telemetry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Kind string

const (
	KindLog   Kind = "LOG"
	KindEmail Kind = "EMAIL"
)

type Key string

const (
	KeyCycleTotal     Key = "CYCLE_TOTAL"
	KeyCycleReset     Key = "CYCLE_RESET"
	KeyForceTension   Key = "FORCE_TENSION"
	KeyStartTension   Key = "START_TENSION"
	KeyStartCrimp     Key = "START_CRIMP"
	KeyCurrentMax     Key = "CURRENT_MAX"
	KeyAutoReset      Key = "AUTO_RESET"
	KeyEmergencyStop  Key = "EMERGENCY_STOP"
	KeyMachineReset   Key = "MACHINE_RESET"
	KeyMachineStopped Key = "MACHINE_STOPPED"
	KeyButtonPushed   Key = "BUTTON_PUSHED"
)

const delimiter = ";"

var ErrMalformed = errors.New("malformed telemetry line")

// Record is one telemetry line.
type Record struct {
	Kind   Kind     `json:"kind"`
	Key    Key      `json:"key"`
	Values []string `json:"values,omitempty"`
}

func Log(key Key, values ...any) Record {
	return Record{Kind: KindLog, Key: key, Values: format(values)}
}

func Email(key Key, values ...any) Record {
	return Record{Kind: KindEmail, Key: key, Values: format(values)}
}

func format(values []any) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case string:
			out[i] = x
		case bool:
			if x {
				out[i] = "1"
			} else {
				out[i] = "0"
			}
		default:
			out[i] = fmt.Sprint(x)
		}
	}
	return out
}

// Encode renders the record without line terminator: KIND;KEY;V1;...;
func (r Record) Encode() string {
	var b strings.Builder
	b.WriteString(string(r.Kind))
	b.WriteString(delimiter)
	b.WriteString(string(r.Key))
	b.WriteString(delimiter)
	for _, v := range r.Values {
		b.WriteString(v)
		b.WriteString(delimiter)
	}
	return b.String()
}

func (r Record) String() string { return r.Encode() }

// Int returns value i as an integer.
func (r Record) Int(i int) (int64, error) {
	if i >= len(r.Values) {
		return 0, fmt.Errorf("%s has no value %d", r.Key, i)
	}
	n, err := strconv.ParseInt(r.Values[i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s value %d: %w", r.Key, i, err)
	}
	return n, nil
}

// Float returns value i as a float.
func (r Record) Float(i int) (float64, error) {
	if i >= len(r.Values) {
		return 0, fmt.Errorf("%s has no value %d", r.Key, i)
	}
	f, err := strconv.ParseFloat(r.Values[i], 64)
	if err != nil {
		return 0, fmt.Errorf("%s value %d: %w", r.Key, i, err)
	}
	return f, nil
}

// Parse decodes one line. Surrounding whitespace and the line terminator are
// ignored; a line without the trailing delimiter is rejected.
func Parse(line string) (Record, error) {
	line = strings.TrimSpace(line)
	if !strings.HasSuffix(line, delimiter) {
		return Record{}, fmt.Errorf("%w: missing trailing delimiter: %q", ErrMalformed, line)
	}
	fields := strings.Split(strings.TrimSuffix(line, delimiter), delimiter)
	if len(fields) < 2 || fields[0] == "" || fields[1] == "" {
		return Record{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}

	kind := Kind(fields[0])
	if kind != KindLog && kind != KindEmail {
		return Record{}, fmt.Errorf("%w: unknown kind %q", ErrMalformed, fields[0])
	}

	r := Record{Kind: kind, Key: Key(fields[1])}
	if len(fields) > 2 {
		r.Values = fields[2:]
	}
	return r, nil
}
