package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"codeberg.org/mutker/solardash/internal/errors"
)

// MissingFieldsError lists the sections or fields absent from a payload
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing fields: " + strings.Join(e.Fields, ", ")
}

type number float64

// UnmarshalJSON accepts JSON numbers and numeric strings.
func (n *number) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = number(ParseNumber(s))
		return nil
	}

	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		// Out of range literals decode to ±Inf like JSON.parse does.
		if numErr, ok := err.(*strconv.NumError); !ok || numErr.Err != strconv.ErrRange {
			return fmt.Errorf("invalid number %s", data)
		}
	}
	*n = number(f)

	return nil
}

type status string

// UnmarshalJSON accepts a string, or any other scalar as its literal text.
func (s *status) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty led value")
	}

	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = status(v)
	case '{', '[':
		return fmt.Errorf("invalid led value %s", data)
	default:
		*s = status(data)
	}

	return nil
}

// Section and field keys are matched case-sensitively
var readingFields = []string{"led", "voltaje", "corriente", "potencia"}

type rawObject map[string]json.RawMessage

// lookup returns the raw value of key, treating null as absent
func (o rawObject) lookup(key string) (json.RawMessage, bool) {
	raw, ok := o[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

// Decode reads one snapshot from r. The payload must carry every section
// with all four fields; otherwise nothing is returned.
func Decode(r io.Reader) (*Snapshot, error) {
	errFactory := errors.New()

	dec := json.NewDecoder(r)

	var top rawObject
	if err := dec.Decode(&top); err != nil {
		return nil, errFactory.Wrap(ErrDecode, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errFactory.Wrap(ErrDecode, fmt.Errorf("unexpected data after snapshot"))
	}

	var missing []string
	snapshot := &Snapshot{}
	for _, section := range Sections {
		rawSection, ok := top.lookup(string(section))
		if !ok {
			missing = append(missing, string(section))
			continue
		}

		var fields rawObject
		if err := json.Unmarshal(rawSection, &fields); err != nil {
			return nil, errFactory.Wrap(ErrDecode, fmt.Errorf("section %s: %w", section, err))
		}

		values := make(map[string]json.RawMessage, len(readingFields))
		for _, name := range readingFields {
			raw, ok := fields.lookup(name)
			if !ok {
				missing = append(missing, string(section)+"."+name)
				continue
			}
			values[name] = raw
		}
		if len(values) != len(readingFields) {
			continue
		}

		reading, err := decodeReading(values)
		if err != nil {
			return nil, errFactory.Wrap(ErrDecode, fmt.Errorf("section %s: %w", section, err))
		}
		*snapshot.Reading(section) = reading
	}

	if len(missing) > 0 {
		return nil, errFactory.Wrap(ErrDecode, &MissingFieldsError{Fields: missing})
	}

	return snapshot, nil
}

func decodeReading(values map[string]json.RawMessage) (Reading, error) {
	var (
		led                     status
		voltage, current, power number
	)

	targets := []struct {
		name string
		dst  json.Unmarshaler
	}{
		{"led", &led},
		{"voltaje", &voltage},
		{"corriente", &current},
		{"potencia", &power},
	}
	for _, t := range targets {
		if err := t.dst.UnmarshalJSON(bytes.TrimSpace(values[t.name])); err != nil {
			return Reading{}, fmt.Errorf("%s: %w", t.name, err)
		}
	}

	return Reading{
		LED:     LED(led),
		Voltage: float64(voltage),
		Current: float64(current),
		Power:   float64(power),
	}, nil
}
