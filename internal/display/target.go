// Package display renders telemetry snapshots onto an element-addressed
// surface. The surface is injected as a Target so the formatting and
// change detection can run against an in-memory Board, a terminal or a log.
package display

import "codeberg.org/mutker/solardash/internal/telemetry"

const (
	// LEDBaseClass is always present on a status LED
	LEDBaseClass = "status-led"
	// LEDClassPrefix is prepended to the reported status category
	LEDClassPrefix = "led-"
	// UpdatedClass marks a value container that changed recently
	UpdatedClass = "updated"
)

// Target is the surface a Renderer draws on. Every method reports whether
// the addressed element exists; absent elements are ignored.
type Target interface {
	// Text returns the text currently shown by id
	Text(id string) (string, bool)
	// SetText replaces the text shown by id
	SetText(id, text string) bool
	// SetCategory resets the classes of id to base plus category
	SetCategory(id, base, category string) bool
	// SetFlash toggles the updated state on the container of id
	SetFlash(id string, on bool) bool
}

// Flusher is implemented by targets that batch output until a render ends
type Flusher interface {
	Flush()
}

// Field names one numeric value of a section
type Field string

const (
	FieldVoltage Field = "voltaje"
	FieldCurrent Field = "corriente"
	FieldPower   Field = "potencia"
)

// Fields lists the numeric fields in display order
var Fields = []Field{FieldVoltage, FieldCurrent, FieldPower}

// Decimals returns the number of decimals a field is shown with
func (f Field) Decimals() int {
	if f == FieldCurrent {
		return 3
	}

	return DefaultDecimals
}

// Unit returns the unit symbol of a field
func (f Field) Unit() string {
	switch f {
	case FieldVoltage:
		return "V"
	case FieldCurrent:
		return "A"
	default:
		return "W"
	}
}

func (f Field) value(r *telemetry.Reading) float64 {
	switch f {
	case FieldVoltage:
		return r.Voltage
	case FieldCurrent:
		return r.Current
	default:
		return r.Power
	}
}

// LEDID returns the element id of a section's status LED
func LEDID(section telemetry.Section) string {
	return string(section) + "-led"
}

// ValueID returns the element id of a section's numeric field
func ValueID(section telemetry.Section, field Field) string {
	return string(section) + "-" + string(field)
}

// CellID returns the id of the container holding a value element
func CellID(valueID string) string {
	return valueID + "-cell"
}

// CardID returns the id of the card grouping a section's elements
func CardID(section telemetry.Section) string {
	return string(section) + "-card"
}
