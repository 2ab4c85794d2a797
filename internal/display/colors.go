package display

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Semantic colors for status indication
const (
	ColorSuccess lipgloss.Color = "2" // Green
	ColorError   lipgloss.Color = "1" // Red
	ColorWarning lipgloss.Color = "3" // Yellow
	ColorInfo    lipgloss.Color = "6" // Cyan
)

// Text colors for content hierarchy
const (
	ColorPrimary lipgloss.Color = "7" // White/default
	ColorMuted   lipgloss.Color = "8" // Gray (bright black)
)

const (
	SymbolLED    = "●"
	SymbolLEDOff = "○"
)

// CategoryColor maps a status category to the color its LED is drawn in.
// Unknown categories are muted.
func CategoryColor(category string) lipgloss.Color {
	switch strings.ToLower(category) {
	case "ok", "on", "green", "verde", "normal", "charging", "cargando":
		return ColorSuccess
	case "warning", "warn", "yellow", "amarillo", "low", "bajo":
		return ColorWarning
	case "error", "red", "rojo", "fault", "falla", "alarm", "alarma":
		return ColorError
	case "info", "blue", "azul", "idle":
		return ColorInfo
	default:
		return ColorMuted
	}
}

// categoryOf extracts the status category from an LED's classes
func categoryOf(classes []string) string {
	for _, c := range classes {
		if strings.HasPrefix(c, LEDClassPrefix) {
			return strings.TrimPrefix(c, LEDClassPrefix)
		}
	}

	return ""
}
