package display

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"codeberg.org/mutker/solardash/internal/telemetry"
	"github.com/charmbracelet/lipgloss"
)

const clearScreen = "\033[H\033[2J"

var sectionTitles = map[telemetry.Section]string{
	telemetry.SectionPanel:   "Panel",
	telemetry.SectionBattery: "Batería",
	telemetry.SectionLoad:    "Carga",
}

// Terminal is a Board that redraws itself to a writer on every Flush
type Terminal struct {
	*Board

	mu          sync.Mutex
	out         io.Writer
	renderer    *lipgloss.Renderer
	clearScreen bool
}

// NewTerminal returns a Terminal writing to out. When clearFrames is set every
// frame starts by clearing the screen.
func NewTerminal(out io.Writer, clearFrames bool) *Terminal {
	return &Terminal{
		Board:       NewBoard(),
		out:         out,
		renderer:    lipgloss.NewRenderer(out),
		clearScreen: clearFrames,
	}
}

// Flush draws the current board state
func (t *Terminal) Flush() {
	frame := t.View()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.clearScreen {
		fmt.Fprint(t.out, clearScreen)
	}
	fmt.Fprintln(t.out, frame)
}

// View renders the board as one line of section cards
func (t *Terminal) View() string {
	cards := make([]string, 0, len(telemetry.Sections))
	for _, section := range telemetry.Sections {
		cards = append(cards, t.card(section))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func (t *Terminal) card(section telemetry.Section) string {
	cardStyle := t.renderer.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorMuted).
		Padding(0, 1).
		Width(22)
	titleStyle := t.renderer.NewStyle().Bold(true).Foreground(ColorPrimary)
	valueStyle := t.renderer.NewStyle().Foreground(ColorPrimary)
	flashStyle := t.renderer.NewStyle().Bold(true).Reverse(true)

	led, _ := t.Element(LEDID(section))
	category := categoryOf(led.Classes)
	symbol := SymbolLED
	if category == "" || strings.EqualFold(category, "off") {
		symbol = SymbolLEDOff
	}
	ledStyle := t.renderer.NewStyle().Foreground(CategoryColor(category))

	lines := []string{
		titleStyle.Render(sectionTitles[section]) + " " + ledStyle.Render(symbol) + " " + category,
	}
	for _, field := range Fields {
		id := ValueID(section, field)
		text, _ := t.Text(id)
		if text == "" {
			text = "--"
		}

		value := text + " " + field.Unit()
		if t.Flashing(id) {
			value = flashStyle.Render(value)
		} else {
			value = valueStyle.Render(value)
		}
		lines = append(lines, value)
	}

	return cardStyle.Render(strings.Join(lines, "\n"))
}
