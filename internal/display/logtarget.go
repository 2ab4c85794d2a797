package display

import (
	"codeberg.org/mutker/solardash/internal/logger"
)

// LogTarget is a Board that logs every value and status change instead of
// drawing anything.
type LogTarget struct {
	*Board
	log logger.Logger
}

func NewLogTarget(log logger.Logger) *LogTarget {
	return &LogTarget{
		Board: NewBoard(),
		log:   log,
	}
}

func (l *LogTarget) SetText(id, text string) bool {
	if !l.Board.SetText(id, text) {
		return false
	}
	l.log.Info().Str("element", id).Str("value", text).Msg("Value changed")

	return true
}

func (l *LogTarget) SetCategory(id, base, category string) bool {
	before := l.Board.ClassName(id)
	if !l.Board.SetCategory(id, base, category) {
		return false
	}
	if after := l.Board.ClassName(id); after != before {
		l.log.Info().Str("element", id).Str("class", after).Msg("Status changed")
	}

	return true
}
