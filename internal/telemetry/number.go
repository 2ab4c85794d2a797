package telemetry

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var numericPrefix = regexp.MustCompile(`^[+-]?(Infinity|(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?)`)

// ParseNumber parses the longest numeric prefix of s, ignoring leading
// whitespace. Input without a numeric prefix yields NaN.
func ParseNumber(s string) float64 {
	s = strings.TrimLeft(s, " \t\n\r\v\f\u00a0\ufeff")

	match := numericPrefix.FindString(s)
	if match == "" {
		return math.NaN()
	}

	switch strings.TrimLeft(match, "+") {
	case "Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}

	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		// Out of range values come back as ±Inf together with ErrRange.
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}

	return f
}
