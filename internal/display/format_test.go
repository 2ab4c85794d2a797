package display_test

import (
	"encoding/json"
	"math"
	"testing"

	"codeberg.org/mutker/solardash/internal/display"
	"github.com/stretchr/testify/assert"
)

func TestFormatNumber(t *testing.T) {
	cases := []struct {
		value    any
		decimals int
		want     string
	}{
		{12.345, 2, "12.35"},
		{1.2, 3, "1.200"},
		{14.9, 2, "14.90"},
		{-6.05, 2, "-6.05"},
		{1.005, 2, "1.00"},
		{0.125, 2, "0.13"},
		{-0.125, 2, "-0.13"},
		{2.5, 0, "3"},
		{-2.5, 0, "-3"},
		{0.0005, 3, "0.001"},
		{math.Copysign(0, -1), 2, "0.00"},
		{-0.001, 2, "-0.00"},
		{42, 2, "42.00"},
		{int64(-3), 1, "-3.0"},
		{float32(0.5), 1, "0.5"},
		{"12.345", 2, "12.35"},
		{" 3.1V", 3, "3.100"},
		{json.Number("7"), 2, "7.00"},
		{1e21, 2, "1e+21"},
		{math.Inf(1), 2, "Infinity"},
		{math.Inf(-1), 2, "-Infinity"},
		{1.5, -1, "2"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, display.FormatNumber(tc.value, tc.decimals), "FormatNumber(%v, %d)", tc.value, tc.decimals)
	}
}

func TestFormatNumberNaN(t *testing.T) {
	for _, value := range []any{"abc", "", nil, true, math.NaN(), struct{}{}} {
		assert.Equal(t, "NaN", display.FormatNumber(value, display.DefaultDecimals), "value %v", value)
	}
}

func TestFieldDecimals(t *testing.T) {
	assert.Equal(t, 2, display.FieldVoltage.Decimals())
	assert.Equal(t, 3, display.FieldCurrent.Decimals())
	assert.Equal(t, 2, display.FieldPower.Decimals())
}
