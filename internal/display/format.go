package display

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"codeberg.org/mutker/solardash/internal/telemetry"
)

const (
	DefaultDecimals = 2
	maxDecimals     = 100
	// Magnitudes from here on are printed in exponent form
	exponentThreshold = 1e21
)

// FormatNumber renders value with a fixed number of decimals. Strings are
// parsed by their numeric prefix; anything that is not a number formats as
// "NaN". Exact halves round away from zero.
func FormatNumber(value any, decimals int) string {
	return formatFixed(toFloat(value), decimals)
}

func toFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int8:
		return float64(v)
	case int16:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint:
		return float64(v)
	case uint8:
		return float64(v)
	case uint16:
		return float64(v)
	case uint32:
		return float64(v)
	case uint64:
		return float64(v)
	case string:
		return telemetry.ParseNumber(v)
	case json.Number:
		return telemetry.ParseNumber(string(v))
	case nil, bool:
		return math.NaN()
	case fmt.Stringer:
		return telemetry.ParseNumber(v.String())
	default:
		return telemetry.ParseNumber(fmt.Sprint(v))
	}
}

func formatFixed(f float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	} else if decimals > maxDecimals {
		decimals = maxDecimals
	}

	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case math.Abs(f) >= exponentThreshold:
		return strconv.FormatFloat(f, 'g', -1, 64)
	case f == 0:
		// Drops the sign of negative zero.
		f = 0
	}

	if isHalfway(f, decimals) {
		f = math.Nextafter(f, math.Copysign(math.Inf(1), f))
	}

	return strconv.FormatFloat(f, 'f', decimals, 64)
}

// isHalfway reports whether f lies exactly between two values representable
// with the given number of decimals.
func isHalfway(f float64, decimals int) bool {
	prec := uint(64 + 4*decimals)

	scaled := new(big.Float).SetPrec(prec).SetFloat64(math.Abs(f))
	pow := new(big.Float).SetPrec(prec).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	scaled.Mul(scaled, pow)

	whole, _ := scaled.Int(nil)
	frac := new(big.Float).SetPrec(prec).Sub(scaled, new(big.Float).SetPrec(prec).SetInt(whole))

	return frac.Cmp(big.NewFloat(0.5)) == 0
}
