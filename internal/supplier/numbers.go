package supplier

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseInt reads counts such as stems per bunch. A plain integer is taken as
// is; otherwise a comma is read as the decimal point and the value truncated.
// Anything else is 0.
func ParseInt(v any) int64 {
	text, ok := numericText(v)
	if !ok {
		return 0
	}
	text = strings.TrimSpace(text)
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(text, ",", ".")), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return 0
	}
	return int64(f)
}

// ParseDecimal reads prices. Comma is always the decimal separator, never a
// thousands separator. Unparseable input is 0.
func ParseDecimal(v any) decimal.Decimal {
	text, ok := numericText(v)
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimSpace(strings.ReplaceAll(text, ",", ".")))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func numericText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

// isFalsy mirrors how supplier exports leave optional counts empty: missing,
// null, "" or a literal zero.
func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	case float64:
		return t == 0
	case int:
		return t == 0
	case int64:
		return t == 0
	default:
		return false
	}
}
