package ingest

import (
	"encoding/json"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// DefaultIDWidth is the length of an IBGE census sector code.
const DefaultIDWidth = 15

// CanonicalID normalizes a sector identifier: surrounding space is trimmed,
// float artifacts ("3106200050000010.0", "3.1062e+14") become plain digits and
// all-digit codes shorter than width are left-padded with zeros. It returns ""
// for a blank identifier.
func CanonicalID(raw string, width int) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	if strings.ContainsAny(s, "eE") && isNumeric(s) {
		if f, _, err := big.ParseFloat(s, 10, 256, big.ToNearestEven); err == nil && f.IsInt() && f.Sign() >= 0 {
			s = f.Text('f', 0)
		}
	}

	if i := strings.IndexByte(s, '.'); i > 0 && allDigits(s[:i]) && strings.Trim(s[i+1:], "0") == "" {
		s = s[:i]
	}

	if width > 0 && allDigits(s) && len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}

// idString renders a decoded property value as an identifier string.
func idString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return ""
	}
}

// ParseNumber parses a numeric cell as exported by Brazilian spreadsheets:
// "42.50", "42,50", "1.234,5" and "42.50%" are all accepted.
func ParseNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	if s == "" {
		return 0, false
	}

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		if strings.Count(s, ",") > 1 {
			return 0, false
		}
		s = strings.Replace(s, ",", ".", 1)
	}

	if !isNumeric(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// population classifies a raw D_Pop_Risco value. issue is empty when the value
// is usable.
func population(v any) (value float64, issue string) {
	var s string
	switch x := v.(type) {
	case nil:
		return 0, "missing"
	case float64:
		value = x
		return value, populationIssue(value)
	case bool:
		return 0, "non-numeric"
	default:
		s = idString(x)
	}
	if strings.TrimSpace(s) == "" {
		return 0, "missing"
	}
	value, ok := ParseNumber(s)
	if !ok {
		return 0, "non-numeric"
	}
	return value, populationIssue(value)
}

func populationIssue(v float64) string {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return "non-finite"
	case v < 0:
		return "negative"
	}
	return ""
}

// isNumeric reports whether s looks like a plain decimal number, optionally
// signed and with an exponent. It rejects "NaN" and "Inf".
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' || r == 'e' || r == 'E':
		case (r == '+' || r == '-') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		default:
			return false
		}
	}
	return digits > 0
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
