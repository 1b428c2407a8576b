package priority

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Unit is the scale a coverage value is expressed in.
type Unit string

// Coverage units.
const (
	UnitPercent  Unit = "percent"
	UnitFraction Unit = "fraction"
)

// ParseUnit parses a configured coverage unit.
func ParseUnit(s string) (Unit, error) {
	switch u := Unit(strings.ToLower(strings.TrimSpace(s))); u {
	case UnitPercent, UnitFraction:
		return u, nil
	default:
		return "", eris.Errorf("priority: unknown coverage unit %q (want percent or fraction)", s)
	}
}

// NormalizeCoverage converts a coverage value to a fraction in [0, 1].
// Percentages must lie in [0, 100] and are divided by 100; fractions are
// checked and returned unchanged. Out-of-range values are rejected rather
// than clamped.
func NormalizeCoverage(value float64, unit Unit) (float64, error) {
	if err := checkNonNegative(FactorCoverage, value); err != nil {
		return 0, err
	}

	switch unit {
	case UnitPercent:
		if value > 100 {
			return 0, &InvalidInputError{Factor: FactorCoverage, Value: value, Reason: "percentage must be <= 100"}
		}
		return value / 100, nil
	case UnitFraction:
		if value > 1 {
			return 0, &InvalidInputError{Factor: FactorCoverage, Value: value, Reason: "fraction must be <= 1"}
		}
		return value, nil
	default:
		return 0, eris.Errorf("priority: unknown coverage unit %q", unit)
	}
}

// Vulnerability returns 1 - coverage for a fraction coverage.
func Vulnerability(coverage float64) (float64, error) {
	if err := validateConstants(0, coverage); err != nil {
		return 0, err
	}
	return 1 - coverage, nil
}
