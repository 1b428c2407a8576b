// Package priority holds the prioritization formula and the ranking policy.
//
// The score of a census sector is
//
//	P_s = I * D_Pop_s * (1 - C_Vac)
//
// where I is the municipal mean incidence, D_Pop_s the sector's risk
// population and C_Vac the vaccine coverage as a fraction. Everything in this
// package is a pure function of its arguments.
package priority

import (
	"errors"
	"fmt"
	"math"
)

// Factor names used in InvalidInputError.
const (
	FactorRiskPopulation = "risk_population"
	FactorMeanIncidence  = "mean_incidence"
	FactorCoverage       = "vaccine_coverage"
	FactorScore          = "score"
)

// ErrInvalidInput is matched by every InvalidInputError via errors.Is.
var ErrInvalidInput = errors.New("priority: invalid input")

// InvalidInputError reports a scoring input outside its allowed range.
type InvalidInputError struct {
	Factor string
	Value  float64
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("priority: invalid %s %v: %s", e.Factor, e.Value, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidInput) true.
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// ComputeScore returns meanIncidence * riskPopulation * (1 - coverage).
// All inputs must be finite and non-negative and coverage must be <= 1.
func ComputeScore(riskPopulation, meanIncidence, coverage float64) (float64, error) {
	if err := checkNonNegative(FactorRiskPopulation, riskPopulation); err != nil {
		return 0, err
	}
	if err := validateConstants(meanIncidence, coverage); err != nil {
		return 0, err
	}

	score := meanIncidence * riskPopulation * (1 - coverage)
	if math.IsInf(score, 0) {
		return 0, &InvalidInputError{Factor: FactorScore, Value: score, Reason: "product overflows float64"}
	}
	return score, nil
}

func validateConstants(meanIncidence, coverage float64) error {
	if err := checkNonNegative(FactorMeanIncidence, meanIncidence); err != nil {
		return err
	}
	if err := checkNonNegative(FactorCoverage, coverage); err != nil {
		return err
	}
	if coverage > 1 {
		return &InvalidInputError{Factor: FactorCoverage, Value: coverage, Reason: "must be a fraction <= 1; normalize percentages first"}
	}
	return nil
}

func checkNonNegative(factor string, v float64) error {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return &InvalidInputError{Factor: factor, Value: v, Reason: "must be finite"}
	case v < 0:
		return &InvalidInputError{Factor: factor, Value: v, Reason: "must be >= 0"}
	}
	return nil
}
