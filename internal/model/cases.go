package model

import "time"

// CaseRecord is one SRAG case notification. Demographic fields are kept as
// source codes for tabular display.
type CaseRecord struct {
	Row        int       `json:"row"`
	OnsetDate  time.Time `json:"onset_date"`
	Age        string    `json:"age,omitempty"`
	Sex        string    `json:"sex,omitempty"`
	Pregnancy  string    `json:"pregnancy,omitempty"`
	RiskFactor string    `json:"risk_factor,omitempty"`
}

// PregnancyLabel maps the SIVEP CS_GESTANT code to a display label.
func (c CaseRecord) PregnancyLabel() string {
	switch normalizeCode(c.Pregnancy) {
	case "1":
		return "Sim"
	case "2", "5":
		return "Não"
	case "6":
		return "Ignorado"
	default:
		return "N/A"
	}
}

// RiskFactorLabel maps the FATOR_RISC flag to Sim/Não. Anything but 1 is Não.
func (c CaseRecord) RiskFactorLabel() string {
	if normalizeCode(c.RiskFactor) == "1" {
		return "Sim"
	}
	return "Não"
}

// normalizeCode strips a trailing ".0" left by spreadsheet exports ("1.0" -> "1").
func normalizeCode(s string) string {
	for len(s) > 2 && s[len(s)-2:] == ".0" {
		s = s[:len(s)-2]
	}
	return s
}

// WeeklyCount is the number of cases whose onset falls in the week starting at WeekStart.
type WeeklyCount struct {
	WeekStart time.Time `json:"week_start" yaml:"week_start"`
	Cases     int       `json:"cases" yaml:"cases"`
}

// WeeklySeries is a chronologically ordered incidence curve.
type WeeklySeries []WeeklyCount

// Total returns the number of cases across all weeks.
func (s WeeklySeries) Total() int {
	var n int
	for _, w := range s {
		n += w.Cases
	}
	return n
}
