package model

import "sort"

// Reason classifies why a source row was excluded.
type Reason string

// Row rejection reasons.
const (
	ReasonMissingID       Reason = "missing_id"
	ReasonDuplicateID     Reason = "duplicate_id"
	ReasonInvalidDate     Reason = "invalid_date"
	ReasonInvalidGeometry Reason = "invalid_geometry"
)

// maxSamples bounds how many individual rejections a report keeps.
const maxSamples = 20

// Rejection describes a single dropped row. Row is 1-based within the source's data rows.
type Rejection struct {
	Row    int    `json:"row"`
	Reason Reason `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// DropReport counts rows dropped while loading one source.
type DropReport struct {
	Total    int            `json:"total"`
	ByReason map[Reason]int `json:"by_reason,omitempty"`
	Samples  []Rejection    `json:"samples,omitempty"`
}

// Add records a rejection.
func (d *DropReport) Add(r Rejection) {
	if d.ByReason == nil {
		d.ByReason = make(map[Reason]int)
	}
	d.Total++
	d.ByReason[r.Reason]++
	if len(d.Samples) < maxSamples {
		d.Samples = append(d.Samples, r)
	}
}

// Reasons returns the recorded reasons in stable order.
func (d DropReport) Reasons() []Reason {
	out := make([]Reason, 0, len(d.ByReason))
	for r := range d.ByReason {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
