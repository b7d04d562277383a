package backlog

import (
	"log/slog"
)

// Failure is a single per-record failure in an outcome summary.
type Failure struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Outcome tallies what a batch run or enrichment pass did. Every processed
// record increments exactly one of Created, Updated, Skipped or Failed.
type Outcome struct {
	Total    int       `json:"total"`
	Created  int       `json:"created"`
	Updated  int       `json:"updated"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
	Failures []Failure `json:"failures,omitempty"`
}

// NewOutcome returns an empty outcome for total records.
func NewOutcome(total int) *Outcome {
	return &Outcome{Total: total}
}

func (o *Outcome) AddCreated() { o.Created++ }
func (o *Outcome) AddUpdated() { o.Updated++ }
func (o *Outcome) AddSkipped() { o.Skipped++ }

// AddFailure counts a failed record and keeps its message.
func (o *Outcome) AddFailure(name string, err error) {
	o.Failed++
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	o.Failures = append(o.Failures, Failure{Name: name, Message: msg})
}

// Processed returns how many records have been counted so far.
func (o *Outcome) Processed() int {
	return o.Created + o.Updated + o.Skipped + o.Failed
}

// OK reports whether no record failed.
func (o *Outcome) OK() bool {
	return o.Failed == 0
}

// LogValue implements slog.LogValuer.
func (o *Outcome) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("total", o.Total),
		slog.Int("created", o.Created),
		slog.Int("updated", o.Updated),
		slog.Int("skipped", o.Skipped),
		slog.Int("failed", o.Failed),
	)
}
