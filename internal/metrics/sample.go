package metrics

import (
	"github.com/shopspring/decimal"

	"node-rewards-ingester/internal/day"
)

// Label is one name/value pair. Order of labels on a sample is preserved on output.
type Label struct {
	Name  string
	Value string
}

// L is shorthand for a Label.
func L(name, value string) Label {
	return Label{Name: name, Value: value}
}

// Sample is a single timestamped series point.
type Sample struct {
	Name        string
	Labels      []Label
	Value       decimal.Decimal
	TimestampMs int64
}

// Sink accumulates samples for one day and stamps every sample with the
// day's noon timestamp and the sink's context labels.
type Sink struct {
	ts      int64
	context []Label
	out     *[]Sample
}

// NewSink starts a sink for d with the given root labels.
func NewSink(d day.Day, labels ...Label) *Sink {
	out := make([]Sample, 0, 64)
	return &Sink{ts: d.NoonMillis(), context: labels, out: &out}
}

// With returns a child sink that writes to the same output with extra context labels.
func (s *Sink) With(labels ...Label) *Sink {
	ctx := make([]Label, 0, len(s.context)+len(labels))
	ctx = append(ctx, s.context...)
	ctx = append(ctx, labels...)
	return &Sink{ts: s.ts, context: ctx, out: s.out}
}

// Add records one sample.
func (s *Sink) Add(name string, value decimal.Decimal, labels ...Label) {
	all := make([]Label, 0, len(s.context)+len(labels))
	all = append(all, s.context...)
	all = append(all, labels...)
	*s.out = append(*s.out, Sample{Name: name, Labels: all, Value: value, TimestampMs: s.ts})
}

// AddOpt records a sample only when value is present.
func (s *Sink) AddOpt(name string, value decimal.NullDecimal, labels ...Label) {
	if !value.Valid {
		return
	}
	s.Add(name, value.Decimal, labels...)
}

// AddInt records an integer-valued sample.
func (s *Sink) AddInt(name string, value int64, labels ...Label) {
	s.Add(name, decimal.NewFromInt(value), labels...)
}

// Samples returns everything recorded through this sink and its children.
func (s *Sink) Samples() []Sample {
	return *s.out
}
