package reports

import "github.com/ocloudstack/ocloudstack/internal/store"

// Aggregate is the statistical rollup of one metric over the collection
// window. Field names are part of the report wire contract.
type Aggregate struct {
	Current float64 `json:"current"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
}

// aggregate computes the rollup for samples ordered oldest first. The
// boolean is false when there are no samples: absence means "no data", not
// a zero-valued entry, and the metric is omitted from the report.
func aggregate(samples []store.Sample) (Aggregate, bool) {
	if len(samples) == 0 {
		return Aggregate{}, false
	}

	agg := Aggregate{
		Current: samples[len(samples)-1].Value,
		Min:     samples[0].Value,
		Max:     samples[0].Value,
		Samples: len(samples),
	}

	var sum float64
	for _, s := range samples {
		sum += s.Value
		if s.Value < agg.Min {
			agg.Min = s.Value
		}
		if s.Value > agg.Max {
			agg.Max = s.Value
		}
	}
	agg.Average = sum / float64(len(samples))
	return agg, true
}
