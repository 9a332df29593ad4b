package application

import (
	"iter"

	"github.com/ericfisherdev/stepsync/internal/domain/model"
)

// Chunk is one upstream call: a range and the period that covers it.
type Chunk struct {
	Range  model.Range
	Period model.Period
}

// ChunkRange splits r into consecutive, non-overlapping chunks that each span
// at most model.MaxPeriodDays days. The last chunk holds the remainder.
// Chunks are produced on demand.
func ChunkRange(r model.Range) (iter.Seq[Chunk], error) {
	if r.Start.After(r.End) {
		return nil, r.Validate(r.End)
	}

	return func(yield func(Chunk) bool) {
		for cur := r.Start; !cur.After(r.End); {
			end := cur.AddDays(model.MaxPeriodDays)
			if end.After(r.End) {
				end = r.End
			}

			span := model.Range{Start: cur, End: end}
			// span is within [0, MaxPeriodDays], which always has a period.
			period, _ := model.PeriodFor(span.Days())
			if !yield(Chunk{Range: span, Period: period}) {
				return
			}

			cur = end.AddDays(1)
		}
	}, nil
}
