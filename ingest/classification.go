package ingest

import "github.com/teranos/bkingest/bookkeeping"

// JobClassification is computed once per job and consulted by the stages
// that special-case histogram merging.
type JobClassification int

const (
	Standard JobClassification = iota
	HistogramMerge
)

// Classify inspects the transient JobType parameter
func Classify(job *bookkeeping.Job) JobClassification {
	if jt, ok := job.Param(bookkeeping.ParamJobType); ok && jt == bookkeeping.JobTypeHistogramMerge {
		return HistogramMerge
	}
	return Standard
}

func (c JobClassification) String() string {
	if c == HistogramMerge {
		return "HistogramMerge"
	}
	return "Standard"
}
