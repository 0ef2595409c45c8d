// Package schedule implements the pure placement and retry policies used by
// the dispatcher. Functions here operate on engine snapshots and hold no
// state of their own.
package schedule

import (
	"cmp"
	"slices"

	"github.com/target/transcode-dispatch/internal/domain/model"
)

// Job size thresholds in megabytes.
const (
	// SmallJobMaxMB is the exclusive upper bound for small jobs.
	SmallJobMaxMB = 50.0
	// LargeJobMinMB is the inclusive lower bound for large jobs.
	LargeJobMinMB = 100.0
)

// SizeClass buckets a job by its reported size.
type SizeClass string

const (
	// SizeSmall jobs are sent to the slowest eligible engine so fast
	// engines stay free for heavier work.
	SizeSmall SizeClass = "small"
	// SizeMedium jobs take the fastest eligible engine. Jobs that report
	// no size fall in this bucket.
	SizeMedium SizeClass = "medium"
	// SizeLarge jobs prefer a streaming-capable engine.
	SizeLarge SizeClass = "large"
)

// ClassifySize buckets a job size in megabytes against the thresholds. A job
// with no reported size (zero) is treated as medium.
func ClassifySize(jobSizeMB float64) SizeClass {
	switch {
	case jobSizeMB >= LargeJobMinMB:
		return SizeLarge
	case jobSizeMB > 0 && jobSizeMB < SmallJobMaxMB:
		return SizeSmall
	default:
		return SizeMedium
	}
}

// SelectEngine picks at most one engine for the job, or nil when none
// qualifies. Eligible engines are idle, have a benchmark on record, and have
// enough storage for the job. Large jobs go to the first streaming-capable
// engine in benchmark order, small jobs to the slowest eligible engine,
// everything else to the fastest. Selection is deterministic for a given
// snapshot: ties in benchmark time are broken by engine id.
func SelectEngine(job *model.Job, candidates []*model.Engine) *model.Engine {
	eligible := filterEligible(job, candidates)
	if len(eligible) == 0 {
		return nil
	}
	sortByBenchmark(eligible)

	switch ClassifySize(job.JobSize) {
	case SizeLarge:
		for _, e := range eligible {
			if e.StreamingSupport {
				return e
			}
		}
		return eligible[0]
	case SizeSmall:
		return eligible[len(eligible)-1]
	default:
		return eligible[0]
	}
}

func filterEligible(job *model.Job, candidates []*model.Engine) []*model.Engine {
	requiredGB := job.JobSize / 1024
	eligible := make([]*model.Engine, 0, len(candidates))
	for _, e := range candidates {
		if e == nil || e.Status != model.EngineStatusIdle || e.BenchmarkTime == nil {
			continue
		}
		if e.StorageCapacityGB < requiredGB {
			continue
		}
		eligible = append(eligible, e)
	}
	return eligible
}

func sortByBenchmark(engines []*model.Engine) {
	slices.SortFunc(engines, func(a, b *model.Engine) int {
		if c := cmp.Compare(*a.BenchmarkTime, *b.BenchmarkTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
