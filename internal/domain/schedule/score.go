package schedule

import (
	"time"

	"github.com/target/transcode-dispatch/internal/domain/model"
)

// Heartbeat freshness windows used by EngineScore.
const (
	freshHeartbeat  = time.Minute
	recentHeartbeat = 5 * time.Minute
)

// EngineScore ranks an engine for a job; higher is better. Assignment uses
// the size-bucket policy in SelectEngine; the score is exposed for
// diagnostics and placement experiments.
//
// Scoring: base 100, plus 100/benchmark_time, plus 20 for a streaming engine
// on a large job, plus 10 when storage is at least twice what the job needs,
// plus 15 or 5 for a heartbeat fresher than one or five minutes.
func EngineScore(engine *model.Engine, job *model.Job, now time.Time) float64 {
	score := 100.0
	if engine.BenchmarkTime != nil && *engine.BenchmarkTime > 0 {
		score += 100 / *engine.BenchmarkTime
	}
	if ClassifySize(job.JobSize) == SizeLarge && engine.StreamingSupport {
		score += 20
	}
	if engine.StorageCapacityGB >= 2*(job.JobSize/1024) {
		score += 10
	}
	switch age := now.Sub(engine.LastHeartbeat); {
	case age < freshHeartbeat:
		score += 15
	case age < recentHeartbeat:
		score += 5
	}
	return score
}
