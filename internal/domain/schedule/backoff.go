package schedule

import "time"

// MaxRetryDelay caps the exponential backoff between attempts.
const MaxRetryDelay = 30 * time.Minute

// RetryDelay returns how long a failed job waits before becoming eligible
// again: 2^retryCount minutes, capped at MaxRetryDelay.
func RetryDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	// 2^5 minutes already exceeds the cap; larger shifts would overflow.
	if retryCount > 5 {
		return MaxRetryDelay
	}
	return min(time.Duration(1<<retryCount)*time.Minute, MaxRetryDelay)
}
