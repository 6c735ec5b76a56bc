package tasks

import "time"

// buckets are the schedule frequencies in minutes, ascending.
var buckets = []int{1, 5, 10, 15, 30, 60}

// BucketFor maps a configured interval in seconds to the largest schedule bucket
// that does not exceed it: m = max(1, ceil(seconds/60)) minutes, rounded down to
// one of 1, 5, 10, 15, 30 or 60 minutes.
func BucketFor(seconds int) time.Duration {
	m := (seconds + 59) / 60
	if m < 1 {
		m = 1
	}
	chosen := buckets[0]
	for _, b := range buckets {
		if b <= m {
			chosen = b
		}
	}
	return time.Duration(chosen) * time.Minute
}
