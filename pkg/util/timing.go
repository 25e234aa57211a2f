package util

import "time"

// TimeMicroseconds runs op and returns how long it took.
func TimeMicroseconds(op func()) int64 {
	start := time.Now()
	op()
	return time.Since(start).Microseconds()
}
