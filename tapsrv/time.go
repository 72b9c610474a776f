package tapsrv

import "time"

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
