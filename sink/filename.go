package sink

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// instanceCounter disambiguates sinks within one running process. It is
// intentionally process-local: uniqueness across processes/hosts is carried
// by the hostname component of the filename instead.
var instanceCounter int64

func nextInstance() int64 {
	return atomic.AddInt64(&instanceCounter, 1)
}

// resolveHostname returns the local host name, or "localhost" if it cannot
// be determined. Name resolution failure is not treated as an error.
func resolveHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
}

// roundFilename builds the name of a freshly opened round file:
//
//	hostname-divolte-tracking-YYYYMMDD-RR-HH.mm.ss.SSS-instance.avro
//
// RR is the zero-padded count of full session-length intervals elapsed
// since local midnight of the round's start instant. On days containing a
// DST transition this is not bijective with wall time; that ambiguity is
// accepted rather than silently normalized to UTC.
func roundFilename(hostname string, instance, round, sessionTimeoutMs int64, createdAt time.Time) string {
	roundStartMs := round * sessionTimeoutMs
	roundStart := time.UnixMilli(roundStartMs).Local()
	midnight := time.Date(roundStart.Year(), roundStart.Month(), roundStart.Day(), 0, 0, 0, 0, roundStart.Location())
	rr := roundStart.Sub(midnight).Milliseconds() / sessionTimeoutMs

	return fmt.Sprintf("%s-divolte-tracking-%s-%02d-%s-%d.avro",
		hostname,
		roundStart.Format("20060102"),
		rr,
		createdAt.Format("15.04.05.000"),
		instance,
	)
}
