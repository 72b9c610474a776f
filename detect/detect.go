// Package detect finds repeated-query (N+1) patterns in a stream of
// captured operations, grouping by namespace and query shape rather than
// by literal query text.
package detect

import (
	"sync"
	"time"

	"github.com/motoki-oss/docdb/bsonx"
)

// Alert represents a detected N+1 query pattern.
type Alert struct {
	Namespace string
	Shape     string
	Count     int
}

// key groups occurrences by namespace and structural shape; two queries
// against different collections, or with different fields, never collide.
type key struct {
	ns    string
	shape string
}

// Detector tracks (namespace, shape) frequency and detects N+1 patterns.
type Detector struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	cooldown  time.Duration
	seen      map[key][]time.Time
	lastAlert map[key]time.Time
}

// New creates a Detector.
// threshold: number of occurrences to trigger (e.g., 5).
// window: time window to count within (e.g., 1s).
// cooldown: minimum time between alerts for the same (namespace, shape) pair.
func New(threshold int, window, cooldown time.Duration) *Detector {
	return &Detector{
		threshold: threshold,
		window:    window,
		cooldown:  cooldown,
		seen:      make(map[key][]time.Time),
		lastAlert: make(map[key]time.Time),
	}
}

// Result holds the outcome of a Record call.
type Result struct {
	// Matched is true when the (namespace, shape) count is at or above
	// the threshold within the time window.
	Matched bool
	// Alert is non-nil when Matched is true and no alert for the same
	// (namespace, shape) was issued within the cooldown.
	Alert *Alert
}

// Record registers one occurrence of query against ns and returns a Result.
func (d *Detector) Record(ns string, query bsonx.Document, t time.Time) Result {
	if ns == "" || query == nil {
		return Result{}
	}
	k := key{ns: ns, shape: Shape(query)}

	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := t.Add(-d.window)

	times := d.seen[k]
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	times = append(times[start:], t)
	d.seen[k] = times

	if len(times) < d.threshold {
		return Result{}
	}

	res := Result{Matched: true}

	if last, ok := d.lastAlert[k]; !ok || t.Sub(last) >= d.cooldown {
		d.lastAlert[k] = t
		res.Alert = &Alert{Namespace: k.ns, Shape: k.shape, Count: len(times)}
	}

	return res
}
