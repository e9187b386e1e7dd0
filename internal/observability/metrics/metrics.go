// Package metrics keeps lightweight in-process request counters surfaced on
// the health endpoint.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Recorder accumulates request counts by status class plus auth failures.
type Recorder struct {
	mu           sync.RWMutex
	started      time.Time
	total        uint64
	byClass      map[string]uint64
	authFailures uint64
	durationMS   uint64
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		started: time.Now().UTC(),
		byClass: make(map[string]uint64),
	}
}

var defaultRecorder = NewRecorder()

// Default returns the shared process-wide recorder.
func Default() *Recorder {
	return defaultRecorder
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

// ObserveRequest records one completed HTTP request.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.total++
	r.byClass[statusClass(status)]++
	r.durationMS += uint64(duration.Milliseconds())
	r.mu.Unlock()
}

// ObserveAuthFailure records a bearer token that failed verification.
func (r *Recorder) ObserveAuthFailure() {
	if r == nil {
		return
	}
	atomic.AddUint64(&r.authFailures, 1)
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	UptimeSeconds int64             `json:"uptimeSeconds"`
	TotalRequests uint64            `json:"totalRequests"`
	StatusClasses map[string]uint64 `json:"statusClasses"`
	AuthFailures  uint64            `json:"authFailures"`
	AvgDurationMS float64           `json:"avgDurationMs"`
}

// Snapshot copies the current counters.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{StatusClasses: map[string]uint64{}}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	classes := make(map[string]uint64, len(r.byClass))
	for class, count := range r.byClass {
		classes[class] = count
	}
	snapshot := Snapshot{
		UptimeSeconds: int64(time.Since(r.started).Seconds()),
		TotalRequests: r.total,
		StatusClasses: classes,
		AuthFailures:  atomic.LoadUint64(&r.authFailures),
	}
	if r.total > 0 {
		snapshot.AvgDurationMS = float64(r.durationMS) / float64(r.total)
	}
	return snapshot
}

// ResponseRecorder captures the status code written by downstream handlers.
type ResponseRecorder struct {
	http.ResponseWriter
	status int
}

// NewResponseRecorder wraps w defaulting the captured status to 200.
func NewResponseRecorder(w http.ResponseWriter) *ResponseRecorder {
	return &ResponseRecorder{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader records the status before delegating.
func (rr *ResponseRecorder) WriteHeader(status int) {
	rr.status = status
	rr.ResponseWriter.WriteHeader(status)
}

// Status returns the captured status code.
func (rr *ResponseRecorder) Status() int {
	return rr.status
}
