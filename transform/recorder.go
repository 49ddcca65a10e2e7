package transform

import "time"

// Recorder receives orchestration metrics. internal/metrics.Collector
// satisfies it.
type Recorder interface {
	RecordTransform(provider, style, status string, duration time.Duration)
	RecordProviderAttempt(provider, status string, duration time.Duration)
	RecordFallback(from, to string)
	RecordUsage(provider string, tokens int, cost float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordTransform(string, string, string, time.Duration) {}
func (nopRecorder) RecordProviderAttempt(string, string, time.Duration)  {}
func (nopRecorder) RecordFallback(string, string)                        {}
func (nopRecorder) RecordUsage(string, int, float64)                     {}

// 状态标签
const (
	StatusSuccess = "success"
	StatusError   = "error"
)
