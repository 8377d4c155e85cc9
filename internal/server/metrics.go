package server

import (
	"sync"
	"time"
)

type perfMetrics struct {
	mu          sync.Mutex
	compiles    int
	invocations int
	failures    int
	totalInvoke time.Duration
	lastInvoke  time.Duration
	lastCompile time.Duration
}

func newPerfMetrics() *perfMetrics {
	return &perfMetrics{}
}

func (pm *perfMetrics) RecordCompile(d time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.compiles++
	pm.lastCompile = d
}

func (pm *perfMetrics) RecordInvoke(d time.Duration, failed bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.invocations++
	if failed {
		pm.failures++
	}
	pm.lastInvoke = d
	pm.totalInvoke += d
}

func (pm *perfMetrics) Snapshot() map[string]interface{} {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	avgInvoke := 0.0
	if pm.invocations > 0 {
		avgInvoke = millis(pm.totalInvoke) / float64(pm.invocations)
	}

	return map[string]interface{}{
		"compiles":      pm.compiles,
		"invocations":   pm.invocations,
		"failures":      pm.failures,
		"lastCompileMs": millis(pm.lastCompile),
		"lastInvokeMs":  millis(pm.lastInvoke),
		"avgInvokeMs":   avgInvoke,
		"generatedAt":   time.Now().Format(time.RFC3339Nano),
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
