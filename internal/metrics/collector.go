// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.


package metrics

import (
	"sync"
	"time"
)

// MetricsCollector keeps a lightweight in-process rollup alongside the
// Prometheus series, for the control surface's /status endpoint where a
// single cheap snapshot read beats scraping /metrics.
type MetricsCollector struct {
	mu sync.RWMutex

	// Counters
	EnvelopeSignCount   int64
	EnvelopeVerifyCount int64
	VerifySuccessCount  int64
	VerifyFailureCount  int64
	TrustLookupCount    int64
	TrustCacheHits      int64
	TrustCacheMisses    int64
	RouterForwardCount  int64
	RouterDropCount     int64

	// Timing metrics (in microseconds)
	SignTimes          []int64
	VerifyTimes        []int64
	RouterHopLatencies []int64
	TrustLookupTimes   []int64

	startTime time.Time

	maxTimingSamples int
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		startTime:        time.Now(),
		maxTimingSamples: 1000,
	}
}

// RecordSign records an envelope signing operation.
func (mc *MetricsCollector) RecordSign(duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.EnvelopeSignCount++
	mc.recordTiming(&mc.SignTimes, duration)
}

// RecordVerify records an envelope verification operation.
func (mc *MetricsCollector) RecordVerify(success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.EnvelopeVerifyCount++
	if success {
		mc.VerifySuccessCount++
	} else {
		mc.VerifyFailureCount++
	}
	mc.recordTiming(&mc.VerifyTimes, duration)
}

// RecordTrustLookup records a trust store peer lookup.
func (mc *MetricsCollector) RecordTrustLookup(cached bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.TrustLookupCount++
	if cached {
		mc.TrustCacheHits++
	} else {
		mc.TrustCacheMisses++
	}
	mc.recordTiming(&mc.TrustLookupTimes, duration)
}

// RecordRouterForward records a router forwarding decision.
func (mc *MetricsCollector) RecordRouterForward(delivered bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.RouterForwardCount++
	if !delivered {
		mc.RouterDropCount++
	}
	mc.recordTiming(&mc.RouterHopLatencies, duration)
}

func (mc *MetricsCollector) recordTiming(timings *[]int64, duration time.Duration) {
	microseconds := duration.Microseconds()
	*timings = append(*timings, microseconds)

	if len(*timings) > mc.maxTimingSamples {
		*timings = (*timings)[len(*timings)-mc.maxTimingSamples:]
	}
}

// GetSnapshot returns a snapshot of current metrics.
func (mc *MetricsCollector) GetSnapshot() *MetricsSnapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return &MetricsSnapshot{
		Timestamp:           time.Now(),
		Uptime:              time.Since(mc.startTime),
		EnvelopeSignCount:   mc.EnvelopeSignCount,
		EnvelopeVerifyCount: mc.EnvelopeVerifyCount,
		VerifySuccessCount:  mc.VerifySuccessCount,
		VerifyFailureCount:  mc.VerifyFailureCount,
		TrustLookupCount:    mc.TrustLookupCount,
		TrustCacheHits:      mc.TrustCacheHits,
		TrustCacheMisses:    mc.TrustCacheMisses,
		RouterForwardCount:  mc.RouterForwardCount,
		RouterDropCount:     mc.RouterDropCount,
		AvgSignTime:         calculateAverage(mc.SignTimes),
		AvgVerifyTime:       calculateAverage(mc.VerifyTimes),
		AvgRouterHopLatency: calculateAverage(mc.RouterHopLatencies),
		AvgTrustLookupTime:  calculateAverage(mc.TrustLookupTimes),
		P95SignTime:         calculatePercentile(mc.SignTimes, 95),
		P95VerifyTime:       calculatePercentile(mc.VerifyTimes, 95),
		P95RouterHopLatency: calculatePercentile(mc.RouterHopLatencies, 95),
		P95TrustLookupTime:  calculatePercentile(mc.TrustLookupTimes, 95),
	}
}

// Reset resets all metrics.
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.EnvelopeSignCount = 0
	mc.EnvelopeVerifyCount = 0
	mc.VerifySuccessCount = 0
	mc.VerifyFailureCount = 0
	mc.TrustLookupCount = 0
	mc.TrustCacheHits = 0
	mc.TrustCacheMisses = 0
	mc.RouterForwardCount = 0
	mc.RouterDropCount = 0

	mc.SignTimes = nil
	mc.VerifyTimes = nil
	mc.RouterHopLatencies = nil
	mc.TrustLookupTimes = nil

	mc.startTime = time.Now()
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	Timestamp time.Time
	Uptime    time.Duration

	EnvelopeSignCount   int64
	EnvelopeVerifyCount int64
	VerifySuccessCount  int64
	VerifyFailureCount  int64
	TrustLookupCount    int64
	TrustCacheHits      int64
	TrustCacheMisses    int64
	RouterForwardCount  int64
	RouterDropCount     int64

	AvgSignTime         float64
	AvgVerifyTime       float64
	AvgRouterHopLatency float64
	AvgTrustLookupTime  float64

	P95SignTime         int64
	P95VerifyTime       int64
	P95RouterHopLatency int64
	P95TrustLookupTime  int64
}

// GetTrustCacheHitRate returns the trust store cache hit rate as a percentage.
func (ms *MetricsSnapshot) GetTrustCacheHitRate() float64 {
	total := ms.TrustCacheHits + ms.TrustCacheMisses
	if total == 0 {
		return 0
	}
	return float64(ms.TrustCacheHits) / float64(total) * 100
}

// GetVerifySuccessRate returns the envelope verification success rate as a percentage.
func (ms *MetricsSnapshot) GetVerifySuccessRate() float64 {
	if ms.EnvelopeVerifyCount == 0 {
		return 0
	}
	return float64(ms.VerifySuccessCount) / float64(ms.EnvelopeVerifyCount) * 100
}

// GetRouterDropRate returns the router drop rate as a percentage.
func (ms *MetricsSnapshot) GetRouterDropRate() float64 {
	if ms.RouterForwardCount == 0 {
		return 0
	}
	return float64(ms.RouterDropCount) / float64(ms.RouterForwardCount) * 100
}

func calculateAverage(values []int64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum int64
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

func calculatePercentile(values []int64, percentile int) int64 {
	if len(values) == 0 {
		return 0
	}

	index := len(values) * percentile / 100
	if index >= len(values) {
		index = len(values) - 1
	}

	sorted := make([]int64, len(values))
	copy(sorted, values)

	for i := 0; i < len(sorted)-1; i++ {
		for j := 0; j < len(sorted)-i-1; j++ {
			if sorted[j] > sorted[j+1] {
				sorted[j], sorted[j+1] = sorted[j+1], sorted[j]
			}
		}
	}

	return sorted[index]
}

// Global metrics collector instance.
var globalCollector = NewMetricsCollector()

// GetGlobalCollector returns the global metrics collector.
func GetGlobalCollector() *MetricsCollector {
	return globalCollector
}
