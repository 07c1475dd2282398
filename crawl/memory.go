// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package crawl

import (
	"log/slog"
	"os"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

// MemoryMonitor samples this process's resident memory before each crawl
// batch and throttles concurrency when it crosses the threshold. Once
// halved, concurrency stays down for the remainder of the run.
type MemoryMonitor struct {
	thresholdMB uint64

	mu        sync.Mutex
	current   int
	samples   []uint64
	peakMB    uint64
	throttles int
}

// MemoryStats summarizes one monitored run.
type MemoryStats struct {
	PeakMB    uint64  `json:"peak_memory_mb"`
	MeanMB    float64 `json:"mean_memory_mb"`
	Samples   int     `json:"samples"`
	Throttles int     `json:"throttle_count"`
}

// NewMemoryMonitor creates a monitor. thresholdMB of 0 disables
// throttling but still collects stats.
func NewMemoryMonitor(thresholdMB uint64) *MemoryMonitor {
	return &MemoryMonitor{thresholdMB: thresholdMB}
}

// BatchConcurrency samples memory and returns the concurrency to use for
// the next batch. Above the threshold, the current level halves (never
// below 1).
func (m *MemoryMonitor) BatchConcurrency(requested int) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == 0 || requested < m.current {
		m.current = requested
	}

	rssMB := sampleRSSMB()
	m.samples = append(m.samples, rssMB)
	if rssMB > m.peakMB {
		m.peakMB = rssMB
	}

	if m.thresholdMB > 0 && rssMB > m.thresholdMB && m.current > 1 {
		m.current /= 2
		if m.current < 1 {
			m.current = 1
		}
		m.throttles++
		slog.Warn("Memory threshold exceeded, halving crawl concurrency",
			"rss_mb", rssMB, "threshold_mb", m.thresholdMB, "concurrency", m.current)
	}
	return m.current
}

// Stats returns the run summary.
func (m *MemoryMonitor) Stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := MemoryStats{
		PeakMB:    m.peakMB,
		Samples:   len(m.samples),
		Throttles: m.throttles,
	}
	if len(m.samples) > 0 {
		var sum uint64
		for _, s := range m.samples {
			sum += s
		}
		stats.MeanMB = float64(sum) / float64(len(m.samples))
	}
	return stats
}

func sampleRSSMB() uint64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS / (1 << 20)
}
