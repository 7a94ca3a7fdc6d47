package profiling

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// Metrics is what a profiler measured between its start and Finish.
type Metrics struct {
	Duration    time.Duration
	MemoryDelta int64
	Goroutines  int
}

// JobProfiler profiles a single job on a worker
type JobProfiler struct {
	log         *zap.Logger
	startTime   time.Time
	startMemory uint64
	workerID    int
	job         string
}

// NewJobProfiler starts profiling job on workerID
func NewJobProfiler(log *zap.Logger, workerID int, job string) *JobProfiler {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return &JobProfiler{
		log:         log,
		startTime:   time.Now(),
		startMemory: m.Alloc,
		workerID:    workerID,
		job:         job,
	}
}

// Finish completes job profiling and logs metrics at debug level
func (jp *JobProfiler) Finish() Metrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	metrics := Metrics{
		Duration:    time.Since(jp.startTime),
		MemoryDelta: int64(m.Alloc) - int64(jp.startMemory),
		Goroutines:  runtime.NumGoroutine(),
	}

	jp.log.Debug("job profiled",
		zap.Int("worker", jp.workerID),
		zap.String("job", jp.job),
		zap.Duration("duration", metrics.Duration),
		zap.Int64("memory_delta", metrics.MemoryDelta),
		zap.Int("goroutines", metrics.Goroutines),
	)
	return metrics
}

// MemoryProfiler logs memory usage periodically until its context ends
type MemoryProfiler struct {
	log      *zap.Logger
	interval time.Duration
}

func NewMemoryProfiler(log *zap.Logger, interval time.Duration) *MemoryProfiler {
	return &MemoryProfiler{log: log, interval: interval}
}

// Start begins memory profiling; it stops when ctx is done.
func (mp *MemoryProfiler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(mp.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				mp.logMemoryStats()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (mp *MemoryProfiler) logMemoryStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mp.log.Debug("memory",
		zap.Float64("alloc_mb", bToMb(m.Alloc)),
		zap.Float64("total_alloc_mb", bToMb(m.TotalAlloc)),
		zap.Float64("sys_mb", bToMb(m.Sys)),
		zap.Uint32("gc", m.NumGC),
		zap.Int("goroutines", runtime.NumGoroutine()),
	)
}

// GCStats provides garbage collection statistics
type GCStats struct {
	NumGC        uint32
	PauseTotal   time.Duration
	PauseRecent  time.Duration
	GCCPUPercent float64
}

// GetGCStats returns current garbage collection statistics
func GetGCStats() GCStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var recentPause time.Duration
	if m.NumGC > 0 {
		recentPause = time.Duration(m.PauseNs[(m.NumGC+255)%256])
	}

	return GCStats{
		NumGC:        m.NumGC,
		PauseTotal:   time.Duration(m.PauseTotalNs),
		PauseRecent:  recentPause,
		GCCPUPercent: m.GCCPUFraction * 100,
	}
}

// LogGCStats logs garbage collection statistics
func LogGCStats(log *zap.Logger) {
	stats := GetGCStats()
	log.Debug("gc",
		zap.Uint32("runs", stats.NumGC),
		zap.Duration("pause_total", stats.PauseTotal),
		zap.Duration("pause_recent", stats.PauseRecent),
		zap.Float64("cpu_percent", stats.GCCPUPercent),
	)
}

func bToMb(b uint64) float64 {
	return float64(b) / 1024 / 1024
}
