// Package observability feeds process-level health readings into the
// metrics registry.
package observability

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"chat-relay/metrics"
)

// SystemStats periodically samples the server's own resident memory and CPU
// usage into the process gauges. It runs under the supervisor like any other
// worker.
type SystemStats struct {
	log      *slog.Logger
	metrics  *metrics.Registry
	interval time.Duration
}

func NewSystemStats(log *slog.Logger, m *metrics.Registry, interval time.Duration) *SystemStats {
	return &SystemStats{log: log, metrics: m, interval: interval}
}

func (w *SystemStats) Run(ctx context.Context) error {
	w.log.Info("Starting system stats worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rss, cpu, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			w.metrics.ProcessResidentMemory.Set(float64(rss) / (1024 * 1024))
			w.metrics.ProcessCPUPercent.Set(cpu)
		}
	}
}

func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
