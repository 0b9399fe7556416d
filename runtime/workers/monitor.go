package workers

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"bananachat/contract"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/process"
)

// HealthMonitorWorker periodically samples process-level metrics (CPU, RSS,
// OS status) together with goroutine and online-user counts and reports them
// through the structured log.
type HealthMonitorWorker struct {
	log      *slog.Logger
	presence contract.IPresence
	interval time.Duration
	nodeID   string
}

func NewHealthMonitorWorker(log *slog.Logger, presence contract.IPresence, interval time.Duration) *HealthMonitorWorker {
	// The node id distinguishes instances when several daemons report into
	// the same aggregated log stream.
	return &HealthMonitorWorker{log: log, presence: presence, interval: interval, nodeID: uuid.NewString()}
}

func (w *HealthMonitorWorker) Run(ctx context.Context) error {
	w.log.Info("Starting health monitor worker", "node", w.nodeID, "interval", w.interval)
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
			rss, cpu, status, err := selfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}

			w.log.Info("Health report",
				"node", w.nodeID,
				"pid", os.Getpid(),
				"status", status,
				"cpu_percent", cpu,
				"ram_bytes", rss,
				"goroutines", runtime.NumGoroutine(),
				"online_users", w.presence.Count(),
			)
		}
	}
}

// selfStats retrieves memory, CPU and OS status for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
