package core

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// sampleInterval is how often the governor refreshes system metrics.
const sampleInterval = 5 * time.Second

// GovernorConfig bounds concurrent transfers against system load.
type GovernorConfig struct {
	MaxConcurrent int
	MaxCPUPercent float64
	MaxMemPercent float64
}

// LoadGovernor samples CPU and memory pressure and recommends how many
// transfers may run at once. Above the configured ceilings it drops to one;
// in between it scales down proportionally to CPU headroom.
type LoadGovernor struct {
	config GovernorConfig
	logger hclog.Logger

	mu         sync.Mutex
	cpuPercent float64
	memPercent float64
	cancel     context.CancelFunc
}

// NewLoadGovernor creates a governor. Start begins sampling.
func NewLoadGovernor(config GovernorConfig, logger hclog.Logger) *LoadGovernor {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 3
	}
	if config.MaxCPUPercent <= 0 {
		config.MaxCPUPercent = 85
	}
	if config.MaxMemPercent <= 0 {
		config.MaxMemPercent = 90
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &LoadGovernor{
		config: config,
		logger: logger.Named("governor"),
	}
}

// Start launches the sampling loop.
func (g *LoadGovernor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	g.mu.Lock()
	g.cancel = cancel
	g.mu.Unlock()

	go func() {
		ticker := time.NewTicker(sampleInterval)
		defer ticker.Stop()
		g.sample(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.sample(ctx)
			}
		}
	}()
}

// Stop halts sampling.
func (g *LoadGovernor) Stop() {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (g *LoadGovernor) sample(ctx context.Context) {
	cpuPercents, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil || len(cpuPercents) == 0 {
		g.logger.Debug("cpu sample failed", "error", err)
		return
	}
	memStats, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		g.logger.Debug("memory sample failed", "error", err)
		return
	}

	g.mu.Lock()
	g.cpuPercent = cpuPercents[0]
	g.memPercent = memStats.UsedPercent
	g.mu.Unlock()
}

// Recommend returns how many transfers should run concurrently given the
// latest sample. Always at least 1.
func (g *LoadGovernor) Recommend() int {
	g.mu.Lock()
	cpuPercent := g.cpuPercent
	memPercent := g.memPercent
	g.mu.Unlock()

	return recommendWorkers(g.config, cpuPercent, memPercent)
}

// recommendWorkers is the pure scaling rule, split out for tests.
func recommendWorkers(config GovernorConfig, cpuPercent, memPercent float64) int {
	if cpuPercent >= config.MaxCPUPercent || memPercent >= config.MaxMemPercent {
		return 1
	}

	// Scale linearly with CPU headroom below the ceiling.
	headroom := (config.MaxCPUPercent - cpuPercent) / config.MaxCPUPercent
	workers := int(float64(config.MaxConcurrent)*headroom + 0.5)
	if workers < 1 {
		workers = 1
	}
	if workers > config.MaxConcurrent {
		workers = config.MaxConcurrent
	}
	return workers
}

// Metrics returns the latest CPU and memory readings.
func (g *LoadGovernor) Metrics() (cpuPercent, memPercent float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cpuPercent, g.memPercent
}
