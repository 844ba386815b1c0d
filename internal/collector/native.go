// Native collector: produces the same canonical stats as dstat without the
// external binary. Uses gopsutil for cross-platform system metrics.
package collector

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"

	"github.com/Guliveer/dstat-agent/internal/models"
)

// NativeCollector samples counters twice, Window apart, and reports
// rates over that window alongside instantaneous gauges. sys-int is read
// from /proc/stat and is only emitted on linux.
type NativeCollector struct {
	host   string
	window time.Duration
	logger *zap.Logger
}

var _ Collector = (*NativeCollector)(nil)

// counters holds the cumulative values needed for rate stats.
type counters struct {
	at       time.Time
	cpu      *cpu.TimesStat
	netRecv  uint64
	netSent  uint64
	dskRead  uint64
	dskWrite uint64
	swapIn   uint64
	swapOut  uint64
	intr     uint64
	ctxt     int
	created  int
	hasNet   bool
	hasDisk  bool
	hasSwap  bool
	hasIntr  bool
	hasMisc  bool
}

// NewNativeCollector creates a new native collector. window is the rate
// sampling period and defaults to one second, matching dstat's delay.
func NewNativeCollector(host string, window time.Duration, logger *zap.Logger) *NativeCollector {
	if window <= 0 {
		window = time.Second
	}
	return &NativeCollector{host: host, window: window, logger: logger.Named("native")}
}

// Name returns the collector identifier.
func (c *NativeCollector) Name() string { return "native" }

// IsAvailable returns true; gopsutil works on every supported platform.
func (c *NativeCollector) IsAvailable() bool { return true }

// Collect gathers one sample. It blocks for the sampling window.
func (c *NativeCollector) Collect(ctx context.Context) ([]models.MetricRecord, error) {
	before, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.window)
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil, ctx.Err()
	case <-timer.C:
	}

	after, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var records []models.MetricRecord
	add := func(stat string, v float64) {
		records = append(records, models.MetricRecord{
			Stat:  stat,
			Value: strconv.FormatFloat(v, 'f', 3, 64),
			Host:  c.host,
		})
	}

	// Gauges
	if avg, err := load.AvgWithContext(ctx); err == nil {
		add("loadavg-short", avg.Load1)
		add("loadavg-middle", avg.Load5)
		add("loadavg-long", avg.Load15)
	} else {
		c.logger.Debug("Load average unavailable", zap.Error(err))
	}

	// CPU percentages over the window
	total := cpuTotal(after.cpu) - cpuTotal(before.cpu)
	if total > 0 {
		pct := func(b, a float64) float64 { return (a - b) / total * 100 }
		add("cpu-usr", pct(before.cpu.User+before.cpu.Nice, after.cpu.User+after.cpu.Nice))
		add("cpu-sys", pct(before.cpu.System, after.cpu.System))
		add("cpu-idl", pct(before.cpu.Idle, after.cpu.Idle))
		add("cpu-wai", pct(before.cpu.Iowait, after.cpu.Iowait))
		add("cpu-hiq", pct(before.cpu.Irq, after.cpu.Irq))
		add("cpu-siq", pct(before.cpu.Softirq, after.cpu.Softirq))
	}

	secs := after.at.Sub(before.at).Seconds()
	rate := func(b, a uint64) float64 {
		if a < b || secs <= 0 {
			return 0
		}
		return float64(a-b) / secs
	}

	if before.hasNet && after.hasNet {
		add("net-recv", rate(before.netRecv, after.netRecv))
		add("net-send", rate(before.netSent, after.netSent))
	}

	if usage, err := disk.UsageWithContext(ctx, "/"); err == nil {
		add("disk-used", float64(usage.Used))
		add("disk-free", float64(usage.Free))
	} else {
		c.logger.Debug("Root filesystem usage unavailable", zap.Error(err))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		add("mem-used", float64(vm.Used))
		add("mem-buff", float64(vm.Buffers))
		add("mem-cach", float64(vm.Cached))
		add("mem-free", float64(vm.Free))
	} else {
		c.logger.Debug("Virtual memory unavailable", zap.Error(err))
	}

	if before.hasDisk && after.hasDisk {
		add("dsk-read", rate(before.dskRead, after.dskRead))
		add("dsk-writ", rate(before.dskWrite, after.dskWrite))
	}

	if before.hasSwap && after.hasSwap {
		add("paging-in", rate(before.swapIn, after.swapIn))
		add("paging-out", rate(before.swapOut, after.swapOut))
	}

	if before.hasIntr && after.hasIntr {
		add("sys-int", rate(before.intr, after.intr))
	}
	if before.hasMisc && after.hasMisc {
		add("sys-csw", rate(uint64(before.ctxt), uint64(after.ctxt)))
	}

	if sw, err := mem.SwapMemoryWithContext(ctx); err == nil {
		add("swap-used", float64(sw.Used))
		add("swap-free", float64(sw.Free))
	}

	if misc, err := load.MiscWithContext(ctx); err == nil {
		add("procs-run", float64(misc.ProcsRunning))
		add("procs-blk", float64(misc.ProcsBlocked))
		if before.hasMisc {
			add("procs-new", rate(uint64(before.created), uint64(misc.ProcsCreated)))
		}
	}

	return records, nil
}

// snapshot reads the cumulative counters. Only the CPU times are
// mandatory; the rest are skipped when the platform lacks them.
func (c *NativeCollector) snapshot(ctx context.Context) (counters, error) {
	s := counters{at: time.Now()}

	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return s, fmt.Errorf("cpu times: %w", err)
	}
	if len(times) == 0 {
		return s, fmt.Errorf("cpu times: no data")
	}
	s.cpu = &times[0]

	if io, err := net.IOCountersWithContext(ctx, false); err == nil && len(io) > 0 {
		s.netRecv, s.netSent, s.hasNet = io[0].BytesRecv, io[0].BytesSent, true
	}

	if io, err := disk.IOCountersWithContext(ctx); err == nil {
		for _, d := range io {
			s.dskRead += d.ReadBytes
			s.dskWrite += d.WriteBytes
		}
		s.hasDisk = true
	}

	if sw, err := mem.SwapMemoryWithContext(ctx); err == nil {
		s.swapIn, s.swapOut, s.hasSwap = sw.Sin, sw.Sout, true
	}

	if n, err := irqTotal(); err == nil {
		s.intr, s.hasIntr = n, true
	}

	if misc, err := load.MiscWithContext(ctx); err == nil {
		s.ctxt, s.created, s.hasMisc = misc.Ctxt, misc.ProcsCreated, true
	}

	return s, nil
}

// cpuTotal sums the time buckets dstat accounts for.
func cpuTotal(t *cpu.TimesStat) float64 {
	return t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
}
