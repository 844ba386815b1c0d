package collector

import (
	"context"
	"runtime"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"
)

var canonicalStats = map[string]bool{
	"loadavg-short": true, "loadavg-middle": true, "loadavg-long": true,
	"cpu-usr": true, "cpu-sys": true, "cpu-idl": true,
	"cpu-wai": true, "cpu-hiq": true, "cpu-siq": true,
	"net-recv": true, "net-send": true,
	"disk-used": true, "disk-free": true,
	"mem-used": true, "mem-buff": true, "mem-cach": true, "mem-free": true,
	"dsk-read": true, "dsk-writ": true,
	"paging-in": true, "paging-out": true,
	"sys-int": true, "sys-csw": true,
	"swap-used": true, "swap-free": true,
	"procs-run": true, "procs-blk": true, "procs-new": true,
}

func TestNativeCollector_Collect(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("native counters are exercised on linux only")
	}
	c := NewNativeCollector("h1", 50*time.Millisecond, zap.NewNop())

	records, err := c.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(records) == 0 {
		t.Fatal("Collect() returned no records")
	}

	seen := make(map[string]bool)
	for _, r := range records {
		if !canonicalStats[r.Stat] {
			t.Errorf("unexpected stat %q", r.Stat)
		}
		if seen[r.Stat] {
			t.Errorf("duplicate stat %q", r.Stat)
		}
		seen[r.Stat] = true
		if r.Host != "h1" {
			t.Errorf("%s host = %q, want h1", r.Stat, r.Host)
		}
		if _, err := strconv.ParseFloat(r.Value, 64); err != nil {
			t.Errorf("%s value %q is not numeric", r.Stat, r.Value)
		}
	}
	for _, stat := range []string{"cpu-idl", "sys-int", "sys-csw"} {
		if !seen[stat] {
			t.Errorf("%s missing from native records", stat)
		}
	}
}

func TestNativeCollector_CancelledDuringWindow(t *testing.T) {
	c := NewNativeCollector("h1", time.Hour, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := c.Collect(ctx); err == nil {
		t.Fatal("Collect() error = nil, want context error")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Collect() ignored cancellation")
	}
}

func TestNativeCollector_DefaultWindow(t *testing.T) {
	c := NewNativeCollector("h1", 0, zap.NewNop())
	if c.window != time.Second {
		t.Errorf("window = %v, want 1s", c.window)
	}
	if c.Name() != "native" || !c.IsAvailable() {
		t.Errorf("Name/IsAvailable = %q/%v", c.Name(), c.IsAvailable())
	}
}
