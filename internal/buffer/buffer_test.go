package buffer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Guliveer/dstat-agent/internal/models"
)

func event(host, stat string) models.Event {
	return models.Event{Version: "1", MetricRecord: models.MetricRecord{Stat: stat, Value: "1", Host: host}}
}

func newTestBuffer(t *testing.T, maxSizeMB int, maxAge time.Duration) (*Buffer, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "buf")
	b, err := New(dir, maxSizeMB, maxAge, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return b, dir
}

func TestStoreAndRetrieveAll(t *testing.T) {
	b, _ := newTestBuffer(t, 50, 0)

	if err := b.Store([]models.Event{event("h1", "cpu-usr"), event("h1", "cpu-sys")}); err != nil {
		t.Fatal(err)
	}
	if err := b.Store([]models.Event{event("h1", "mem-free")}); err != nil {
		t.Fatal(err)
	}
	if got := b.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}

	batches, err := b.RetrieveAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 2 {
		t.Fatalf("RetrieveAll() returned %d batches, want 2", len(batches))
	}
	if batches[0][1].Stat != "cpu-sys" || batches[1][0].Stat != "mem-free" {
		t.Errorf("batches out of order: %+v", batches)
	}
	if got := b.Count(); got != 0 {
		t.Errorf("Count() after retrieve = %d, want 0", got)
	}
}

func TestStore_SplitsByHost(t *testing.T) {
	b, dir := newTestBuffer(t, 50, 0)

	err := b.Store([]models.Event{
		event("web-01", "cpu-usr"),
		event("db/01", "cpu-usr"),
		event("web-01", "cpu-sys"),
	})
	if err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("wrote %d files, want one per host", len(entries))
	}
	if !strings.HasSuffix(entries[0].Name(), "-web-01.json") || !strings.HasSuffix(entries[1].Name(), "-db_01.json") {
		t.Errorf("file names = %s, %s", entries[0].Name(), entries[1].Name())
	}

	batches, err := b.RetrieveAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 2 || len(batches[0]) != 2 || len(batches[1]) != 1 {
		t.Fatalf("batches = %+v", batches)
	}
	if batches[0][0].Host != "web-01" || batches[0][1].Stat != "cpu-sys" || batches[1][0].Host != "db/01" {
		t.Errorf("grouping lost order: %+v", batches)
	}
}

func TestRetrieveAll_DropsExpired(t *testing.T) {
	b, _ := newTestBuffer(t, 50, time.Hour)

	start := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return start }
	if err := b.Store([]models.Event{event("h1", "swap-used")}); err != nil {
		t.Fatal(err)
	}
	b.now = func() time.Time { return start.Add(90 * time.Minute) }
	if err := b.Store([]models.Event{event("h1", "swap-free")}); err != nil {
		t.Fatal(err)
	}

	batches, err := b.RetrieveAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 1 || batches[0][0].Stat != "swap-free" {
		t.Errorf("RetrieveAll() = %+v, want only the fresh batch", batches)
	}
	if got := b.Count(); got != 0 {
		t.Errorf("expired file left behind: Count() = %d", got)
	}
}

func TestRetrieveAll_RemovesCorruptFiles(t *testing.T) {
	b, dir := newTestBuffer(t, 50, 0)
	bad := filepath.Join(dir, "00000000T000000.000-000000-h1.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	batches, err := b.RetrieveAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 0 {
		t.Errorf("RetrieveAll() = %v, want none", batches)
	}
	if _, err := os.Stat(bad); !os.IsNotExist(err) {
		t.Error("corrupt file was not removed")
	}
}

func TestStore_DropsOldestWhenFull(t *testing.T) {
	b, _ := newTestBuffer(t, 0, 0)

	for i := 0; i < 3; i++ {
		if err := b.Store([]models.Event{event("h1", "swap-used")}); err != nil {
			t.Fatal(err)
		}
	}
	// A zero-MB cap evicts one file before each write.
	if got := b.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestFileSafe(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"web-01.example.com", "web-01.example.com"},
		{"db/01", "db_01"},
		{"a b:c", "a_b_c"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		if got := fileSafe(tt.host); got != tt.want {
			t.Errorf("fileSafe(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}
