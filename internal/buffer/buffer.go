// Package buffer provides a local file-based buffer for undelivered events.
// Batches the HTTP output could not send are split per host, written as
// timestamped JSON files and replayed on the next start. Spills older
// than the configured age are discarded on replay; the total size is
// capped by evicting the oldest file.
package buffer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Guliveer/dstat-agent/internal/models"
)

// spill is the on-disk form of one buffered batch.
type spill struct {
	Host      string         `json:"host"`
	SpilledAt time.Time      `json:"spilled_at"`
	Events    []models.Event `json:"events"`
}

// Buffer stores event batches on disk, one file per host and Store call.
type Buffer struct {
	dir       string
	maxSizeMB int
	maxAge    time.Duration
	logger    *zap.Logger
	mu        sync.Mutex
	seq       int

	// now defaults to time.Now.
	now func() time.Time
}

// New creates a new file-based buffer at the given directory path.
// The directory is created if it does not exist. A zero maxAge keeps
// spills forever.
func New(dir string, maxSizeMB int, maxAge time.Duration, logger *zap.Logger) (*Buffer, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	return &Buffer{
		dir:       dir,
		maxSizeMB: maxSizeMB,
		maxAge:    maxAge,
		logger:    logger.Named("buffer"),
		now:       time.Now,
	}, nil
}

// Store saves a batch of events, one file per host in the order hosts
// first appear. If the buffer exceeds the configured size limit, the
// oldest file is dropped before each write.
func (b *Buffer) Store(events []models.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	spilledAt := b.now().UTC()
	for _, group := range groupByHost(events) {
		if b.currentSizeMB() >= b.maxSizeMB {
			b.logger.Warn("Buffer full, dropping oldest batch")
			b.dropOldest()
		}

		data, err := json.Marshal(spill{Host: group.Host, SpilledAt: spilledAt, Events: group.Events})
		if err != nil {
			return err
		}

		b.seq++
		name := fmt.Sprintf("%s-%06d-%s.json",
			spilledAt.Format("20060102T150405.000"), b.seq%1000000, fileSafe(group.Host))
		if err := os.WriteFile(filepath.Join(b.dir, name), data, 0640); err != nil {
			return err
		}
	}
	return nil
}

// RetrieveAll reads all buffered batches and removes the corresponding
// files. Corrupted and expired files are removed and logged. Returns
// batches in the order they were stored.
func (b *Buffer) RetrieveAll() ([][]models.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}

	now := b.now()
	var batches [][]models.Event
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		path := filepath.Join(b.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			b.logger.Warn("Failed to read buffer file",
				zap.String("file", path),
				zap.Error(err))
			continue
		}

		var s spill
		if err := json.Unmarshal(data, &s); err != nil {
			b.logger.Warn("Failed to parse buffer file, removing corrupted file",
				zap.String("file", path),
				zap.Error(err))
			os.Remove(path)
			continue
		}
		os.Remove(path)

		if b.maxAge > 0 && now.Sub(s.SpilledAt) > b.maxAge {
			b.logger.Info("Discarding expired buffered batch",
				zap.String("host", s.Host),
				zap.Time("spilled_at", s.SpilledAt),
				zap.Int("events", len(s.Events)))
			continue
		}
		if len(s.Events) > 0 {
			batches = append(batches, s.Events)
		}
	}

	return batches, nil
}

// Count returns the number of buffered batch files.
func (b *Buffer) Count() int {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			count++
		}
	}
	return count
}

// currentSizeMB returns the total size of all buffer files in megabytes.
// Must be called with b.mu held.
func (b *Buffer) currentSizeMB() int {
	var totalSize int64
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return 0
	}
	for _, entry := range entries {
		if info, err := entry.Info(); err == nil {
			totalSize += info.Size()
		}
	}
	return int(totalSize / (1024 * 1024))
}

// dropOldest removes the oldest buffer file to free space.
// Must be called with b.mu held.
func (b *Buffer) dropOldest() {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			path := filepath.Join(b.dir, entry.Name())
			if err := os.Remove(path); err != nil {
				b.logger.Warn("Failed to remove oldest buffer file",
					zap.String("file", path),
					zap.Error(err))
			}
			return
		}
	}
}

type hostGroup struct {
	Host   string
	Events []models.Event
}

// groupByHost splits events by their host, keeping event order within a
// host and hosts in order of first appearance.
func groupByHost(events []models.Event) []hostGroup {
	var groups []hostGroup
	index := make(map[string]int)
	for _, ev := range events {
		i, ok := index[ev.Host]
		if !ok {
			i = len(groups)
			index[ev.Host] = i
			groups = append(groups, hostGroup{Host: ev.Host})
		}
		groups[i].Events = append(groups[i].Events, ev)
	}
	return groups
}

// fileSafe maps a host name onto characters safe in a file name.
func fileSafe(host string) string {
	if host == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, host)
}
