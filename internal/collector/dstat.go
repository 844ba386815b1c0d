// dstat collector: runs the external dstat sampler once per cycle into a
// scratch CSV file and turns its first value row into metric records.
package collector

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Guliveer/dstat-agent/internal/dstat"
	"github.com/Guliveer/dstat-agent/internal/models"
)

// maxErrorOutput caps how much sampler output is kept in a SamplerError.
const maxErrorOutput = 512

// DstatConfig configures a DstatCollector.
type DstatConfig struct {
	Binary      string
	Option      string
	ScratchPath string
	Hostname    string
	Delay       int
	Count       int

	// UseShell runs the sampler through `sh -c` with the option string
	// spliced in verbatim instead of splitting it into arguments.
	UseShell bool

	// Timeout kills a sampler that runs longer than this. Zero waits
	// for the sampler indefinitely.
	Timeout time.Duration
}

// DstatCollector collects records by running dstat.
type DstatCollector struct {
	cfg    DstatConfig
	logger *zap.Logger
}

var _ Collector = (*DstatCollector)(nil)

// NewDstatCollector creates a new dstat collector.
func NewDstatCollector(cfg DstatConfig, logger *zap.Logger) *DstatCollector {
	return &DstatCollector{cfg: cfg, logger: logger.Named("dstat")}
}

// Name returns the collector identifier.
func (c *DstatCollector) Name() string { return "dstat" }

// IsAvailable reports whether the sampler binary can be found on PATH.
func (c *DstatCollector) IsAvailable() bool {
	_, err := exec.LookPath(c.cfg.Binary)
	return err == nil
}

// Args returns the sampler argument list, binary first:
// binary [option...] --output <scratch> <delay> <count>.
func (c *DstatCollector) Args() []string {
	args := []string{c.cfg.Binary}
	args = append(args, strings.Fields(c.cfg.Option)...)
	return append(args,
		"--output", c.cfg.ScratchPath,
		strconv.Itoa(c.cfg.Delay),
		strconv.Itoa(c.cfg.Count))
}

// ShellCommand returns the command line used when UseShell is set.
func (c *DstatCollector) ShellCommand() string {
	return c.cfg.Binary + " " + c.cfg.Option + " --output " + c.cfg.ScratchPath +
		" " + strconv.Itoa(c.cfg.Delay) + " " + strconv.Itoa(c.cfg.Count)
}

// Collect truncates the scratch file, runs the sampler, then parses the
// file. Headers are parsed again on every call.
func (c *DstatCollector) Collect(ctx context.Context) ([]models.MetricRecord, error) {
	if err := TruncateScratch(c.cfg.ScratchPath); err != nil {
		return nil, err
	}

	if err := c.run(ctx); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(c.cfg.ScratchPath)
	if err != nil {
		return nil, &ScratchError{Op: "read", Path: c.cfg.ScratchPath, Err: err}
	}

	records, err := dstat.Records(dstat.SplitLines(data), c.cfg.Hostname)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Parsed dstat sample",
		zap.Int("bytes", len(data)),
		zap.Int("records", len(records)))
	return records, nil
}

// run executes the sampler to completion. Cancelling ctx does not kill a
// sampler that is already running; only the optional timeout does.
func (c *DstatCollector) run(ctx context.Context) error {
	runCtx := context.WithoutCancel(ctx)
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, c.cfg.Timeout)
		defer cancel()
	}

	var cmd *exec.Cmd
	var display string
	if c.cfg.UseShell {
		display = c.ShellCommand()
		cmd = exec.CommandContext(runCtx, "sh", "-c", display)
	} else {
		args := c.Args()
		display = strings.Join(args, " ")
		cmd = exec.CommandContext(runCtx, args[0], args[1:]...)
	}

	c.logger.Debug("Running dstat", zap.String("command", display))
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &SamplerError{
			Command: display,
			Output:  tail(strings.TrimSpace(string(output)), maxErrorOutput),
			Err:     err,
		}
	}
	return nil
}

// tail returns at most the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
