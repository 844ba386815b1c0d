// Package main is the entry point for the dstat agent.
// It loads configuration, resolves the host identity, and runs the poll
// loop that samples dstat and forwards every metric to the configured
// outputs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Guliveer/dstat-agent/internal/buffer"
	"github.com/Guliveer/dstat-agent/internal/collector"
	"github.com/Guliveer/dstat-agent/internal/config"
	"github.com/Guliveer/dstat-agent/internal/metrics"
	"github.com/Guliveer/dstat-agent/internal/models"
	"github.com/Guliveer/dstat-agent/internal/mqtt"
	"github.com/Guliveer/dstat-agent/internal/pipeline"
	"github.com/Guliveer/dstat-agent/internal/scheduler"
	"github.com/Guliveer/dstat-agent/internal/sender"
	"github.com/Guliveer/dstat-agent/internal/valkey"
)

var (
	// version is set at build time via -ldflags.
	version = "dev"

	configPath  = flag.String("config", "", "Path to configuration file (default: search standard locations)")
	showVersion = flag.Bool("version", false, "Show version and exit")
	option      = flag.String("option", "", "dstat option string, e.g. \"-c -m\"")
	interval    = flag.Duration("interval", 0, "Pause between collection cycles")
	tmpFile     = flag.String("tmpfile", "", "Scratch CSV path passed to dstat --output")
	once        = flag.Bool("once", false, "Collect a single cycle, flush outputs and exit")
	writeConfig = flag.String("write-config", "", "Write the effective configuration to this path and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("dstat-agent %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath, config.CLIOverrides{
		Option:   *option,
		Interval: *interval,
		TmpFile:  *tmpFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *writeConfig != "" {
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
			os.Exit(1)
		}
		if err := config.WriteConfig(cfg, *writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration written to %s\n", *writeConfig)
		os.Exit(0)
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	logger.Info("Starting dstat agent",
		zap.String("version", version),
		zap.String("source", cfg.Sampler.Source),
		zap.String("option", cfg.Sampler.Option))

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received signal, shutting down",
			zap.String("signal", sig.String()))
		cancel()
	}()

	if err := runAgent(ctx, cfg, logger); err != nil {
		logger.Fatal("Agent failed", zap.Error(err))
	}
	logger.Info("Agent stopped")
}

// runAgent wires the collector, pipeline and outputs, then polls until the
// context is cancelled (or after one cycle with -once).
func runAgent(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Sampler.Source == config.SourceDstat {
		unlock, err := collector.LockScratch(cfg.Sampler.TmpFile)
		if err != nil {
			return err
		}
		defer unlock()
	}

	hostname, err := collector.ResolveHostname(ctx, cfg.Host.Hostname)
	if err != nil {
		return fmt.Errorf("resolve hostname: %w", err)
	}

	m := metrics.New()
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Listen, logger); err != nil {
				logger.Error("Self-metrics server failed", zap.Error(err))
			}
		}()
	}

	registry := collector.NewRegistry(logger)
	registry.Register(collector.NewDstatCollector(collector.DstatConfig{
		Binary:      cfg.Sampler.Binary,
		Option:      cfg.Sampler.Option,
		ScratchPath: cfg.Sampler.TmpFile,
		Hostname:    hostname,
		Delay:       cfg.Sampler.Delay,
		Count:       cfg.Sampler.Count,
		UseShell:    cfg.Sampler.UseShell,
		Timeout:     cfg.Sampler.Timeout.Duration,
	}, logger))
	registry.Register(collector.NewNativeCollector(hostname, time.Second, logger))

	c, err := registry.Get(cfg.Sampler.Source)
	if err != nil {
		return err
	}

	sinks, closeSinks, err := buildSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	pipe := pipeline.New(pipeline.Decorator{
		Type:   cfg.Event.Type,
		Tags:   cfg.Event.Tags,
		Fields: cfg.Event.AddField,
	}, pipeline.Options{
		QueueSize:     cfg.Output.QueueSize,
		BatchSize:     cfg.Output.BatchSize,
		FlushInterval: cfg.Output.FlushInterval.Duration,
	}, logger, m, sinks...)
	go pipe.Run(ctx)
	defer pipe.Close()

	sched := scheduler.New(c, cfg.Sampler.Interval.Duration, logger, m)
	sched.OnRecord(func(r models.MetricRecord) {
		pipe.Emit(r)
	})

	logger.Info("Agent running",
		zap.String("collector", c.Name()),
		zap.String("host", hostname),
		zap.Duration("interval", cfg.Sampler.Interval.Duration),
		zap.Int("sinks", len(sinks)))

	if *once {
		_, err := sched.RunOnce(ctx)
		return err
	}
	sched.Start(ctx)
	return nil
}

// buildSinks creates every enabled output. The returned func releases
// output connections and must run after the pipeline is closed.
func buildSinks(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]pipeline.Sink, func(), error) {
	agentID := uuid.NewString()

	var sinks []pipeline.Sink
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.Output.Stdout {
		sinks = append(sinks, pipeline.NewStdoutSink(os.Stdout))
	}

	if cfg.Output.HTTP.Enabled {
		buf, err := buffer.New(cfg.Buffer.Dir, cfg.Buffer.MaxSizeMB, cfg.Buffer.MaxAge.Duration, logger)
		if err != nil {
			return nil, closeAll, fmt.Errorf("initialize buffer: %w", err)
		}
		snd := sender.New(cfg.Output.HTTP, agentID, logger, buf)
		// Flush batches left over from previous runs
		snd.FlushBuffer(ctx)
		sinks = append(sinks, snd)
	}

	if cfg.Output.Valkey.Enabled {
		vk, err := valkey.New(ctx, cfg.Output.Valkey, logger)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		sinks = append(sinks, vk)
		closers = append(closers, vk.Close)
	}

	if cfg.Output.MQTT.Enabled {
		mq, err := mqtt.New(cfg.Output.MQTT, "dstat-agent-"+agentID, logger)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		sinks = append(sinks, mq)
		closers = append(closers, mq.Close)
	}

	return sinks, closeAll, nil
}

// initLogger creates a zap logger based on the configuration.
// Console output goes to stderr so stdout carries only events; an optional
// JSON log file is added alongside.
func initLogger(cfg *config.Config) *zap.Logger {
	var level zapcore.Level
	switch cfg.Logging.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		level,
	)

	cores := []zapcore.Core{consoleCore}

	// File output (structured JSON, if configured)
	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err == nil {
			fileCore := zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderConfig),
				zapcore.AddSync(file),
				level,
			)
			cores = append(cores, fileCore)
		}
	}

	return zap.New(zapcore.NewTee(cores...))
}
