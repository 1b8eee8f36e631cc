package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"i4.energy/across/atbridge/bridge"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration as YAML and exit")
	flag.String("device-port", "/dev/ttyUSB0", "Serial port of the AT device")
	flag.String("host-port", "", "Serial port of the host terminal (default: stdin/stdout)")
	flag.Int("host-baud", 9600, "Baud rate of the host serial port")
	flag.Duration("settle-delay", bridge.DefaultSettleDelay, "Wait after an unterminated command before reading the reply")
	flag.Duration("poll-interval", bridge.DefaultPollInterval, "Time between two device polls")
	flag.Int("idle-polls", bridge.DefaultIdlePolls, "Consecutive empty polls that end a reply")
	flag.Duration("max-collect", bridge.DefaultMaxCollect, "Maximum time spent reading one reply")
	flag.Int("line-capacity", bridge.DefaultLineCapacity, "Size of the host line buffer")
	flag.Int("response-capacity", bridge.DefaultResponseCapacity, "Size of the reply buffer")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("log-format", "console", "Log format (console, json)")
	flag.String("log-output", "stderr", "Log output (stderr, stdout or a file path)")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configPath), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *printConfig {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(config); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to print configuration: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger, err := NewLogger(config.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(config, logger); err != nil {
		logger.Error("Bridge stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func run(config *Config, logger *zap.Logger) error {
	bridgeConfig, err := bridge.NewConfigBuilder().
		WithDialer(bridge.SerialDialer{PortName: config.DevicePort}).
		WithLogger(logger).
		WithSettleDelay(config.SettleDelay).
		WithPollInterval(config.PollInterval).
		WithIdlePolls(config.IdlePolls).
		WithMaxCollect(config.MaxCollect).
		WithLineCapacity(config.LineCapacity).
		WithResponseCapacity(config.ResponseCapacity).
		Build()
	if err != nil {
		return fmt.Errorf("create bridge config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	host, restore, err := openHost(config, cancel)
	if err != nil {
		return err
	}
	defer restore()
	defer host.Close()

	b, err := bridge.New(bridgeConfig, host)
	if err != nil {
		return fmt.Errorf("create bridge: %w", err)
	}

	logger.Info("Starting AT bridge",
		zap.String("device_port", config.DevicePort),
		zap.String("host_port", config.HostPort))

	if err := b.Start(); err != nil {
		return fmt.Errorf("write prompt: %w", err)
	}

	err = b.Loop(ctx)
	if closeErr := b.Close(); closeErr != nil {
		logger.Warn("Failed to close device", zap.Error(closeErr))
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
		logger.Info("AT bridge stopped")
		return nil
	default:
		return err
	}
}
