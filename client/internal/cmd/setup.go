package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tapto/tapremote/client/internal/address"
	"github.com/tapto/tapremote/client/internal/config"
	"github.com/tapto/tapremote/client/internal/device"
	"github.com/tapto/tapremote/client/internal/eventbus"
)

// env is everything a command needs to talk to the device.
type env struct {
	cfg       *config.Config
	logger    *slog.Logger
	bus       *eventbus.Bus
	addresses *address.SQLiteStore
}

func (e *env) Close() {
	e.bus.Close()
	_ = e.addresses.Close()
}

func (e *env) newDevice() *device.Device {
	return device.New(e.cfg, e.addresses, e.logger, e.bus)
}

// resolveConfigPath returns the config file path from (in priority order):
// 1. --config / -c flag
// 2. Default value
func resolveConfigPath(cmd *cobra.Command) string {
	if f := cmd.Flag("config"); f != nil && f.Changed {
		return f.Value.String()
	}
	if f := cmd.Root().PersistentFlags().Lookup("config"); f != nil && f.Changed {
		return f.Value.String()
	}
	return config.DefaultPath()
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setup loads config, opens the address store and builds a logger writing
// JSON to logOut. Records are mirrored onto the bus either way.
func setup(cmd *cobra.Command, logOut io.Writer) (*env, error) {
	configPath := resolveConfigPath(cmd)
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("error: %w", err)
	}
	if f := cmd.Root().PersistentFlags().Lookup("address"); f != nil && f.Changed {
		cfg.Device.Address = f.Value.String()
	}

	bus := eventbus.New()
	inner := slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	})
	logger := slog.New(eventbus.NewSlogHandler(inner, bus))

	addresses, err := address.NewSQLite(cfg.Device.DataPath)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("open preferences: %w", err)
	}

	return &env{cfg: cfg, logger: logger, bus: bus, addresses: addresses}, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// startDevice runs d in the background. The returned wait function cancels it
// and blocks until Run has returned.
func startDevice(ctx context.Context, d *device.Device) (wait func() error) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	return func() error {
		cancel()
		return <-done
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
