package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/shanedertrain/watlow-controller/internal/config"
	"github.com/shanedertrain/watlow-controller/internal/master"
	"github.com/shanedertrain/watlow-controller/internal/registers"
	"github.com/shanedertrain/watlow-controller/internal/sim"
	"github.com/shanedertrain/watlow-controller/internal/sim/persistence"
	"github.com/shanedertrain/watlow-controller/internal/watlow"
	"github.com/shanedertrain/watlow-controller/transport/rtu"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	args := pflag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel on SIGINT/SIGTERM so a watch loop or simulator winds down
	// cleanly.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Shutting down...")
		cancel()
	}()

	if err := run(ctx, cfg, args); err != nil {
		slog.Error("Command failed", "command", args[0], "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string) error {
	if args[0] == "sim" {
		return runSim(ctx, cfg)
	}

	c, closer, err := newController(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	switch args[0] {
	case "temp":
		v, err := c.ReadTemperature(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%.1f\n", v)
		return nil

	case "setpoint":
		if len(args) < 2 {
			v, err := c.Setpoint(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%.1f\n", v)
			return nil
		}
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid setpoint %q: %w", args[1], err)
		}
		return c.SetSetpoint(ctx, v)

	case "ramp":
		if len(args) < 2 {
			return fmt.Errorf("usage: ramp <degrees-per-minute>")
		}
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid ramp rate %q: %w", args[1], err)
		}
		return c.SetRampRate(ctx, v)

	case "read":
		if len(args) < 2 {
			return fmt.Errorf("usage: read <register>")
		}
		v, err := c.Read(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%g\n", v)
		return nil

	case "write":
		if len(args) < 3 {
			return fmt.Errorf("usage: write <register> <value>")
		}
		v, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", args[2], err)
		}
		return c.Write(ctx, args[1], v)

	case "save":
		return c.Save(ctx)

	case "pid":
		if len(args) < 2 {
			return fmt.Errorf("usage: pid <set>")
		}
		set, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid pid set %q: %w", args[1], err)
		}
		p, err := c.ReadPID(ctx, set)
		if err != nil {
			return err
		}
		units, err := c.PIDUnits(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("set %d (%s units)\n", set, units)
		fmt.Printf("  proportional-band: %g\n", p.ProportionalBand)
		if units == watlow.UnitsSI {
			fmt.Printf("  integral:          %g\n", p.Integral)
			fmt.Printf("  derivative:        %g\n", p.Derivative)
		} else {
			fmt.Printf("  reset:             %g\n", p.Reset)
			fmt.Printf("  rate:              %g\n", p.Rate)
		}
		fmt.Printf("  dead-band:         %g\n", p.DeadBand)
		fmt.Printf("  hysteresis:        %g\n", p.Hysteresis)
		return nil

	case "profile":
		if len(args) < 3 {
			return fmt.Errorf("usage: profile run|clear <number> | set <number> <file> | name <number> <name>")
		}
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid profile number %q: %w", args[2], err)
		}
		switch args[1] {
		case "run":
			return c.RunProfile(ctx, n)
		case "clear":
			return c.ClearProfile(ctx, n)
		case "set":
			if len(args) < 4 {
				return fmt.Errorf("usage: profile set <number> <file>")
			}
			prog, err := watlow.LoadProgram(args[3])
			if err != nil {
				return err
			}
			return c.ConfigureProfile(ctx, n, prog)
		case "name":
			if len(args) < 4 {
				return fmt.Errorf("usage: profile name <number> <name>")
			}
			if err := c.SelectProfile(ctx, n); err != nil {
				return err
			}
			return c.SetProfileName(ctx, args[3])
		default:
			return fmt.Errorf("unknown profile action %q", args[1])
		}

	case "watch":
		interval := 5 * time.Second
		if len(args) >= 2 {
			d, err := time.ParseDuration(args[1])
			if err != nil {
				return fmt.Errorf("invalid interval %q: %w", args[1], err)
			}
			interval = d
		}
		return watch(ctx, c, interval)

	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// watch polls the process value until the context is canceled. Poll
// failures are logged and the loop keeps going; transient bus trouble
// should not end a monitoring session.
func watch(ctx context.Context, c *watlow.Controller, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		v, err := c.ReadTemperature(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("Poll failed", "err", err)
		} else {
			fmt.Printf("%s %.1f\n", time.Now().Format(time.RFC3339), v)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func newController(cfg *config.Config) (*watlow.Controller, io.Closer, error) {
	variant, err := registers.ParseVariant(cfg.Controller.Variant)
	if err != nil {
		return nil, nil, err
	}

	client := rtu.NewClient(cfg.Serial)
	m := master.New(client, master.Config{
		SlaveID:     byte(cfg.Controller.SlaveID),
		Variant:     variant,
		MaxAttempts: cfg.Controller.MaxAttempts,
		Backoff:     cfg.Controller.RetryBackoff,
		MultiWrite:  cfg.Controller.WriteFunction == "multiple",
	})
	return watlow.New(m), client, nil
}

// runSim serves a simulated controller on the configured serial device,
// typically one end of a pty pair.
func runSim(ctx context.Context, cfg *config.Config) error {
	variant, err := registers.ParseVariant(cfg.Sim.Variant)
	if err != nil {
		return err
	}

	storage, err := newStorage(cfg.Sim.Persistence)
	if err != nil {
		return err
	}
	if closer, ok := storage.(io.Closer); ok {
		defer closer.Close()
	}

	dev, err := sim.NewDevice(variant, byte(cfg.Sim.SlaveID), storage)
	if err != nil {
		return err
	}

	slog.Info("Starting simulated controller", "variant", variant, "slaveID", dev.SlaveID(),
		"persistence", cfg.Sim.Persistence.Type)
	return rtu.NewServer(cfg.Serial).Start(ctx, dev.Handle)
}

func newStorage(cfg config.PersistenceConfig) (persistence.Storage, error) {
	switch cfg.Type {
	case "", "memory":
		return persistence.NewMemoryStorage(), nil
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("persistence type %q requires a path", cfg.Type)
		}
		return persistence.NewFileStorage(cfg.Path), nil
	case "mmap":
		if cfg.Path == "" {
			return nil, fmt.Errorf("persistence type %q requires a path", cfg.Type)
		}
		return persistence.NewMmapStorage(cfg.Path), nil
	case "sql":
		if cfg.Path == "" {
			return nil, fmt.Errorf("persistence type %q requires a path", cfg.Type)
		}
		return persistence.NewSQLStorage(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unknown persistence type %q", cfg.Type)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: watlowctl [flags] <command>

Commands:
  temp                     read the process value
  setpoint [value]         read or set the static setpoint
  ramp <rate>              set the ramp rate (degrees per minute)
  read <register>          read a register by name
  write <register> <value> write a register by name
  save                     commit pending changes to EEPROM
  pid <set>                show one PID parameter set
  profile run|clear <n>    run or clear a stored profile
  profile set <n> <file>   write a YAML program into a profile slot
  profile name <n> <name>  rename a stored profile
  watch [interval]         poll the process value until interrupted
  sim                      serve a simulated controller on the serial device

Flags:
`)
	pflag.PrintDefaults()
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stderr: %v\n", err)
			handler = slog.NewTextHandler(os.Stderr, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
