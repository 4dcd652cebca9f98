// supd supervises one program and answers control commands from supctl on a
// unix socket.
//
// Usage:
//
//	supd [--config PATH]
//
// The daemon runs until it receives SIGINT, SIGTERM or an exit command. On
// the way out it stops the program and removes its PID file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/axondata/go-sup"
	"github.com/axondata/go-sup/internal/config"
	"github.com/axondata/go-sup/internal/logging"
	"github.com/axondata/go-sup/internal/pidfile"
	"github.com/axondata/go-sup/internal/program"
)

const defaultConfigPath = "sup.toml"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "supd: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath string
	var showVersion bool

	flagSet := pflag.NewFlagSet("supd", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the TOML configuration file")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  supd [flags]\n\nFlags:\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	if showVersion {
		v := sup.GetVersion()
		fmt.Printf("supd %s (protocol %s)\n", v.Version, v.Protocol)
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.Configure("supd", cfg.Sup.LogLevel)

	if cfg.Sup.PIDFile != "" {
		pid := os.Getpid()
		if err := pidfile.Acquire(cfg.Sup.PIDFile, pid); err != nil {
			return err
		}
		defer func() {
			if err := pidfile.Release(cfg.Sup.PIDFile, pid); err != nil {
				logger.Warn().Err(err).Str("path", cfg.Sup.PIDFile).Msg("removing pid file failed")
			}
		}()
	}

	return serve(configPath, cfg, logger)
}

// serve runs the control server until a signal or an exit command arrives
func serve(configPath string, cfg config.Config, logger zerolog.Logger) error {
	backpressure, err := sup.ParseBackpressure(cfg.Sup.Backpressure)
	if err != nil {
		return err
	}

	prog := program.New(cfg.Program, logger)
	handler := program.NewHandler(prog,
		program.WithHandlerLogger(logger),
		program.WithReloadFunc(func() (config.Program, error) {
			fresh, err := config.Load(configPath)
			if err != nil {
				return config.Program{}, err
			}
			return fresh.Program, nil
		}),
	)

	transport := sup.NewUnixTransport(cfg.Sup.Socket,
		sup.WithQueueSize(cfg.Sup.QueueSize),
		sup.WithBackpressure(backpressure),
		sup.WithTransportLogger(logger),
	)
	server := sup.NewServer(transport, sup.RejectUnknown(handler), sup.WithServerLogger(logger))

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-handler.Exited():
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Sup.WatchConfig {
		cleanup, err := config.Watch(ctx, configPath, config.DefaultWatchDebounce, func(fresh config.Config, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("config reload failed, keeping current configuration")
				return
			}
			if fresh.Sup != cfg.Sup {
				logger.Warn().Msg("[sup] settings changed, restart supd to apply them")
			}
			if _, err := prog.Reload(fresh.Program); err != nil {
				logger.Warn().Err(err).Msg("signalling program after config change failed")
				return
			}
			logger.Info().Str("path", configPath).Msg("configuration reloaded")
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := cleanup(); err != nil {
				logger.Warn().Err(err).Msg("stopping config watch")
			}
		}()
	}

	if cfg.Program.AutoStart {
		if _, err := prog.Start(); err != nil {
			logger.Error().Err(err).Msg("autostart failed")
		}
	}

	logger.Info().
		Str("version", sup.Version).
		Str("socket", cfg.Sup.Socket).
		Str("program", cfg.Program.Name).
		Msg("supd starting")

	runErr := server.Run(ctx)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), cfg.Program.StopTimeout+time.Second)
	defer cancelStop()
	if err := prog.Stop(stopCtx); err != nil && !errors.Is(err, program.ErrNotRunning) {
		logger.Warn().Err(err).Msg("stopping program on shutdown")
	}

	logger.Info().Msg("supd stopped")
	return runErr
}
