// gazed runs the gaze tracker as a daemon: it polls an inference engine,
// stabilizes the estimates, serves the HTTP/websocket API and optionally
// bridges events to MQTT and persists calibration profiles.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/teslashibe/go-gaze/internal/config"
	"github.com/teslashibe/go-gaze/internal/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		engineURL  string
		addr       string
		broker     string
		dbPath     string
		logLevel   string
		cameraID   int
		autostart  bool
	)

	flagSet := pflag.NewFlagSet("gazed", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to YAML config (default: $"+config.EnvConfig+")")
	flagSet.StringVar(&engineURL, "engine", "", "engine URL: exec:///path, ws://host/path, mqtt://host/topic, mock://")
	flagSet.StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	flagSet.StringVar(&broker, "mqtt", "", "MQTT broker for the event bridge, e.g. tcp://localhost:1883")
	flagSet.StringVar(&dbPath, "db", "", "SQLite file for calibration profiles")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	flagSet.IntVar(&cameraID, "camera", -1, "camera index passed to the engine")
	flagSet.BoolVar(&autostart, "autostart", true, "start tracking immediately")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Flags win over the file and the environment
	if engineURL != "" {
		cfg.Engine.URL = engineURL
	}
	if addr != "" {
		cfg.Server.Addr = config.ListenAddr(addr)
	}
	if broker != "" {
		cfg.MQTT.Broker = broker
	}
	if dbPath != "" {
		cfg.Profile.Path = dbPath
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if cameraID >= 0 {
		cfg.Engine.CameraID = cameraID
	}

	log.Init(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := newDaemon(ctx, cfg, log.L())
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Run(ctx, autostart)
}
