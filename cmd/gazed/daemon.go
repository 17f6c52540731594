package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-gaze/internal/config"
	"github.com/teslashibe/go-gaze/pkg/bridge"
	"github.com/teslashibe/go-gaze/pkg/engine"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/profile"
	"github.com/teslashibe/go-gaze/pkg/protocol"
	"github.com/teslashibe/go-gaze/pkg/web"
)

// daemon wires the tracker to its collaborators.
type daemon struct {
	cfg      *config.File
	logger   *slog.Logger
	tracker  *gaze.Tracker
	server   *web.Server
	bridge   *bridge.Bridge
	store    *profile.Store
	recorder *profile.Recorder
}

func newDaemon(ctx context.Context, cfg *config.File, logger *slog.Logger) (*daemon, error) {
	gcfg, err := cfg.GazeConfig()
	if err != nil {
		return nil, err
	}

	engOpts := []engine.Option{engine.WithLogger(logger.With("component", "engine"))}
	if gcfg.ScreenWidth > 0 && gcfg.ScreenHeight > 0 {
		engOpts = append(engOpts, engine.WithScreenBounds(gcfg.ScreenWidth, gcfg.ScreenHeight))
	}
	eng, err := engine.Open(cfg.Engine.URL, engOpts...)
	if err != nil {
		return nil, err
	}

	tracker, err := gaze.New(gcfg, eng,
		gaze.WithLogger(logger.With("component", "tracker")),
		gaze.WithCameraID(cfg.Engine.CameraID),
	)
	if err != nil {
		return nil, err
	}

	d := &daemon{cfg: cfg, logger: logger, tracker: tracker}

	if cfg.Server.Addr != "" {
		d.server = web.NewServer(cfg.Server.Addr, tracker, web.WithLogger(logger.With("component", "web")))
	}

	if cfg.Profile.Path != "" {
		d.store, err = profile.Open(cfg.Profile.Path, logger.With("component", "profile"))
		if err != nil {
			return nil, err
		}
		// Before tracking starts an unconfigured screen is only the fallback
		// size, so report it as unknown.
		screenKnown := gcfg.ScreenWidth > 0 && gcfg.ScreenHeight > 0
		d.recorder = profile.NewRecorder(d.store, cfg.Engine.CameraID, func() (float64, float64) {
			snap := tracker.Snapshot()
			if !snap.Tracking && !screenKnown {
				return 0, 0
			}
			return snap.ScreenWidth, snap.ScreenHeight
		})
	}

	if cfg.MQTT.Broker != "" {
		format, err := protocol.ParseFormat(cfg.MQTT.Format)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.bridge, err = bridge.Connect(ctx, cfg.MQTT.Broker, bridge.Options{
			Prefix: cfg.MQTT.Prefix,
			Format: format,
			QoS:    cfg.MQTT.QoS,
			Logger: logger.With("component", "bridge"),
		})
		if err != nil {
			d.Close()
			return nil, err
		}
	}
	return d, nil
}

// Run blocks until ctx is cancelled or a component fails.
func (d *daemon) Run(ctx context.Context, autostart bool) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.tracker.Run(ctx)
	})

	if d.recorder != nil {
		sub := d.tracker.Subscribe(16)
		g.Go(func() error {
			d.recorder.Run(ctx, sub)
			return nil
		})
		if d.cfg.Profile.Restore {
			p, err := d.recorder.Restore(ctx, d.tracker)
			switch {
			case errors.Is(err, profile.ErrNotFound):
				d.logger.Info("no saved calibration profile")
			case errors.Is(err, profile.ErrScreenMismatch):
				d.logger.Warn("calibration profile skipped", "error", err)
			case err != nil:
				d.logger.Warn("calibration profile not restored", "error", err)
			default:
				d.logger.Info("calibration restored", "profile", p.ID, "points", p.PointsUsed)
			}
		}
	}

	if d.bridge != nil {
		sub := d.tracker.Subscribe(256)
		g.Go(func() error {
			d.bridge.Run(ctx, sub)
			return nil
		})
	}

	if d.server != nil {
		g.Go(func() error {
			if err := d.server.Run(ctx); err != nil {
				return fmt.Errorf("web server: %w", err)
			}
			return nil
		})
	}

	if autostart {
		if err := d.tracker.StartTracking(ctx); err != nil {
			d.logger.Error("tracking not started", "error", err)
		}
	}

	d.logger.Info("gazed running", "engine", d.cfg.Engine.URL, "addr", d.cfg.Server.Addr)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the bridge and profile store.
func (d *daemon) Close() {
	if d.bridge != nil {
		d.bridge.Close()
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn("profile store close failed", "error", err)
		}
	}
}
