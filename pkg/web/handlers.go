package web

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/hub"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// ConfigView is the JSON form of the tunable pipeline parameters.
type ConfigView struct {
	ConfidenceThreshold     float64            `json:"confidence_threshold"`
	Smoothing               gaze.SmoothingMode `json:"smoothing"`
	SmoothingWindow         int                `json:"smoothing_window"`
	ProcessNoise            float64            `json:"process_noise"`
	MeasurementNoise        float64            `json:"measurement_noise"`
	OutlierDistanceFraction float64            `json:"outlier_distance_fraction"`
	ScreenWidth             float64            `json:"screen_width"`
	ScreenHeight            float64            `json:"screen_height"`
	PollIntervalMs          int64              `json:"poll_interval_ms"`
	CalibrationSamples      int                `json:"calibration_samples"`
	CalibrationMinPoints    int                `json:"calibration_min_points"`
}

func newConfigView(c gaze.Config) ConfigView {
	return ConfigView{
		ConfidenceThreshold:     c.ConfidenceThreshold,
		Smoothing:               c.Smoothing,
		SmoothingWindow:         c.SmoothingWindow,
		ProcessNoise:            c.ProcessNoise,
		MeasurementNoise:        c.MeasurementNoise,
		OutlierDistanceFraction: c.OutlierDistanceFraction,
		ScreenWidth:             c.ScreenWidth,
		ScreenHeight:            c.ScreenHeight,
		PollIntervalMs:          c.PollInterval.Milliseconds(),
		CalibrationSamples:      c.CalibrationSamples,
		CalibrationMinPoints:    c.CalibrationMinPoints,
	}
}

// ConfigPatch is the request body for PATCH /api/config. Absent fields
// are left unchanged.
type ConfigPatch struct {
	ConfidenceThreshold     *float64            `json:"confidence_threshold"`
	Smoothing               *gaze.SmoothingMode `json:"smoothing"`
	SmoothingWindow         *int                `json:"smoothing_window"`
	ProcessNoise            *float64            `json:"process_noise"`
	MeasurementNoise        *float64            `json:"measurement_noise"`
	OutlierDistanceFraction *float64            `json:"outlier_distance_fraction"`
	PollIntervalMs          *int64              `json:"poll_interval_ms"`
}

func (p ConfigPatch) apply(c *gaze.Config) {
	if p.ConfidenceThreshold != nil {
		c.ConfidenceThreshold = *p.ConfidenceThreshold
	}
	if p.Smoothing != nil {
		c.Smoothing = *p.Smoothing
	}
	if p.SmoothingWindow != nil {
		c.SmoothingWindow = *p.SmoothingWindow
	}
	if p.ProcessNoise != nil {
		c.ProcessNoise = *p.ProcessNoise
	}
	if p.MeasurementNoise != nil {
		c.MeasurementNoise = *p.MeasurementNoise
	}
	if p.OutlierDistanceFraction != nil {
		c.OutlierDistanceFraction = *p.OutlierDistanceFraction
	}
	if p.PollIntervalMs != nil {
		c.PollInterval = time.Duration(*p.PollIntervalMs) * time.Millisecond
	}
}

// CalibrationView is the response of GET /api/calibration.
type CalibrationView struct {
	Calibrated   bool       `json:"calibrated"`
	Model        gaze.Model `json:"model"`
	Calibrating  bool       `json:"calibrating"`
	SessionID    string     `json:"session_id,omitempty"`
	SessionState string     `json:"session_state"`
}

// statusFor maps tracker errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gaze.ErrInvalidConfig):
		return fiber.StatusBadRequest
	case errors.Is(err, gaze.ErrNotTracking),
		errors.Is(err, gaze.ErrAlreadyTracking),
		errors.Is(err, gaze.ErrSessionAlreadyActive):
		return fiber.StatusConflict
	case errors.Is(err, gaze.ErrEngineUnavailable):
		return fiber.StatusBadGateway
	case errors.Is(err, gaze.ErrTrackerClosed),
		errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func errorResponse(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// control runs fn with a bounded context and replies with the new status.
func (s *Server) control(c *fiber.Ctx, action string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.logger.Warn("control request failed", "action", action, "error", err)
		return errorResponse(c, err)
	}
	return c.JSON(s.tracker.Snapshot())
}

// handleStatus returns the tracker snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.tracker.Snapshot())
}

// handleGetConfig returns the active configuration
func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	return c.JSON(newConfigView(s.tracker.Snapshot().Config))
}

// handlePatchConfig updates tunable parameters
func (s *Server) handlePatchConfig(c *fiber.Ctx) error {
	var patch ConfigPatch
	if err := c.BodyParser(&patch); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid config patch: " + err.Error(),
		})
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()
	if err := s.tracker.UpdateConfig(ctx, patch.apply); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(newConfigView(s.tracker.Snapshot().Config))
}

func (s *Server) handleStartTracking(c *fiber.Ctx) error {
	return s.control(c, "start", s.tracker.StartTracking)
}

func (s *Server) handleStopTracking(c *fiber.Ctx) error {
	return s.control(c, "stop", s.tracker.StopTracking)
}

func (s *Server) handlePause(c *fiber.Ctx) error {
	return s.control(c, "pause", s.tracker.Pause)
}

func (s *Server) handleResume(c *fiber.Ctx) error {
	return s.control(c, "resume", s.tracker.Resume)
}

// handleGetCalibration returns the active model and session state
func (s *Server) handleGetCalibration(c *fiber.Ctx) error {
	snap := s.tracker.Snapshot()
	return c.JSON(CalibrationView{
		Calibrated:   snap.Calibrated,
		Model:        snap.Model,
		Calibrating:  snap.Calibrating,
		SessionID:    snap.SessionID,
		SessionState: snap.SessionState,
	})
}

// handleStartCalibration starts a 9-point session
func (s *Server) handleStartCalibration(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()
	id, err := s.tracker.StartCalibration(ctx)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"session_id": id,
	})
}

// handleAbortCalibration cancels the active session
func (s *Server) handleAbortCalibration(c *fiber.Ctx) error {
	return s.control(c, "abort calibration", s.tracker.AbortCalibration)
}

// handleLoadModel installs a model sent by the client
func (s *Server) handleLoadModel(c *fiber.Ctx) error {
	var m gaze.Model
	if err := c.BodyParser(&m); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid model: " + err.Error(),
		})
	}
	return s.control(c, "load model", func(ctx context.Context) error {
		return s.tracker.LoadCalibration(ctx, m)
	})
}

// handleResetModel reverts to the identity model
func (s *Server) handleResetModel(c *fiber.Ctx) error {
	return s.control(c, "reset model", s.tracker.ResetCalibration)
}

// handleHistory returns finished calibration sessions
func (s *Server) handleHistory(c *fiber.Ctx) error {
	return c.JSON(s.History())
}

// handleGazeWS streams stabilized gaze
func (s *Server) handleGazeWS(c *websocket.Conn) {
	if client := hub.NewClient(s.gazeHub, c); client != nil {
		client.Run()
	}
}

// handleEventsWS streams lifecycle and calibration events. A status
// message is sent on connect so clients start from current state.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	client := hub.NewClient(s.eventsHub, c)
	if client == nil {
		return
	}
	if msg, err := protocol.NewMessage(protocol.TypeStatus, s.tracker.Snapshot()); err == nil {
		if data, err := msg.Bytes(); err == nil {
			client.Send(hub.NewJSONMessage(data))
		}
	}
	client.Run()
}

// handleClientMessage answers pings from events clients.
func (s *Server) handleClientMessage(client *hub.Client, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil || msg.Type != protocol.TypePing {
		return
	}
	var ping protocol.PingData
	if err := msg.ParseData(&ping); err != nil {
		return
	}
	pong, err := protocol.NewPongMessage(ping)
	if err != nil {
		return
	}
	if out, err := pong.Bytes(); err == nil {
		client.Send(hub.NewJSONMessage(out))
	}
}
