// Package web serves the tracker's HTTP control API and live websocket
// streams.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/hub"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

// historySize is how many finished calibration sessions are kept.
const historySize = 50

// Tracker is the part of gaze.Tracker the server drives.
type Tracker interface {
	Snapshot() gaze.Snapshot
	StartTracking(ctx context.Context) error
	StopTracking(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	StartCalibration(ctx context.Context) (string, error)
	AbortCalibration(ctx context.Context) error
	LoadCalibration(ctx context.Context, m gaze.Model) error
	ResetCalibration(ctx context.Context) error
	UpdateConfig(ctx context.Context, fn func(*gaze.Config)) error
	Subscribe(buffer int) *gaze.Subscription
}

// SessionRecord is one finished calibration session.
type SessionRecord struct {
	Time       time.Time   `json:"time"`
	SessionID  string      `json:"session_id"`
	Success    bool        `json:"success"`
	PointsUsed int         `json:"points_used,omitempty"`
	Model      *gaze.Model `json:"model,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// Server is the HTTP and websocket front end
type Server struct {
	app     *fiber.App
	addr    string
	tracker Tracker
	logger  *slog.Logger

	// Calibration history (last historySize sessions)
	history   []SessionRecord
	historyMu sync.RWMutex

	// Hubs for websocket broadcast
	gazeHub   *hub.Hub
	eventsHub *hub.Hub

	requestTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRequestTimeout bounds how long a control request waits for the tracker.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

// NewServer creates a server for tracker listening on addr (e.g. ":8080").
func NewServer(addr string, tracker Tracker, opts ...Option) *Server {
	s := &Server{
		addr:           addr,
		tracker:        tracker,
		history:        make([]SessionRecord, 0, historySize),
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.gazeHub = hub.New("gaze", hub.WithLogger(s.logger))
	s.eventsHub = hub.New("events", hub.WithLogger(s.logger), hub.WithHandler(s.handleClientMessage))

	app := fiber.New(fiber.Config{
		AppName:               "Gaze",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/config", s.handleGetConfig)
	api.Patch("/config", s.handlePatchConfig)

	tracking := api.Group("/tracking")
	tracking.Post("/start", s.handleStartTracking)
	tracking.Post("/stop", s.handleStopTracking)
	tracking.Post("/pause", s.handlePause)
	tracking.Post("/resume", s.handleResume)

	calibration := api.Group("/calibration")
	calibration.Get("/", s.handleGetCalibration)
	calibration.Post("/", s.handleStartCalibration)
	calibration.Delete("/", s.handleAbortCalibration)
	calibration.Put("/model", s.handleLoadModel)
	calibration.Delete("/model", s.handleResetModel)
	calibration.Get("/history", s.handleHistory)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/gaze", websocket.New(s.handleGazeWS))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// App returns the fiber app, e.g. for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hubs, the event forwarder and the HTTP server on ln
// until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("web server listening", "addr", ln.Addr().String())

	sub := s.tracker.Subscribe(256)
	go s.forward(ctx, sub)

	go s.gazeHub.Run(ctx)
	go s.eventsHub.Run(ctx)

	errc := make(chan error, 1)
	go func() { errc <- s.app.Listener(ln) }()

	select {
	case err := <-errc:
		sub.Close()
		return err
	case <-ctx.Done():
	}
	sub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// forward relays tracker events to the websocket hubs.
func (s *Server) forward(ctx context.Context, sub *gaze.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			s.dispatch(ev)
		}
	}
}

func (s *Server) dispatch(ev gaze.Event) {
	switch ev.Type {
	case gaze.EventCalibrationComplete:
		rec := SessionRecord{Time: ev.Time, SessionID: ev.SessionID, Success: true}
		if ev.Complete != nil {
			m := ev.Complete.Model
			rec.Model = &m
			rec.PointsUsed = ev.Complete.PointsUsed
		}
		s.addHistory(rec)
	case gaze.EventCalibrationAborted:
		rec := SessionRecord{Time: ev.Time, SessionID: ev.SessionID}
		if ev.Aborted != nil {
			rec.Reason = ev.Aborted.Reason
		}
		s.addHistory(rec)
	}

	msg, err := protocol.FromEvent(ev)
	if err != nil {
		s.logger.Warn("cannot encode event", "type", ev.Type, "error", err)
		return
	}
	data, err := msg.Bytes()
	if err != nil {
		s.logger.Warn("cannot encode event", "type", ev.Type, "error", err)
		return
	}

	if ev.Type == gaze.EventGaze {
		s.gazeHub.Broadcast(hub.NewJSONMessage(data))
		return
	}
	s.eventsHub.Broadcast(hub.NewJSONMessage(data))
}

func (s *Server) addHistory(rec SessionRecord) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	s.history = append(s.history, rec)
	if len(s.history) > historySize {
		s.history = s.history[1:]
	}
}

// History returns finished calibration sessions, oldest first.
func (s *Server) History() []SessionRecord {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()
	return append([]SessionRecord(nil), s.history...)
}

// GazeHub returns the hub for the gaze stream.
func (s *Server) GazeHub() *hub.Hub {
	return s.gazeHub
}

// EventsHub returns the hub for lifecycle and calibration events.
func (s *Server) EventsHub() *hub.Hub {
	return s.eventsHub
}
