package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/protocol"
)

const (
	mapWidth       = 48
	mapHeight      = 14
	maxEvents      = 8
	requestTimeout = 3 * time.Second
	refreshEvery   = time.Second
)

// controller is the gazed API used by the monitor.
type controller interface {
	Status(ctx context.Context) (gaze.Snapshot, error)
	Tracking(ctx context.Context, action string) (gaze.Snapshot, error)
	StartCalibration(ctx context.Context) (string, error)
	AbortCalibration(ctx context.Context) error
}

type statusMsg struct {
	snap gaze.Snapshot
	err  error
}

type actionMsg struct {
	action string
	err    error
}

type refreshMsg struct{}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	onStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	offStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mapStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8"))
	gazeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	targetStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(12)
	helpKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

type model struct {
	api  controller
	keys keyMap

	status    gaze.Snapshot
	gaze      *protocol.GazeData
	target    *protocol.TargetData
	frames    int
	events    []string
	connected map[string]bool
	lastErr   string
}

func newModel(api controller) model {
	return model{
		api:       api,
		keys:      defaultKeyMap(),
		connected: make(map[string]bool),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetchStatus(), refreshTick())
}

func refreshTick() tea.Cmd {
	return tea.Tick(refreshEvery, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m model) fetchStatus() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		snap, err := api.Status(ctx)
		return statusMsg{snap: snap, err: err}
	}
}

func (m model) run(action string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return actionMsg{action: action, err: fn(ctx)}
	}
}

func (m model) tracking(action string) tea.Cmd {
	api := m.api
	return m.run(action, func(ctx context.Context) error {
		_, err := api.Tracking(ctx, action)
		return err
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Start):
			return m, m.tracking("start")
		case key.Matches(msg, m.keys.Stop):
			return m, m.tracking("stop")
		case key.Matches(msg, m.keys.Pause):
			if m.status.Paused {
				return m, m.tracking("resume")
			}
			return m, m.tracking("pause")
		case key.Matches(msg, m.keys.Calibrate):
			api := m.api
			return m, m.run("calibrate", func(ctx context.Context) error {
				_, err := api.StartCalibration(ctx)
				return err
			})
		case key.Matches(msg, m.keys.Abort):
			return m, m.run("abort", m.api.AbortCalibration)
		}

	case refreshMsg:
		return m, tea.Batch(m.fetchStatus(), refreshTick())

	case statusMsg:
		if msg.err != nil {
			m.lastErr = msg.err.Error()
			return m, nil
		}
		m.status = msg.snap
		if !m.status.Calibrating {
			m.target = nil
		}

	case actionMsg:
		if msg.err != nil {
			m.lastErr = fmt.Sprintf("%s: %v", msg.action, msg.err)
			return m, nil
		}
		m.lastErr = ""
		return m, m.fetchStatus()

	case connMsg:
		m.connected[msg.url] = msg.connected
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		}

	case streamMsg:
		m.handleStream(msg.msg)
	}
	return m, nil
}

func (m *model) handleStream(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeGaze:
		var d protocol.GazeData
		if msg.ParseData(&d) == nil {
			m.gaze = &d
			m.frames++
		}
		return

	case protocol.TypeStatus:
		var snap gaze.Snapshot
		if msg.ParseData(&snap) == nil {
			m.status = snap
		}
		return

	case protocol.TypeTracking:
		var d protocol.TrackingData
		if msg.ParseData(&d) == nil {
			m.status.Tracking = d.Tracking
			if !d.Tracking {
				m.status.Paused = false
				m.status.Calibrating = false
				m.target = nil
			}
		}

	case protocol.TypeCalibrationStarted:
		m.status.Calibrating = true

	case protocol.TypeCalibrationTarget:
		var d protocol.TargetData
		if msg.ParseData(&d) == nil {
			m.target = &d
		}

	case protocol.TypeCalibrationComplete, protocol.TypeCalibrationAborted:
		m.status.Calibrating = false
		m.target = nil
	}
	m.addEvent(msg)
}

func (m *model) addEvent(msg *protocol.Message) {
	line := fmt.Sprintf("%s  %s", time.UnixMilli(msg.Timestamp).Format("15:04:05"), describe(msg))
	m.events = append(m.events, line)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

// describe renders an event message as one log line.
func describe(msg *protocol.Message) string {
	switch msg.Type {
	case protocol.TypeTracking:
		var d protocol.TrackingData
		_ = msg.ParseData(&d)
		if d.Tracking {
			return "tracking started"
		}
		return "tracking stopped"
	case protocol.TypeCalibrationStarted:
		var d protocol.CalibrationData
		_ = msg.ParseData(&d)
		return "calibration started " + shortID(d.SessionID)
	case protocol.TypeCalibrationTarget:
		var d protocol.TargetData
		_ = msg.ParseData(&d)
		return fmt.Sprintf("target %d at (%.0f, %.0f)", d.Index+1, d.X, d.Y)
	case protocol.TypeCalibrationComplete:
		var d protocol.CalibrationData
		_ = msg.ParseData(&d)
		return fmt.Sprintf("calibrated with %d points: scale (%.3f, %.3f) offset (%.1f, %.1f)",
			d.PointsUsed, d.ScaleX, d.ScaleY, d.OffsetX, d.OffsetY)
	case protocol.TypeCalibrationAborted:
		var d protocol.AbortData
		_ = msg.ParseData(&d)
		return "calibration aborted: " + d.Reason
	}
	return string(msg.Type)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("gaze monitor"))
	b.WriteString("  ")
	b.WriteString(m.stateBadge())
	b.WriteString("\n\n")

	b.WriteString(mapStyle.Render(m.screenMap()))
	b.WriteString("\n")
	b.WriteString(m.readout())
	b.WriteString("\n")

	for _, e := range m.events {
		b.WriteString(offStyle.Render(e))
		b.WriteString("\n")
	}
	if m.lastErr != "" {
		b.WriteString(errStyle.Render(m.lastErr))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	var help []string
	for _, k := range m.keys.help() {
		h := k.Help()
		help = append(help, helpKeyStyle.Render(h.Key)+" "+h.Desc)
	}
	b.WriteString(strings.Join(help, "  "))
	return b.String()
}

func (m model) stateBadge() string {
	var parts []string
	switch {
	case !m.status.Tracking:
		parts = append(parts, offStyle.Render("stopped"))
	case m.status.Paused:
		parts = append(parts, warnStyle.Render("paused"))
	default:
		parts = append(parts, onStyle.Render("tracking"))
	}
	if m.status.Calibrating {
		parts = append(parts, warnStyle.Render("calibrating"))
	} else if m.status.Calibrated {
		parts = append(parts, onStyle.Render("calibrated"))
	} else {
		parts = append(parts, offStyle.Render("uncalibrated"))
	}
	return strings.Join(parts, " · ")
}

// screenMap draws the screen scaled to mapWidth x mapHeight cells with
// the gaze estimate and the current calibration target.
func (m model) screenMap() string {
	w, h := m.status.ScreenWidth, m.status.ScreenHeight
	if w <= 0 || h <= 0 {
		w, h = 1920, 1080
	}

	grid := make([][]string, mapHeight)
	for r := range grid {
		grid[r] = make([]string, mapWidth)
		for c := range grid[r] {
			grid[r][c] = " "
		}
	}
	if m.target != nil {
		r, c := cell(m.target.X, m.target.Y, w, h)
		grid[r][c] = targetStyle.Render("◎")
	}
	if m.gaze != nil {
		r, c := cell(m.gaze.X, m.gaze.Y, w, h)
		grid[r][c] = gazeStyle.Render("●")
	}

	rows := make([]string, mapHeight)
	for r := range grid {
		rows[r] = strings.Join(grid[r], "")
	}
	return strings.Join(rows, "\n")
}

func cell(x, y, w, h float64) (row, col int) {
	col = int(x / w * mapWidth)
	row = int(y / h * mapHeight)
	return min(max(row, 0), mapHeight-1), min(max(col, 0), mapWidth-1)
}

func (m model) readout() string {
	line := func(label, value string) string {
		return labelStyle.Render(label) + value + "\n"
	}
	var b strings.Builder
	if m.gaze == nil {
		b.WriteString(line("gaze", offStyle.Render("no estimate")))
	} else {
		g := m.gaze
		b.WriteString(line("gaze", fmt.Sprintf("(%.0f, %.0f)  conf %.2f", g.X, g.Y, g.Confidence)))
		raw := fmt.Sprintf("(%.0f, %.0f)  conf %.2f", g.RawX, g.RawY, g.RawConfidence)
		switch {
		case !g.Accepted:
			raw += "  " + warnStyle.Render("low confidence")
		case g.Outlier:
			raw += "  " + warnStyle.Render("outlier")
		}
		b.WriteString(line("raw", raw))
		stable := onStyle.Render("stable")
		if !g.Stable {
			stable = warnStyle.Render("unstable")
		}
		b.WriteString(line("stability", fmt.Sprintf("%s  var %.0f  move %.0f", stable, g.Variance, g.Movement)))
	}
	st := m.status.Stats
	b.WriteString(line("frames", fmt.Sprintf("%d total  %d accepted  %d outliers  %.1f fps  (%d streamed)",
		st.TotalFrames, st.AcceptedFrames, st.Outliers, st.FPS, m.frames)))
	return b.String()
}
