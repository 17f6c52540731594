package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/teslashibe/go-gaze/pkg/gaze"
)

// Line prefixes written by inference programs on stdout.
const (
	gazePrefix        = "GAZE:"
	calibrationPrefix = "CALIBRATION:"
)

// maxLineSize bounds a single stdout line; landmark-heavy samples can be large.
const maxLineSize = 1 << 20

// Process runs an external inference program and reads samples from its
// stdout. The program receives --camera-id, --screen-width and
// --screen-height after the configured arguments.
type Process struct {
	command string
	args    []string
	opts    options
	box     Mailbox

	mu      sync.Mutex
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	done    chan struct{}
	exitErr error
}

// NewProcess creates a subprocess engine. Nothing runs until Start.
func NewProcess(command string, args []string, opts ...Option) *Process {
	return &Process{
		command: command,
		args:    append([]string(nil), args...),
		opts:    newOptions(opts),
	}
}

// Start launches the program. The process lives until Stop, independent
// of ctx, which only bounds the launch itself.
func (p *Process) Start(ctx context.Context, cfg gaze.EngineConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return ErrAlreadyStarted
	}

	args := append(append([]string(nil), p.args...),
		"--camera-id", strconv.Itoa(cfg.CameraID),
		"--screen-width", strconv.FormatFloat(cfg.ScreenWidth, 'f', -1, 64),
		"--screen-height", strconv.FormatFloat(cfg.ScreenHeight, 'f', -1, 64),
	)

	pctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(pctx, p.command, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("engine: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("engine: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("engine: start %s: %w", p.command, err)
	}

	p.box.Clear()
	p.cmd = cmd
	p.cancel = cancel
	p.done = make(chan struct{})
	p.exitErr = nil

	logger := p.opts.logger.With("engine", "process", "pid", cmd.Process.Pid)
	logger.Info("inference process started", "command", p.command, "args", args)

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		p.readStdout(stdout)
	}()
	go func() {
		defer readers.Done()
		p.readStderr(stderr)
	}()

	done := p.done
	go func() {
		// Wait closes the pipes once the process exits, which unblocks
		// readers even if a grandchild still holds the write ends.
		err := cmd.Wait()
		readers.Wait()
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		if pctx.Err() == nil {
			logger.Warn("inference process exited", "error", err)
		}
		close(done)
	}()
	return nil
}

func (p *Process) readStdout(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		p.handleLine(scanner.Bytes())
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.opts.logger.Warn("inference stdout read failed", "error", err)
	}
}

func (p *Process) readStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.opts.logger.Warn("inference stderr", "line", scanner.Text())
	}
}

// handleLine dispatches one stdout line by prefix.
func (p *Process) handleLine(line []byte) {
	line = bytes.TrimSpace(line)
	switch {
	case len(line) == 0:
	case bytes.HasPrefix(line, []byte(gazePrefix)):
		s, err := DecodeSample(line[len(gazePrefix):])
		if err != nil {
			p.opts.logger.Debug("dropping gaze line", "error", err)
			return
		}
		p.box.Put(s)
	case bytes.HasPrefix(line, []byte(calibrationPrefix)):
		p.opts.logger.Debug("engine calibration point", "data", string(line[len(calibrationPrefix):]))
	default:
		p.opts.logger.Debug("inference output", "line", string(line))
	}
}

// Poll returns the newest unpolled sample, or nil if none arrived since
// the last call.
func (p *Process) Poll(ctx context.Context) (*gaze.RawSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	running := p.cmd != nil
	done := p.done
	p.mu.Unlock()
	if !running {
		return nil, ErrNotStarted
	}
	select {
	case <-done:
		p.mu.Lock()
		err := p.exitErr
		p.mu.Unlock()
		return nil, fmt.Errorf("engine: process exited: %v", err)
	default:
	}
	return p.box.Take(), nil
}

// Stop kills the program and waits for it to exit. Stopping a stopped
// engine is a no-op.
func (p *Process) Stop() error {
	p.mu.Lock()
	if p.cmd == nil {
		p.mu.Unlock()
		return nil
	}
	cancel, done := p.cancel, p.done
	p.cmd = nil
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	<-done
	p.box.Clear()
	p.opts.logger.Info("inference process stopped")
	return nil
}

// ScreenBounds reports the size given with WithScreenBounds.
func (p *Process) ScreenBounds(ctx context.Context) (float64, float64, error) {
	return p.opts.bounds()
}

// Received returns how many samples were decoded and how many of them
// were overwritten before being polled.
func (p *Process) Received() (received, replaced uint64) {
	return p.box.Counts()
}

var _ gaze.Engine = (*Process)(nil)
