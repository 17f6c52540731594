// gaze-monitor is a terminal viewer for a running gazed. It shows the
// stabilized gaze on a scaled screen map along with tracker events, and
// drives tracking and calibration from the keyboard.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/teslashibe/go-gaze/internal/httpc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var server string
	flagSet := pflag.NewFlagSet("gaze-monitor", pflag.ContinueOnError)
	flagSet.StringVarP(&server, "server", "s", "http://localhost:8080", "gazed base URL")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	wsBase, err := websocketBase(server)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := httpc.New(server)
	model := newModel(api)
	program := tea.NewProgram(model, tea.WithAltScreen())

	go stream(ctx, wsBase+"/ws/gaze", program.Send)
	go stream(ctx, wsBase+"/ws/events", program.Send)

	_, err = program.Run()
	return err
}

// websocketBase converts an http(s) base URL to ws(s).
func websocketBase(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("server URL must be http or https, got %q", u.Scheme)
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}
