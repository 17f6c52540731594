package config

import (
	"os"
	"strings"
)

// Environment variables read by Load.
const (
	EnvConfig     = "GAZE_CONFIG"
	EnvEngineURL  = "GAZE_ENGINE_URL"
	EnvMQTTBroker = "GAZE_MQTT_BROKER"
	EnvPort       = "GAZE_PORT"
	EnvDB         = "GAZE_DB"
	EnvLogLevel   = "GAZE_LOG_LEVEL"
)

// DefaultPort is the HTTP port used when none is configured.
const DefaultPort = "8080"

// applyEnv overrides deployment settings from the environment.
func (c *File) applyEnv() {
	if url := os.Getenv(EnvEngineURL); url != "" {
		c.Engine.URL = url
	}
	if broker := os.Getenv(EnvMQTTBroker); broker != "" {
		c.MQTT.Broker = broker
	}
	if port := os.Getenv(EnvPort); port != "" {
		c.Server.Addr = ListenAddr(port)
	}
	if db := os.Getenv(EnvDB); db != "" {
		c.Profile.Path = db
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.LogLevel = level
	}
}

// ListenAddr turns a bare port into a listen address. Values that
// already contain a colon are returned unchanged.
func ListenAddr(port string) string {
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}
