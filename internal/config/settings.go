package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultBaseURL    = "http://127.0.0.1:8000"
	defaultReplayAddr = "127.0.0.1:8000"
	defaultSocketPath = "/api/research/ws"

	TransportHTTP      = "http"
	TransportWebsocket = "websocket"

	EnvBaseURL = "COGNITO_BASE_URL"
	EnvMode    = "COGNITO_MODE"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Session SessionConfig `toml:"session"`
	Replay  ReplayConfig  `toml:"replay"`
}

type ServerConfig struct {
	BaseURL     string `toml:"base_url"`
	Transport   string `toml:"transport"`
	SocketURL   string `toml:"socket_url"`
	StartPath   string `toml:"start_path"`
	ApprovePath string `toml:"approve_path"`
}

type SessionConfig struct {
	Mode         string `toml:"mode"`
	ReportMode   string `toml:"report_mode"`
	MaxLineBytes int    `toml:"max_line_bytes"`
}

type ReplayConfig struct {
	Addr         string `toml:"addr"`
	ChunkSize    int    `toml:"chunk_size"`
	ChunkDelayMS int    `toml:"chunk_delay_ms"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			BaseURL:   defaultBaseURL,
			Transport: TransportHTTP,
		},
		Session: SessionConfig{
			Mode:       "gated",
			ReportMode: "replace",
		},
		Replay: ReplayConfig{
			Addr: defaultReplayAddr,
		},
	}
}

// Load reads the configuration at path, or at the default location when path
// is empty, and applies environment overrides. A missing file yields the
// defaults.
func Load(path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		defaultPath, err := ConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	} else {
		resolved, err := resolvePath(path)
		if err != nil {
			return Config{}, err
		}
		path = resolved
	}

	cfg := Default()
	if err := readTOML(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("error reading config %s: %w", path, err)
	}
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if value := strings.TrimSpace(getenv(EnvBaseURL)); value != "" {
		c.Server.BaseURL = value
	}
	if value := strings.TrimSpace(getenv(EnvMode)); value != "" {
		c.Session.Mode = value
	}
}

func (c Config) Validate() error {
	if _, err := url.ParseRequestURI(c.BaseURL()); err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	switch c.Transport() {
	case TransportHTTP, TransportWebsocket:
	default:
		return fmt.Errorf("unknown transport %q", c.Server.Transport)
	}
	if c.Session.MaxLineBytes < 0 {
		return errors.New("max_line_bytes must not be negative")
	}
	return nil
}

func (c Config) BaseURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.Server.BaseURL), "/")
	if base == "" {
		return defaultBaseURL
	}
	return base
}

func (c Config) Transport() string {
	transport := strings.ToLower(strings.TrimSpace(c.Server.Transport))
	switch transport {
	case "", "sse":
		return TransportHTTP
	case "ws":
		return TransportWebsocket
	default:
		return transport
	}
}

// SocketURL returns the websocket endpoint, derived from the base URL unless
// configured explicitly.
func (c Config) SocketURL() string {
	if explicit := strings.TrimSpace(c.Server.SocketURL); explicit != "" {
		return explicit
	}
	base := c.BaseURL()
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + defaultSocketPath
}

func (c Config) ReplayAddr() string {
	addr := strings.TrimSpace(c.Replay.Addr)
	if addr == "" {
		return defaultReplayAddr
	}
	return addr
}

func (c Config) ReplayChunkDelay() time.Duration {
	if c.Replay.ChunkDelayMS <= 0 {
		return 0
	}
	return time.Duration(c.Replay.ChunkDelayMS) * time.Millisecond
}

func readTOML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return toml.Unmarshal(data, out)
}

func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	}
	return filepath.Abs(path)
}
