// Package config loads the supd TOML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/axondata/go-sup"
	"github.com/axondata/go-sup/internal/unix"
)

// Defaults applied by Load for keys the file leaves out
const (
	DefaultLogLevel     = "info"
	DefaultStopSignal   = "TERM"
	DefaultReloadSignal = "HUP"
	DefaultStopTimeout  = 10 * time.Second
)

// Config is the complete supd configuration
type Config struct {
	Sup     Sup     `toml:"sup"`
	Program Program `toml:"program"`
}

// Sup configures the daemon itself
type Sup struct {
	// Socket is the control socket path
	Socket string `toml:"socket"`
	// PIDFile is where the daemon records its own PID; empty disables it
	PIDFile string `toml:"pid_file"`
	// QueueSize is the capacity of the accepted-connection queue
	QueueSize int `toml:"queue_size"`
	// Backpressure is "block" or "reject"
	Backpressure string `toml:"backpressure"`
	// LogLevel is a zerolog level name
	LogLevel string `toml:"log_level"`
	// WatchConfig reloads the program configuration when this file changes
	WatchConfig bool `toml:"watch_config"`
}

// Program describes the supervised program
type Program struct {
	Name         string            `toml:"name"`
	Command      string            `toml:"command"`
	Args         []string          `toml:"args"`
	Directory    string            `toml:"directory"`
	Env          map[string]string `toml:"env"`
	AutoStart    bool              `toml:"autostart"`
	StopSignal   string            `toml:"stop_signal"`
	ReloadSignal string            `toml:"reload_signal"`
	StopTimeout  time.Duration     `toml:"stop_timeout"`
}

// Environ returns the program environment as KEY=VALUE pairs in key order
func (p Program) Environ() []string {
	keys := make([]string, 0, len(p.Env))
	for k := range p.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+p.Env[k])
	}
	return env
}

// Load reads, defaults and validates the configuration at path
func Load(path string) (Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("config parse failed (%s): unknown keys: %s", path, strings.Join(keys, ", "))
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// ApplyDefaults fills in every optional key left empty
func (c *Config) ApplyDefaults() {
	if c.Sup.QueueSize == 0 {
		c.Sup.QueueSize = sup.DefaultQueueSize
	}
	if c.Sup.Backpressure == "" {
		c.Sup.Backpressure = sup.BackpressureBlock.String()
	}
	if c.Sup.LogLevel == "" {
		c.Sup.LogLevel = DefaultLogLevel
	}
	if c.Program.Name == "" && c.Program.Command != "" {
		c.Program.Name = baseName(c.Program.Command)
	}
	if c.Program.StopSignal == "" {
		c.Program.StopSignal = DefaultStopSignal
	}
	if c.Program.ReloadSignal == "" {
		c.Program.ReloadSignal = DefaultReloadSignal
	}
	if c.Program.StopTimeout == 0 {
		c.Program.StopTimeout = DefaultStopTimeout
	}
}

// Validate reports the first problem found in the configuration
func (c Config) Validate() error {
	if strings.TrimSpace(c.Sup.Socket) == "" {
		return errors.New("sup.socket is required")
	}
	if c.Sup.QueueSize < 1 {
		return fmt.Errorf("sup.queue_size must be at least 1, got %d", c.Sup.QueueSize)
	}
	if _, err := sup.ParseBackpressure(c.Sup.Backpressure); err != nil {
		return fmt.Errorf("sup.backpressure: %w", err)
	}
	if strings.TrimSpace(c.Program.Command) == "" {
		return errors.New("program.command is required")
	}
	if _, err := unix.ParseSignal(c.Program.StopSignal); err != nil {
		return fmt.Errorf("program.stop_signal: %w", err)
	}
	if _, err := unix.ParseSignal(c.Program.ReloadSignal); err != nil {
		return fmt.Errorf("program.reload_signal: %w", err)
	}
	if c.Program.StopTimeout < 0 {
		return fmt.Errorf("program.stop_timeout must not be negative, got %s", c.Program.StopTimeout)
	}
	return nil
}

func baseName(command string) string {
	if i := strings.LastIndexByte(command, '/'); i >= 0 {
		return command[i+1:]
	}
	return command
}
