// Package config provides configuration management for digraph.
//
// Config file locations (priority order):
//  1. $DIGRAPH_CONFIG
//  2. ./digraph.yaml
//  3. $XDG_CONFIG_HOME/digraph/config.yaml
//  4. ~/.config/digraph/config.yaml
//  5. /etc/digraph/config.yaml
//
// Missing files are not an error: Load falls back to DefaultConfig.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultLogLevel     = "info"
	defaultEdgeScheme   = "random"
	defaultStructureExt = ".dgml"
	defaultLayoutExt    = ".dgml-layout"
	defaultDatabase     = "./digraph.db"
	defaultDebounce     = 200 * time.Millisecond
	defaultAddr         = "127.0.0.1:8080"
	defaultTimeout      = 15 * time.Second
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// Parse decodes YAML config data, fills defaults and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Log:     LogConfig{Level: defaultLogLevel},
		Graph: GraphConfig{
			EdgeIDScheme:       defaultEdgeScheme,
			DefaultPinCapacity: 1,
		},
		Persistence: PersistenceConfig{
			StructureExt: defaultStructureExt,
			LayoutExt:    defaultLayoutExt,
		},
		Autosave: AutosaveConfig{Database: defaultDatabase},
		Watch:    WatchConfig{Debounce: Duration(defaultDebounce)},
		Server: ServerConfig{
			Addr:         defaultAddr,
			ReadTimeout:  Duration(defaultTimeout),
			WriteTimeout: Duration(defaultTimeout),
		},
	}
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	d := DefaultConfig()

	if c.Version == 0 {
		c.Version = d.Version
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Graph.EdgeIDScheme == "" {
		c.Graph.EdgeIDScheme = d.Graph.EdgeIDScheme
	}
	if c.Graph.DefaultPinCapacity == 0 {
		c.Graph.DefaultPinCapacity = d.Graph.DefaultPinCapacity
	}
	if c.Persistence.StructureExt == "" {
		c.Persistence.StructureExt = d.Persistence.StructureExt
	}
	if c.Persistence.LayoutExt == "" {
		c.Persistence.LayoutExt = d.Persistence.LayoutExt
	}
	if c.Autosave.Database == "" {
		c.Autosave.Database = d.Autosave.Database
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = d.Watch.Debounce
	}
	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = d.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = d.Server.WriteTimeout
	}
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	summary := fmt.Sprintf("Edge ids: %s, pin capacity: %d, history limit: %d\n",
		c.Graph.EdgeIDScheme, c.Graph.DefaultPinCapacity, c.History.Limit)
	summary += fmt.Sprintf("Files: *%s + *%s\n", c.Persistence.StructureExt, c.Persistence.LayoutExt)
	if c.Autosave.Enabled {
		summary += fmt.Sprintf("Autosave: %s\n", c.Autosave.Database)
	} else {
		summary += "Autosave: off\n"
	}
	if c.Watch.Enabled {
		summary += fmt.Sprintf("Watch: on (debounce %s)", c.Watch.Debounce.Duration())
	} else {
		summary += "Watch: off"
	}
	return summary
}
