package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version     int               `yaml:"version"`
	Log         LogConfig         `yaml:"log"`
	Graph       GraphConfig       `yaml:"graph"`
	History     HistoryConfig     `yaml:"history"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Autosave    AutosaveConfig    `yaml:"autosave"`
	Watch       WatchConfig       `yaml:"watch"`
	Server      ServerConfig      `yaml:"server"`
}

// LogConfig selects the logger flavour
type LogConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// GraphConfig holds defaults applied to every new graph
type GraphConfig struct {
	EdgeIDScheme       string `yaml:"edge_id_scheme" validate:"oneof=random composite"`
	DefaultPinCapacity int    `yaml:"default_pin_capacity" validate:"gte=1"`
}

// HistoryConfig bounds the undo stack. Zero means unlimited.
type HistoryConfig struct {
	Limit int `yaml:"limit" validate:"gte=0"`
}

// PersistenceConfig names the on-disk file extensions
type PersistenceConfig struct {
	StructureExt string `yaml:"structure_ext" validate:"required,startswith=."`
	LayoutExt    string `yaml:"layout_ext" validate:"required,startswith=.,nefield=StructureExt"`
}

// AutosaveConfig controls snapshotting into the SQLite recovery database
type AutosaveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Database string `yaml:"database" validate:"required_if=Enabled true"`
}

// WatchConfig controls reloading when the open document changes on disk
type WatchConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Debounce Duration `yaml:"debounce"`
}

// ServerConfig holds HTTP settings for `digraph serve`
type ServerConfig struct {
	Addr         string   `yaml:"addr" validate:"required"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
