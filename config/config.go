package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go-midimodel/model"
	"go-midimodel/seqerr"
	"go-midimodel/sequence"
)

// ModelConfig holds defaults for newly created models
type ModelConfig struct {
	OverlappingPitchesAccepted bool   `json:"overlappingPitchesAccepted"`
	OverlapPitchResolution     string `json:"overlapPitchResolution,omitempty"`
	InsertMergePolicy          string `json:"insertMergePolicy,omitempty"`
	StuckNoteOption            string `json:"stuckNoteOption,omitempty"`
	Percussive                 bool   `json:"percussive,omitempty"`
}

// SourceConfig controls SMF output
type SourceConfig struct {
	TicksPerQuarter uint16 `json:"ticksPerQuarter,omitempty"`
}

// CaptureConfig defines the MIDI input to record from
type CaptureConfig struct {
	PortName    string  `json:"portName,omitempty"`
	AutoConnect bool    `json:"autoConnect"`
	BPM         float64 `json:"bpm,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	Palette     string `json:"palette,omitempty"` // GPL file, built-in palette if empty
	LastProject string `json:"lastProject,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Model   ModelConfig   `json:"model"`
	Source  SourceConfig  `json:"source,omitempty"`
	Capture CaptureConfig `json:"capture,omitempty"`
	UI      UIConfig      `json:"ui,omitempty"`
	Debug   bool          `json:"debug,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			OverlappingPitchesAccepted: true,
			OverlapPitchResolution:     sequence.LastOnFirstOff.String(),
			InsertMergePolicy:          model.Relax.String(),
			StuckNoteOption:            sequence.ResolveStuckNotes.String(),
		},
		Source: SourceConfig{
			TicksPerQuarter: 960,
		},
		Capture: CaptureConfig{
			BPM: 120,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", seqerr.Wrap(err, "find home directory")
	}
	return filepath.Join(home, ".config", "go-midimodel"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a config file. Fields missing from the file keep their
// defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, seqerr.Wrap(err, "read "+path)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, seqerr.Wrap(err, "parse "+path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return seqerr.Wrap(err, "create "+dir)
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return seqerr.Wrap(err, "encode config")
	}

	return seqerr.Wrap(os.WriteFile(path, data, 0644), "write "+path)
}

// Validate checks the enumerated fields.
func (c *Config) Validate() error {
	if _, err := c.ModelOptions(); err != nil {
		return err
	}
	_, err := c.StuckNotes()
	return err
}

// ModelOptions converts the model section to constructor options.
func (c *Config) ModelOptions() ([]model.Option, error) {
	opts := []model.Option{
		model.WithOverlappingPitches(c.Model.OverlappingPitchesAccepted),
		model.WithPercussive(c.Model.Percussive),
	}
	if s := c.Model.OverlapPitchResolution; s != "" {
		r, ok := sequence.ParseOverlapResolution(s)
		if !ok {
			return nil, seqerr.MalformedState("unknown overlap resolution %q", s)
		}
		opts = append(opts, model.WithOverlapResolution(r))
	}
	if s := c.Model.InsertMergePolicy; s != "" {
		p, ok := model.ParseInsertMergePolicy(s)
		if !ok {
			return nil, seqerr.MalformedState("unknown insert merge policy %q", s)
		}
		opts = append(opts, model.WithInsertMergePolicy(p))
	}
	return opts, nil
}

// StuckNotes is the option used when a load or recording ends.
func (c *Config) StuckNotes() (sequence.StuckNoteOption, error) {
	s := c.Model.StuckNoteOption
	if s == "" {
		return sequence.ResolveStuckNotes, nil
	}
	o, ok := sequence.ParseStuckNoteOption(s)
	if !ok {
		return sequence.ResolveStuckNotes, seqerr.MalformedState("unknown stuck note option %q", s)
	}
	return o, nil
}

// NewModel builds an empty model with the configured defaults.
func (c *Config) NewModel(extra ...model.Option) (*model.Model, error) {
	opts, err := c.ModelOptions()
	if err != nil {
		return nil, err
	}
	return model.New(append(opts, extra...)...), nil
}
