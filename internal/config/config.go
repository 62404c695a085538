package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/imdario/mergo"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Config holds everything the tvcsa binary reads from its YAML file. Keys
// are camelCase in the file. Fields left out take their value from Default.
type Config struct {
	Log     LogConfig     `yaml:"log,omitempty"`
	Engine  EngineConfig  `yaml:"engine,omitempty"`
	Input   InputConfig   `yaml:"input,omitempty"`
	Output  OutputConfig  `yaml:"output,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
	CWFeed  CWFeedConfig  `yaml:"cwFeed,omitempty"`

	// Services lists the services to descramble, keyed by their PMT
	// elementary PIDs.
	Services []ServiceConfig `yaml:"services,omitempty"`

	// ConstCW serves fixed control words to matching services.
	ConstCW []ConstCWConfig `yaml:"constCW,omitempty"`
}

type LogConfig struct {
	// Level is a logrus level name; LOG_LEVEL overrides it.
	Level string `yaml:"level,omitempty"`
	JSON  bool   `yaml:"json,omitempty"`
	File  string `yaml:"file,omitempty"` // stderr when empty
}

type EngineConfig struct {
	// Width is the lane count: 32, 64, 128, or 0 to pick one for the CPU.
	Width           int `yaml:"width,omitempty"`
	ClusterMultiple int `yaml:"clusterMultiple,omitempty"`
	// Trace names a file receiving one JSON line per cluster flush.
	Trace string `yaml:"trace,omitempty"`
}

type InputConfig struct {
	// Path is a TS file, "-" for stdin. Ignored when UDP is set.
	Path string `yaml:"path,omitempty"`
	// UDP is a host:port to listen on; multicast groups are joined.
	UDP       string    `yaml:"udp,omitempty"`
	Interface string    `yaml:"interface,omitempty"`
	FEC       FECConfig `yaml:"fec,omitempty"`
}

// FECConfig describes RaptorQ protection of UDP input.
type FECConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
	// Packets is the number of TS packets per source block.
	Packets int `yaml:"packets,omitempty"`
	// SymbolSize is the RaptorQ symbol length in bytes.
	SymbolSize int `yaml:"symbolSize,omitempty"`
	// Repair is the number of repair symbols sent per block.
	Repair int `yaml:"repair,omitempty"`
}

type OutputConfig struct {
	Path string `yaml:"path,omitempty"` // "-" for stdout
}

type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"` // disabled when empty
}

type CWFeedConfig struct {
	Listen string `yaml:"listen,omitempty"` // disabled when empty
}

type ServiceConfig struct {
	SID       uint16       `yaml:"sid"`
	TSID      uint16       `yaml:"tsid,omitempty"`
	ForceCAID string       `yaml:"forceCaid,omitempty"`
	CAIDs     []CAIDConfig `yaml:"caids,omitempty"`
	PIDs      []uint16     `yaml:"pids"`
}

type CAIDConfig struct {
	// ID is a CA system name or a number.
	ID       string `yaml:"id"`
	Provider uint32 `yaml:"provider,omitempty"`
}

type ConstCWConfig struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind,omitempty"`
	CAID     string `yaml:"caid,omitempty"`
	Provider uint32 `yaml:"provider,omitempty"`
	TSID     uint16 `yaml:"tsid,omitempty"`
	SID      uint16 `yaml:"sid"`
	KeyEven  string `yaml:"keyEven"`
	KeyOdd   string `yaml:"keyOdd"`
}

// Default returns the built-in configuration.
// Booleans default to false: a true default could not be turned off from
// the file.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level: "info",
		},
		Engine: EngineConfig{
			ClusterMultiple: 1,
		},
		Input: InputConfig{
			Path: "-",
			FEC: FECConfig{
				Packets:    64,
				SymbolSize: 1316,
				Repair:     8,
			},
		},
		Output: OutputConfig{
			Path: "-",
		},
	}
}

// Load reads path and fills what it leaves out from Default. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			return &cfg, nil
		}
		return nil, err
	}
	return Parse(content)
}

// Parse decodes YAML content and merges the defaults under it.
func Parse(content []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := mergo.Merge(&cfg, Default()); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the YAML types cannot express.
func (c *Config) Validate() error {
	switch c.Engine.Width {
	case 0, 32, 64, 128:
	default:
		return fmt.Errorf("config: engine.width %d is not 0, 32, 64 or 128", c.Engine.Width)
	}
	if c.Engine.ClusterMultiple < 0 {
		return fmt.Errorf("config: engine.clusterMultiple must not be negative")
	}
	sids := lo.Map(c.Services, func(s ServiceConfig, _ int) uint16 { return s.SID })
	if len(lo.Uniq(sids)) != len(sids) {
		return fmt.Errorf("config: duplicate service id in %v", sids)
	}
	pids := lo.FlatMap(c.Services, func(s ServiceConfig, _ int) []uint16 { return s.PIDs })
	if len(lo.Uniq(pids)) != len(pids) {
		return fmt.Errorf("config: a pid is claimed by more than one service")
	}
	for _, s := range c.Services {
		if len(s.PIDs) == 0 {
			return fmt.Errorf("config: service %d has no pids", s.SID)
		}
	}
	if f := c.Input.FEC; f.Enabled && (f.Packets <= 0 || f.SymbolSize <= 0 || f.Repair < 0) {
		return fmt.Errorf("config: bad fec parameters %+v", f)
	}
	for _, cw := range c.ConstCW {
		if cw.Name == "" {
			return fmt.Errorf("config: constCW entry for service %d has no name", cw.SID)
		}
	}
	return nil
}

// Write encodes c as YAML.
func (c *Config) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
