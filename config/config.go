// Package config loads the settings of a pond monitoring run.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/westphae/gopond/calibrate"
	"github.com/westphae/gopond/kalman"
	"github.com/westphae/gopond/pond"
)

// ConfigurationError is a setting that makes the run impossible. It is only
// raised at startup.
type ConfigurationError struct {
	Field string
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Msg)
}

type Pond struct {
	CatchmentArea         float64 `yaml:"catchment_area_ha"`
	SurfaceReactionFactor float64 `yaml:"surface_reaction_factor"`
	DischargeCoefficient  float64 `yaml:"discharge_coefficient"`
	Area                  float64 `yaml:"area_m2"`
	WaterLevel            float64 `yaml:"water_level_cm"`
	WaterLevelMin         float64 `yaml:"water_level_min_cm"`
	WaterLevelMax         float64 `yaml:"water_level_max_cm"`
	Orifice               string  `yaml:"orifice"`
}

type Filter struct {
	InitialState        float64 `yaml:"initial_state"`
	InitialVariance     float64 `yaml:"initial_variance"`
	ProcessNoise        float64 `yaml:"process_noise"`
	SymmetricModelCheck bool    `yaml:"symmetric_model_check"`
}

type Fault struct {
	Kind      string  `yaml:"kind"`
	Amount    float64 `yaml:"amount"`
	Direction string  `yaml:"direction"`
}

type Link struct {
	Mode        string        `yaml:"mode"` // headless, serial or srf02
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	I2CBus      byte          `yaml:"i2c_bus"`
	Data        string        `yaml:"data"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	FailAt      time.Duration `yaml:"fail_at"`
}

type Output struct {
	File       string `yaml:"file"`
	KalmanBank string `yaml:"kalman_bank"`
	ErrorCache string `yaml:"error_cache"`
}

type Rain struct {
	File     string  `yaml:"file"`
	Constant float64 `yaml:"constant_mm"`
}

// Config is everything a run needs.
type Config struct {
	LogLevel      string          `yaml:"log_level"`
	Tick          time.Duration   `yaml:"tick"`
	Duration      time.Duration   `yaml:"duration"`
	SettlingDelay time.Duration   `yaml:"settling_delay"`
	Pond          Pond            `yaml:"pond"`
	Filter        Filter          `yaml:"filter"`
	Faults        []Fault         `yaml:"faults"`
	Gauge         calibrate.Gauge `yaml:"gauge"`
	Link          Link            `yaml:"link"`
	Rain          Rain            `yaml:"rain"`
	Output        Output          `yaml:"output"`
}

// Default is the pond the system was built for.
func Default() *Config {
	return &Config{
		LogLevel:      "info",
		Tick:          10 * time.Second,
		Duration:      100 * time.Second,
		SettlingDelay: time.Minute,
		Pond: Pond{
			CatchmentArea:         1.85,
			SurfaceReactionFactor: 0.25,
			DischargeCoefficient:  0.6,
			Area:                  5572,
			WaterLevel:            700,
			WaterLevelMin:         100,
			WaterLevelMax:         850,
			Orifice:               "med",
		},
		Filter: Filter{
			InitialState:    700,
			InitialVariance: 10,
			ProcessNoise:    0.1,
		},
		Faults: []Fault{
			{Kind: "add", Amount: 10, Direction: "higher"},
			{Kind: "subtract", Amount: 10, Direction: "lower"},
			{Kind: "constant", Amount: 10, Direction: "lower"},
			{Kind: "constant", Amount: 0, Direction: "lower"},
		},
		Gauge: calibrate.Identity,
		Link: Link{
			Mode:        "headless",
			Port:        "/dev/ttyACM0",
			Baud:        9600,
			I2CBus:      1,
			ReadTimeout: 5 * time.Second,
		},
		Rain: Rain{Constant: 10},
		Output: Output{
			File: "out.csv",
		},
	}
}

// Load reads fn over the defaults. An empty fn returns the defaults.
// The result is not validated; callers apply their overrides first.
func Load(fn string) (*Config, error) {
	c := Default()
	if fn == "" {
		return c, nil
	}
	f, err := os.Open(fn)
	if err != nil {
		return nil, errors.Wrap(err, "config: open")
	}
	defer f.Close()
	if err := c.Decode(f); err != nil {
		return nil, err
	}
	return c, nil
}

// Decode overlays YAML from r onto c.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return errors.Wrap(err, "config: decode")
	}
	return nil
}

// Validate reports the first problem as a *ConfigurationError.
func (c *Config) Validate() error {
	bad := func(field, format string, a ...interface{}) error {
		return &ConfigurationError{Field: field, Msg: fmt.Sprintf(format, a...)}
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return bad("log_level", "%s", err)
	}
	if c.Tick < time.Second || c.Tick%time.Second != 0 {
		return bad("tick", "must be a whole number of seconds, got %s", c.Tick)
	}
	if c.Duration < 0 || c.SettlingDelay < 0 {
		return bad("duration", "durations must not be negative")
	}

	p := c.Pond
	if p.Area <= 0 {
		return bad("pond.area_m2", "must be positive, got %g", p.Area)
	}
	if p.CatchmentArea < 0 || p.SurfaceReactionFactor < 0 || p.DischargeCoefficient < 0 {
		return bad("pond", "coefficients must not be negative")
	}
	if p.WaterLevelMin > p.WaterLevelMax {
		return bad("pond.water_level_min_cm", "%g above maximum %g", p.WaterLevelMin, p.WaterLevelMax)
	}
	if p.WaterLevel < p.WaterLevelMin || p.WaterLevel > p.WaterLevelMax {
		return bad("pond.water_level_cm", "%g outside [%g, %g]", p.WaterLevel, p.WaterLevelMin, p.WaterLevelMax)
	}
	if _, err := pond.ParseOrifice(p.Orifice); err != nil {
		return bad("pond.orifice", "%s", err)
	}

	if c.Filter.InitialVariance < 0 || c.Filter.ProcessNoise < 0 {
		return bad("filter", "variances must not be negative")
	}
	if _, err := c.KalmanFaults(); err != nil {
		return err
	}
	if c.Gauge.Scale == 0 {
		return bad("gauge.scale", "must not be zero")
	}

	switch strings.ToLower(c.Link.Mode) {
	case "headless":
		if c.Link.Data == "" {
			return bad("link.data", "headless mode needs a data file")
		}
	case "serial", "srf02":
	default:
		return bad("link.mode", "unknown mode %q, want headless, serial or srf02", c.Link.Mode)
	}
	if c.Link.ReadTimeout <= 0 {
		return bad("link.read_timeout", "must be positive")
	}
	if c.Output.File == "" {
		return bad("output.file", "must be set")
	}
	return nil
}

// KalmanFaults converts the configured faults, rejecting duplicates.
func (c *Config) KalmanFaults() ([]kalman.Fault, error) {
	fs := make([]kalman.Fault, 0, len(c.Faults))
	seen := make(map[kalman.Fault]bool)
	for i, f := range c.Faults {
		field := fmt.Sprintf("faults[%d]", i)
		kind, err := kalman.ParseKind(f.Kind)
		if err != nil {
			return nil, &ConfigurationError{Field: field + ".kind", Msg: err.Error()}
		}
		dir, err := kalman.ParseDirection(f.Direction)
		if err != nil {
			return nil, &ConfigurationError{Field: field + ".direction", Msg: err.Error()}
		}
		kf := kalman.Fault{Kind: kind, Amount: f.Amount, Direction: dir}
		if err := kf.Validate(); err != nil {
			return nil, &ConfigurationError{Field: field, Msg: err.Error()}
		}
		if seen[kf] {
			return nil, &ConfigurationError{Field: field, Msg: "duplicate fault " + kf.String()}
		}
		seen[kf] = true
		fs = append(fs, kf)
	}
	return fs, nil
}

// PondParams converts the pond section for the model.
func (c *Config) PondParams() pond.Params {
	o, _ := pond.ParseOrifice(c.Pond.Orifice)
	return pond.Params{
		CatchmentArea:         c.Pond.CatchmentArea,
		SurfaceReactionFactor: c.Pond.SurfaceReactionFactor,
		DischargeCoefficient:  c.Pond.DischargeCoefficient,
		PondArea:              c.Pond.Area,
		WaterLevel:            c.Pond.WaterLevel,
		WaterLevelMin:         c.Pond.WaterLevelMin,
		WaterLevelMax:         c.Pond.WaterLevelMax,
		OrificeDiameter:       o.Diameter(),
	}
}
