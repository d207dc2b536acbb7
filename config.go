package scrc

import (
	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"io"
	"os"
	"strings"
	"time"
)

const envPrefix = "SCRC_"

type Stage int

const (
	StageWarmUp Stage = iota
	StageQualifying
	StageRace
	StageUnknown
)

func (s Stage) String() string {
	switch s {
	case StageWarmUp:
		return "warm-up"
	case StageQualifying:
		return "qualifying"
	case StageRace:
		return "race"
	}
	return "unknown"
}

// ParseStage maps the numeric stage used on the command line; anything out
// of range is StageUnknown.
func ParseStage(v int) Stage {
	if v < int(StageWarmUp) || v > int(StageUnknown) {
		return StageUnknown
	}
	return Stage(v)
}

type DriverConfig struct {
	SteerLock    float64 `toml:"steer_lock" env:"STEER_LOCK"`
	MaxSpeed     float64 `toml:"max_speed" env:"MAX_SPEED"`
	MinGear      int     `toml:"min_gear" env:"MIN_GEAR"`
	MaxGear      int     `toml:"max_gear" env:"MAX_GEAR"`
	UpshiftRPM   float64 `toml:"upshift_rpm" env:"UPSHIFT_RPM"`
	DownshiftRPM float64 `toml:"downshift_rpm" env:"DOWNSHIFT_RPM"`
}

type PredictorConfig struct {
	// Model is a TOML model file; empty disables the predictor.
	Model string  `toml:"model" env:"MODEL"`
	Blend float64 `toml:"blend" env:"BLEND"`
}

type ForwarderConfig struct {
	Server string `toml:"server" env:"SERVER"`
	Port   int    `toml:"port" env:"PORT"`
}

type RecorderConfig struct {
	Path string `toml:"path" env:"PATH"`
}

type Config struct {
	Host        string        `toml:"host" env:"HOST"`
	Port        int           `toml:"port" env:"PORT"`
	ID          string        `toml:"id" env:"ID"`
	MaxEpisodes int           `toml:"max_episodes" env:"MAX_EPISODES"`
	MaxSteps    int           `toml:"max_steps" env:"MAX_STEPS"`
	Track       string        `toml:"track" env:"TRACK"`
	Stage       Stage         `toml:"stage" env:"STAGE"`
	RecvTimeout time.Duration `toml:"recv_timeout" env:"RECV_TIMEOUT"`
	MaxDatagram int           `toml:"max_datagram" env:"MAX_DATAGRAM"`
	LogLevel    string        `toml:"log_level" env:"LOG_LEVEL"`
	LogJSON     bool          `toml:"log_json" env:"LOG_JSON"`

	Driver    DriverConfig    `toml:"driver" envPrefix:"DRIVER_"`
	Predictor PredictorConfig `toml:"predictor" envPrefix:"PREDICTOR_"`
	Forwarder ForwarderConfig `toml:"forwarder" envPrefix:"FORWARDER_"`
	Recorder  RecorderConfig  `toml:"recorder" envPrefix:"RECORDER_"`
}

func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		SteerLock:    0.785398,
		MaxSpeed:     130,
		MinGear:      1,
		MaxGear:      6,
		UpshiftRPM:   6000,
		DownshiftRPM: 2000,
	}
}

func DefaultConfig() Config {
	return Config{
		Host:        "localhost",
		Port:        3001,
		ID:          "SCR",
		MaxEpisodes: 1,
		Stage:       StageUnknown,
		RecvTimeout: time.Second,
		MaxDatagram: 1700,
		LogLevel:    "info",
		Driver:      DefaultDriverConfig(),
	}
}

// LoadConfig reads a TOML file over the defaults.
func LoadConfig(fileName string) (Config, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return Config{}, errors.Wrapf(err, "unable to open file %s", fileName)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

func LoadConfigFromReader(r io.Reader) (Config, error) {
	config := DefaultConfig()
	if _, err := toml.NewDecoder(r).Decode(&config); err != nil {
		return Config{}, errors.Wrap(err, "unable to load client configuration")
	}
	return config, nil
}

// ApplyEnv overrides fields from SCRC_* environment variables.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(nil)
}

func (c *Config) applyEnv(environment map[string]string) error {
	opts := env.Options{Prefix: envPrefix}
	if environment != nil {
		opts.Environment = environment
	}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return errors.Wrap(err, "unable to parse environment")
	}
	return nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("host is required")
	}
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("bot id is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("port %d out of range", c.Port)
	}
	if c.RecvTimeout <= 0 {
		return errors.New("recv_timeout must be positive")
	}
	if c.MaxDatagram <= 0 {
		return errors.New("max_datagram must be positive")
	}
	if c.Driver.SteerLock <= 0 {
		return errors.New("driver.steer_lock must be positive")
	}
	if c.Driver.MinGear > c.Driver.MaxGear {
		return errors.Errorf("driver.min_gear %d above max_gear %d",
			c.Driver.MinGear, c.Driver.MaxGear)
	}
	if c.Predictor.Blend < 0 || c.Predictor.Blend > 1 {
		return errors.Errorf("predictor.blend %v outside [0,1]", c.Predictor.Blend)
	}
	if c.Forwarder.Server != "" && (c.Forwarder.Port <= 0 || c.Forwarder.Port > 65535) {
		return errors.Errorf("forwarder.port %d out of range", c.Forwarder.Port)
	}
	return nil
}
