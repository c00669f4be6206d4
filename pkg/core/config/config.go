package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/msto63/hive/pkg/core/apperr"
	"github.com/msto63/hive/pkg/core/ptam"
	"gopkg.in/yaml.v3"
)

// Config holds the complete daemon configuration
type Config struct {
	General     GeneralConfig     `toml:"general" yaml:"general"`
	Store       StoreConfig       `toml:"store" yaml:"store"`
	Gateway     GatewayConfig     `toml:"gateway" yaml:"gateway"`
	GRPC        GRPCConfig        `toml:"grpc" yaml:"grpc"`
	EventLog    EventLogConfig    `toml:"eventlog" yaml:"eventlog"`
	GPS         GPSConfig         `toml:"gps" yaml:"gps"`
	SensorBoard SensorBoardConfig `toml:"sensorboard" yaml:"sensorboard"`
	Thermal     ThermalConfig     `toml:"thermal" yaml:"thermal"`
	Servo       ServoConfig       `toml:"servo" yaml:"servo"`
	Flight      FlightConfig      `toml:"flight" yaml:"flight"`
}

// GeneralConfig holds general daemon settings
type GeneralConfig struct {
	Name        string `toml:"name" yaml:"name"`
	Environment string `toml:"environment" yaml:"environment"`
	DataDir     string `toml:"data_dir" yaml:"data_dir"`
	LogLevel    string `toml:"log_level" yaml:"log_level"`
	LogFormat   string `toml:"log_format" yaml:"log_format"`
}

// StoreConfig holds register store capacities
type StoreConfig struct {
	DoubleCapacity int `toml:"double_capacity" yaml:"double_capacity"`
	Uint8Capacity  int `toml:"uint8_capacity" yaml:"uint8_capacity"`
	Uint32Capacity int `toml:"uint32_capacity" yaml:"uint32_capacity"`
	StringCapacity int `toml:"string_capacity" yaml:"string_capacity"`
}

// GatewayConfig holds HTTP control surface settings
type GatewayConfig struct {
	Port           int        `toml:"port" yaml:"port"`
	Host           string     `toml:"host" yaml:"host"`
	ReadTimeout    Duration   `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   Duration   `toml:"write_timeout" yaml:"write_timeout"`
	MaxBody        int64      `toml:"max_body" yaml:"max_body"`
	StreamInterval Duration   `toml:"stream_interval" yaml:"stream_interval"`
	CORS           CORSConfig `toml:"cors" yaml:"cors"`
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	Enabled        bool     `toml:"enabled" yaml:"enabled"`
	AllowedOrigins []string `toml:"allowed_origins" yaml:"allowed_origins"`
}

// GRPCConfig holds gRPC health server settings
type GRPCConfig struct {
	Enabled          bool   `toml:"enabled" yaml:"enabled"`
	Port             int    `toml:"port" yaml:"port"`
	Host             string `toml:"host" yaml:"host"`
	EnableReflection bool   `toml:"enable_reflection" yaml:"enable_reflection"`
}

// EventLogConfig holds event log settings
type EventLogConfig struct {
	Path          string   `toml:"path" yaml:"path"`
	RetentionDays int      `toml:"retention_days" yaml:"retention_days"`
	DumpInterval  Duration `toml:"dump_interval" yaml:"dump_interval"`
	StateInterval Duration `toml:"state_interval" yaml:"state_interval"`
}

// GPSConfig holds the serial GPS receiver settings
type GPSConfig struct {
	Enabled  bool     `toml:"enabled" yaml:"enabled"`
	Device   string   `toml:"device" yaml:"device"`
	BaudRate int      `toml:"baud_rate" yaml:"baud_rate"`
	Timeout  Duration `toml:"timeout" yaml:"timeout"`
}

// SensorBoardConfig holds the Modbus sensor board settings
type SensorBoardConfig struct {
	Enabled      bool     `toml:"enabled" yaml:"enabled"`
	Address      string   `toml:"address" yaml:"address"`
	SlaveID      byte     `toml:"slave_id" yaml:"slave_id"`
	PollInterval Duration `toml:"poll_interval" yaml:"poll_interval"`
	Timeout      Duration `toml:"timeout" yaml:"timeout"`
	MaxRetries   int      `toml:"max_retries" yaml:"max_retries"`
}

// ThermalConfig holds the cooling fan thresholds in degrees Celsius
type ThermalConfig struct {
	OnAbove  float64  `toml:"on_above" yaml:"on_above"`
	OffBelow float64  `toml:"off_below" yaml:"off_below"`
	Interval Duration `toml:"interval" yaml:"interval"`
}

// ServoConfig holds servo pulse calibration
type ServoConfig struct {
	MsMin    float64  `toml:"ms_min" yaml:"ms_min"`
	MsMax    float64  `toml:"ms_max" yaml:"ms_max"`
	Interval Duration `toml:"interval" yaml:"interval"`
	Pins     []int    `toml:"pins" yaml:"pins"`
}

// FlightConfig holds arming rules
type FlightConfig struct {
	TokenLength      int  `toml:"token_length" yaml:"token_length"`
	RequireSetpoints bool `toml:"require_setpoints" yaml:"require_setpoints"`
}

// Duration wraps time.Duration for TOML and YAML parsing
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration as a string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a configuration with all defaults applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from a TOML or YAML file. The format is chosen
// by extension; anything other than .yaml/.yml is read as TOML.
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.Newf("config file not found: %s", path).WithCode(apperr.CodeConfigError)
		}
		return nil, apperr.Wrap(err, "failed to read config").WithCode(apperr.CodeConfigError)
	}

	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes configuration data in the given format ("toml" or "yaml")
func Parse(data []byte, format string) (*Config, error) {
	var cfg Config

	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, apperr.Wrap(err, "failed to parse config").WithCode(apperr.CodeConfigError)
		}
	default:
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, apperr.Wrap(err, "failed to parse config").WithCode(apperr.CodeConfigError)
		}
	}

	cfg.applyDefaults()
	cfg.expandEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "toml"
	}
}

// LoadFromEnv loads configuration from the HIVE_CONFIG environment variable
func LoadFromEnv() (*Config, string, error) {
	path := os.Getenv("HIVE_CONFIG")
	if path == "" {
		path = FindDefault()
	}

	if path == "" {
		return nil, "", apperr.New("no config file found, set HIVE_CONFIG or create configs/hive.toml").
			WithCode(apperr.CodeConfigError)
	}

	cfg, err := Load(path)
	return cfg, path, err
}

// FindDefault returns the first existing default config path, or ""
func FindDefault() string {
	defaultPaths := []string{
		"./configs/hive.toml",
		"./hive.toml",
		"./configs/hive.yaml",
		filepath.Join(os.Getenv("HOME"), ".config/hive/hive.toml"),
	}
	for _, p := range defaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// General
	if c.General.Name == "" {
		c.General.Name = "hive"
	}
	if c.General.Environment == "" {
		c.General.Environment = "development"
	}
	if c.General.DataDir == "" {
		c.General.DataDir = "./data"
	}
	if c.General.LogLevel == "" {
		c.General.LogLevel = "info"
	}
	if c.General.LogFormat == "" {
		c.General.LogFormat = "json"
	}

	// Store
	def := ptam.DefaultConfig()
	if c.Store.DoubleCapacity == 0 {
		c.Store.DoubleCapacity = def.DoubleCapacity
	}
	if c.Store.Uint8Capacity == 0 {
		c.Store.Uint8Capacity = def.Uint8Capacity
	}
	if c.Store.Uint32Capacity == 0 {
		c.Store.Uint32Capacity = def.Uint32Capacity
	}
	if c.Store.StringCapacity == 0 {
		c.Store.StringCapacity = def.StringCapacity
	}

	// Gateway
	if c.Gateway.Port == 0 {
		c.Gateway.Port = 8080
	}
	if c.Gateway.Host == "" {
		c.Gateway.Host = "0.0.0.0"
	}
	if c.Gateway.ReadTimeout.Duration == 0 {
		c.Gateway.ReadTimeout.Duration = 10 * time.Second
	}
	if c.Gateway.WriteTimeout.Duration == 0 {
		c.Gateway.WriteTimeout.Duration = 10 * time.Second
	}
	if c.Gateway.MaxBody == 0 {
		c.Gateway.MaxBody = 100
	}
	if c.Gateway.StreamInterval.Duration == 0 {
		c.Gateway.StreamInterval.Duration = time.Second
	}

	// gRPC
	if c.GRPC.Port == 0 {
		c.GRPC.Port = 9090
	}
	if c.GRPC.Host == "" {
		c.GRPC.Host = "0.0.0.0"
	}

	// Event log
	if c.EventLog.Path == "" {
		c.EventLog.Path = filepath.Join(c.General.DataDir, "events.db")
	}
	if c.EventLog.RetentionDays == 0 {
		c.EventLog.RetentionDays = 14
	}
	if c.EventLog.DumpInterval.Duration == 0 {
		c.EventLog.DumpInterval.Duration = 5 * time.Second
	}
	if c.EventLog.StateInterval.Duration == 0 {
		c.EventLog.StateInterval.Duration = 30 * time.Second
	}

	// GPS
	if c.GPS.Device == "" {
		c.GPS.Device = "/dev/ttyUSB0"
	}
	if c.GPS.BaudRate == 0 {
		c.GPS.BaudRate = 9600
	}
	if c.GPS.Timeout.Duration == 0 {
		c.GPS.Timeout.Duration = 2 * time.Second
	}

	// Sensor board
	if c.SensorBoard.Address == "" {
		c.SensorBoard.Address = "127.0.0.1:502"
	}
	if c.SensorBoard.SlaveID == 0 {
		c.SensorBoard.SlaveID = 1
	}
	if c.SensorBoard.PollInterval.Duration == 0 {
		c.SensorBoard.PollInterval.Duration = 500 * time.Millisecond
	}
	if c.SensorBoard.Timeout.Duration == 0 {
		c.SensorBoard.Timeout.Duration = 2 * time.Second
	}
	if c.SensorBoard.MaxRetries == 0 {
		c.SensorBoard.MaxRetries = 3
	}

	// Thermal
	if c.Thermal.OnAbove == 0 {
		c.Thermal.OnAbove = 45.0
	}
	if c.Thermal.OffBelow == 0 {
		c.Thermal.OffBelow = 35.0
	}
	if c.Thermal.Interval.Duration == 0 {
		c.Thermal.Interval.Duration = 2 * time.Second
	}

	// Servo
	if c.Servo.MsMin == 0 {
		c.Servo.MsMin = 0.06
	}
	if c.Servo.MsMax == 0 {
		c.Servo.MsMax = 2.1
	}
	if c.Servo.Interval.Duration == 0 {
		c.Servo.Interval.Duration = 100 * time.Millisecond
	}
	if len(c.Servo.Pins) == 0 {
		c.Servo.Pins = []int{0, 1, 2, 3}
	}

	// Flight
	if c.Flight.TokenLength == 0 {
		c.Flight.TokenLength = 6
	}
}

// expandEnvVars expands environment variables in path values
func (c *Config) expandEnvVars() {
	c.General.DataDir = os.ExpandEnv(c.General.DataDir)
	c.EventLog.Path = os.ExpandEnv(c.EventLog.Path)
	c.GPS.Device = os.ExpandEnv(c.GPS.Device)
}

// Validate checks value ranges that defaults cannot repair
func (c *Config) Validate() error {
	var problems []string

	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		problems = append(problems, fmt.Sprintf("gateway.port %d out of range", c.Gateway.Port))
	}
	if c.GRPC.Port < 1 || c.GRPC.Port > 65535 {
		problems = append(problems, fmt.Sprintf("grpc.port %d out of range", c.GRPC.Port))
	}
	if c.Thermal.OffBelow >= c.Thermal.OnAbove {
		problems = append(problems, fmt.Sprintf("thermal.off_below (%.1f) must be below thermal.on_above (%.1f)",
			c.Thermal.OffBelow, c.Thermal.OnAbove))
	}
	if c.Servo.MsMin >= c.Servo.MsMax {
		problems = append(problems, "servo.ms_min must be below servo.ms_max")
	}
	for _, pin := range c.Servo.Pins {
		if pin < 0 || pin > 3 {
			problems = append(problems, fmt.Sprintf("servo pin %d out of range 0-3", pin))
		}
	}
	if c.Flight.TokenLength < 4 || c.Flight.TokenLength > 32 {
		problems = append(problems, fmt.Sprintf("flight.token_length %d out of range 4-32", c.Flight.TokenLength))
	}
	if c.Store.DoubleCapacity < 0 || c.Store.Uint8Capacity < 0 || c.Store.Uint32Capacity < 0 || c.Store.StringCapacity < 0 {
		problems = append(problems, "store capacities must not be negative")
	}

	if len(problems) > 0 {
		return apperr.New("invalid config: " + strings.Join(problems, "; ")).WithCode(apperr.CodeConfigError)
	}
	return nil
}

// RegisterStore converts the store section for ptam.New
func (c *Config) RegisterStore() ptam.Config {
	return ptam.Config{
		DoubleCapacity: c.Store.DoubleCapacity,
		Uint8Capacity:  c.Store.Uint8Capacity,
		Uint32Capacity: c.Store.Uint32Capacity,
		StringCapacity: c.Store.StringCapacity,
	}
}

// Address returns the listen address string for a service
func (c *Config) Address(service string) string {
	switch service {
	case "gateway":
		return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
	case "grpc":
		return fmt.Sprintf("%s:%d", c.GRPC.Host, c.GRPC.Port)
	default:
		return ""
	}
}
