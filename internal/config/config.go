package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/thatsimonsguy/avr-controller/internal/model"
)

// ErrInvalid wraps every validation failure returned by Parse.
var ErrInvalid = errors.New("config: invalid")

type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

type Datadog struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	AgentAddr string   `json:"agentAddr" yaml:"agentAddr"`
	Namespace string   `json:"namespace" yaml:"namespace"`
	Tags      []string `json:"tags" yaml:"tags"`
}

type MQTT struct {
	Broker      string `json:"broker" yaml:"broker"` // empty disables publishing
	ClientID    string `json:"clientId" yaml:"clientId"`
	TopicPrefix string `json:"topicPrefix" yaml:"topicPrefix"`
	QoS         int    `json:"qos" yaml:"qos"`
}

type Config struct {
	ConfigFile string        `json:"-" yaml:"-"`
	LogLevel   zerolog.Level `json:"-" yaml:"-"`
	LogFile    string        `json:"-" yaml:"-"`

	IP                   string                 `json:"ip" yaml:"ip"`
	Name                 string                 `json:"name" yaml:"name"`
	SwitchesForAllInputs Flag                   `json:"switchesForAllInputs" yaml:"switchesForAllInputs"`
	AddPowerSwitch       Flag                   `json:"addPowerSwitch" yaml:"addPowerSwitch"`
	MaxVolume            Int                    `json:"maxVolume" yaml:"maxVolume"`
	PollingIntervalMs    Int                    `json:"pollingIntervalMs" yaml:"pollingIntervalMs"`
	Inputs               map[model.Input]string `json:"inputs" yaml:"inputs"`

	HomeKitPin  string `json:"homekitPin" yaml:"homekitPin"`
	StoragePath string `json:"storagePath" yaml:"storagePath"`
	APIPort     int    `json:"apiPort" yaml:"apiPort"`

	Datadog Datadog `json:"datadog" yaml:"datadog"`
	MQTT    MQTT    `json:"mqtt" yaml:"mqtt"`
}

func defaults() Config {
	return Config{
		SwitchesForAllInputs: false,
		AddPowerSwitch:       true,
		MaxVolume:            70,
		PollingIntervalMs:    15000,
		HomeKitPin:           "00102003",
		StoragePath:          "data/homekit",
		Datadog: Datadog{
			AgentAddr: "127.0.0.1:8125",
			Namespace: "avr.",
		},
		MQTT: MQTT{
			ClientID:    "avr-controller",
			TopicPrefix: "avr",
			QoS:         1,
		},
	}
}

func Load() Config {
	var configFile, logLevel, logFile string

	flag.StringVar(&configFile, "config-file", "config.json", "Path to bridge config file (.json, .yaml or .yml)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&logFile, "log-file", "", "Append logs to this file instead of stderr")
	flag.Parse()

	data, err := os.ReadFile(configFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}

	cfg, err := Parse(data, FormatForPath(configFile))
	if err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.ConfigFile = configFile
	cfg.LogLevel = ParseLogLevel(logLevel)
	cfg.LogFile = logFile
	return cfg
}

// FormatForPath picks YAML for .yaml/.yml files and JSON for everything else.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Parse decodes and validates a config document, filling in defaults for
// omitted options.
func Parse(data []byte, format Format) (Config, error) {
	cfg := defaults()

	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func ParseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() error {
	var problems []string

	if cfg.IP == "" {
		problems = append(problems, "'ip' is missing")
	}
	if cfg.Name == "" {
		problems = append(problems, "'name' is missing")
	}
	if cfg.MaxVolume < 0 || cfg.MaxVolume > 100 {
		problems = append(problems, fmt.Sprintf("'maxVolume' %d is outside [0, 100]", cfg.MaxVolume))
	}
	if cfg.PollingIntervalMs < 250 || cfg.PollingIntervalMs > 600000 {
		problems = append(problems, fmt.Sprintf("'pollingIntervalMs' %d is outside [250, 600000]", cfg.PollingIntervalMs))
	}
	if cfg.APIPort < 0 || cfg.APIPort > 65535 {
		problems = append(problems, fmt.Sprintf("'apiPort' %d is not a valid port", cfg.APIPort))
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		problems = append(problems, fmt.Sprintf("'mqtt.qos' %d must be 0, 1 or 2", cfg.MQTT.QoS))
	}
	if len(cfg.HomeKitPin) != 8 || strings.Trim(cfg.HomeKitPin, "0123456789") != "" {
		problems = append(problems, "'homekitPin' must be 8 digits")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// UnknownInputs lists configured input ids the receiver does not know. They are
// reported and skipped rather than rejected.
func (cfg *Config) UnknownInputs() []model.Input {
	var unknown []model.Input
	for in := range cfg.Inputs {
		if !in.Valid() {
			unknown = append(unknown, in)
		}
	}
	return unknown
}

// Flag is a boolean option that also accepts the strings "true", "1", "false" and "0".
type Flag bool

func parseFlag(s string) (Flag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1":
		return true, nil
	case "false", "0", "":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean", s)
}

func (f *Flag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = Flag(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%s is not a boolean", data)
	}
	v, err := parseFlag(s)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func (f *Flag) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseFlag(node.Value)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Int is an integer option that also accepts numeric strings.
type Int int

func (i *Int) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*i = Int(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%s is not an integer", data)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%q is not an integer", s)
	}
	*i = Int(n)
	return nil
}

func (i *Int) UnmarshalYAML(node *yaml.Node) error {
	n, err := strconv.Atoi(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("%q is not an integer", node.Value)
	}
	*i = Int(n)
	return nil
}
