package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Valve device families accepted in valves.entities[].type.
const (
	ValveTypeAuto             = "auto"
	ValveTypeEurotronic       = "eurotronic"
	ValveTypeHomematic        = "homematic"
	ValveTypeHomematicIPLocal = "homematicip_local"
	ValveTypeBosch            = "bosch"
	ValveTypeShelly           = "shelly"
	ValveTypeKNX              = "knx"
)

// Calibration modes accepted in valves.calibration_mode.
const (
	CalibrationPerTarget = "per_target"
	CalibrationGlobal    = "global"
)

// clockLayout is the layout used for blackout start/end times.
const clockLayout = "15:04:05"

// Config is the root configuration structure for Gray Logic Valves.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Sources  SourcesConfig  `yaml:"sources"`
	Commands CommandsConfig `yaml:"commands"`
	Valves   ValvesConfig   `yaml:"valves"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SourcesConfig controls which MQTT feeds populate the entity store.
type SourcesConfig struct {
	// Bridges enables ingestion of graylogic/state/{protocol}/{entity}.
	Bridges bool `yaml:"bridges"`

	Zigbee2MQTT Zigbee2MQTTConfig `yaml:"zigbee2mqtt"`
}

// Zigbee2MQTTConfig contains settings for the zigbee2mqtt feed.
type Zigbee2MQTTConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseTopic string `yaml:"base_topic"`
}

// CommandsConfig controls how device commands are delivered to bridges.
type CommandsConfig struct {
	// WaitForAck makes a command succeed only once the bridge acknowledges it.
	WaitForAck bool `yaml:"wait_for_ack"`

	// AckTimeout is how long to wait for an acknowledgement (seconds).
	AckTimeout int `yaml:"ack_timeout"`
}

// ValvesConfig contains controller and actuation queue settings.
type ValvesConfig struct {
	// TickInterval is how often each controller samples its devices (seconds).
	TickInterval int `yaml:"tick_interval"`

	// AdjustInterval is the nominal spacing between position adjustments (seconds).
	AdjustInterval int `yaml:"adjust_interval"`

	// AdjustJitter is the maximum random offset applied to AdjustInterval
	// per valve at construction (seconds).
	AdjustJitter int `yaml:"adjust_jitter"`

	// CalibrationMode is "per_target" or "global".
	CalibrationMode string `yaml:"calibration_mode"`

	// TemperatureAdjustEntity is an optional entity whose numeric state is
	// added to every target temperature.
	TemperatureAdjustEntity string `yaml:"temperature_adjust_entity"`

	// HeatingSwitchEntity is an optional on/off entity consulted by device
	// families that park the thermostat setpoint when heating is off.
	HeatingSwitchEntity string `yaml:"heating_switch_entity"`

	Queue    QueueConfig   `yaml:"queue"`
	Entities []ValveConfig `yaml:"entities"`
}

// QueueConfig contains actuation queue gating settings.
type QueueConfig struct {
	// Interval is the minimum spacing between dispatches (seconds).
	Interval int `yaml:"interval"`

	// DispatchTimeout bounds a single position write (seconds).
	DispatchTimeout int `yaml:"dispatch_timeout"`

	DutyCycle DutyCycleConfig `yaml:"duty_cycle"`
	Blackout  BlackoutConfig  `yaml:"blackout"`
}

// DutyCycleConfig names the entity attribute that reports radio duty cycle.
type DutyCycleConfig struct {
	Entity    string `yaml:"entity"`
	Attribute string `yaml:"attribute"`
	Max       int    `yaml:"max"`
}

// BlackoutConfig is a weekly window during which nothing is dispatched.
type BlackoutConfig struct {
	Enabled bool   `yaml:"enabled"`
	Weekday string `yaml:"weekday"`
	Start   string `yaml:"start"`
	End     string `yaml:"end"`
}

// ValveConfig describes one controlled radiator valve.
type ValveConfig struct {
	// ID is the logical name of the controller.
	ID string `yaml:"id"`

	// Actuator is the entity ID of the valve device.
	Actuator string `yaml:"actuator"`

	// Thermostat is the entity ID of the room thermostat.
	Thermostat string `yaml:"thermostat"`

	// Peer is an optional controller ID whose felt temperature delta is
	// used to couple the two valves.
	Peer string `yaml:"peer,omitempty"`

	// SetpointInput is an optional entity providing the target temperature.
	SetpointInput string `yaml:"setpoint_input,omitempty"`

	// WindowSensors accepts a single entity ID or a list.
	WindowSensors StringList `yaml:"window_sensor,omitempty"`

	// ValvePosition is the entity reporting valve opening for families that
	// expose it separately.
	ValvePosition string `yaml:"valve_position,omitempty"`

	Type              string  `yaml:"type"`
	MinPosition       float64 `yaml:"min_position"`
	MaxPosition       float64 `yaml:"max_position"`
	PositionFactor    float64 `yaml:"position_factor"`
	ThermostatInertia int     `yaml:"thermostat_inertia"`
	ValveInertia      int     `yaml:"valve_inertia"`
}

// StringList is a YAML value that may be written as a scalar or a sequence.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		if s == "" {
			*l = nil
			return nil
		}
		*l = StringList{s}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list", node.Line)
	}
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Per-valve defaults for fields the file left empty
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyValveDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Gray Logic",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/valves.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-valves",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Sources: SourcesConfig{
			Bridges: true,
			Zigbee2MQTT: Zigbee2MQTTConfig{
				Enabled:   true,
				BaseTopic: "zigbee2mqtt",
			},
		},
		Commands: CommandsConfig{
			WaitForAck: false,
			AckTimeout: 5,
		},
		Valves: ValvesConfig{
			TickInterval:    30,
			AdjustInterval:  900,
			AdjustJitter:    60,
			CalibrationMode: CalibrationPerTarget,
			Queue: QueueConfig{
				Interval:        10,
				DispatchTimeout: 30,
				DutyCycle: DutyCycleConfig{
					Attribute: "DutyCycle",
					Max:       75,
				},
				Blackout: BlackoutConfig{
					Enabled: true,
					Weekday: "saturday",
					Start:   "10:55:00",
					End:     "11:05:00",
				},
			},
		},
	}
}

// applyValveDefaults fills per-valve fields that YAML left at their zero value.
func applyValveDefaults(cfg *Config) {
	for i := range cfg.Valves.Entities {
		v := &cfg.Valves.Entities[i]
		if v.Type == "" {
			v.Type = ValveTypeAuto
		}
		if v.MaxPosition == 0 {
			v.MaxPosition = 80
		}
		if v.PositionFactor == 0 {
			v.PositionFactor = 0.07
		}
		if v.ThermostatInertia == 0 {
			v.ThermostatInertia = 60
		}
		if v.ValveInertia == 0 {
			v.ValveInertia = 60
		}
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_SITE_TIMEZONE"); v != "" {
		cfg.Site.Timezone = v
	}

	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("GRAYLOGIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected so an operator can fix a config file in one pass.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid IANA zone", c.Site.Timezone))
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Sources.Zigbee2MQTT.Enabled && c.Sources.Zigbee2MQTT.BaseTopic == "" {
		errs = append(errs, "sources.zigbee2mqtt.base_topic is required when enabled")
	}

	if c.Commands.WaitForAck && c.Commands.AckTimeout <= 0 {
		errs = append(errs, "commands.ack_timeout must be positive when wait_for_ack is set")
	}

	errs = append(errs, c.Valves.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (v *ValvesConfig) validate() []string {
	var errs []string

	if v.TickInterval <= 0 {
		errs = append(errs, "valves.tick_interval must be positive")
	}
	if v.AdjustInterval <= 0 {
		errs = append(errs, "valves.adjust_interval must be positive")
	}
	if v.AdjustJitter < 0 || v.AdjustJitter >= v.AdjustInterval {
		errs = append(errs, "valves.adjust_jitter must be between 0 and adjust_interval")
	}
	switch v.CalibrationMode {
	case CalibrationPerTarget, CalibrationGlobal:
	default:
		errs = append(errs, fmt.Sprintf("valves.calibration_mode %q must be %q or %q",
			v.CalibrationMode, CalibrationPerTarget, CalibrationGlobal))
	}

	q := v.Queue
	if q.Interval <= 0 {
		errs = append(errs, "valves.queue.interval must be positive")
	}
	if q.DispatchTimeout <= 0 {
		errs = append(errs, "valves.queue.dispatch_timeout must be positive")
	}
	if q.DutyCycle.Entity != "" && q.DutyCycle.Attribute == "" {
		errs = append(errs, "valves.queue.duty_cycle.attribute is required when entity is set")
	}
	if q.Blackout.Enabled {
		if _, err := ParseWeekday(q.Blackout.Weekday); err != nil {
			errs = append(errs, "valves.queue.blackout.weekday: "+err.Error())
		}
		start, errStart := ParseClock(q.Blackout.Start)
		if errStart != nil {
			errs = append(errs, "valves.queue.blackout.start: "+errStart.Error())
		}
		end, errEnd := ParseClock(q.Blackout.End)
		if errEnd != nil {
			errs = append(errs, "valves.queue.blackout.end: "+errEnd.Error())
		}
		if errStart == nil && errEnd == nil && end < start {
			errs = append(errs, "valves.queue.blackout.end must not be before start")
		}
	}

	ids := make(map[string]bool, len(v.Entities))
	for i, e := range v.Entities {
		prefix := fmt.Sprintf("valves.entities[%d]", i)
		if e.ID == "" {
			errs = append(errs, prefix+".id is required")
		} else if ids[e.ID] {
			errs = append(errs, fmt.Sprintf("%s.id %q is duplicated", prefix, e.ID))
		}
		ids[e.ID] = true

		if e.Actuator == "" {
			errs = append(errs, prefix+".actuator is required")
		}
		if e.Thermostat == "" {
			errs = append(errs, prefix+".thermostat is required")
		}
		if !validValveType(e.Type) {
			errs = append(errs, fmt.Sprintf("%s.type %q is not a known device family", prefix, e.Type))
		}
		if e.MinPosition < 0 || e.MaxPosition > 100 || e.MinPosition >= e.MaxPosition {
			errs = append(errs, prefix+" positions must satisfy 0 <= min_position < max_position <= 100")
		}
		if e.PositionFactor <= 0 {
			errs = append(errs, prefix+".position_factor must be positive")
		}
	}

	for i, e := range v.Entities {
		if e.Peer == "" {
			continue
		}
		if e.Peer == e.ID {
			errs = append(errs, fmt.Sprintf("valves.entities[%d].peer must not reference itself", i))
		} else if !ids[e.Peer] {
			errs = append(errs, fmt.Sprintf("valves.entities[%d].peer %q is not a configured valve", i, e.Peer))
		}
	}

	return errs
}

func validValveType(t string) bool {
	switch t {
	case ValveTypeAuto, ValveTypeEurotronic, ValveTypeHomematic, ValveTypeHomematicIPLocal,
		ValveTypeBosch, ValveTypeShelly, ValveTypeKNX:
		return true
	}
	return false
}

// ParseWeekday converts a lower- or mixed-case English weekday name.
func ParseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// ParseClock converts "hh:mm:ss" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q (want hh:mm:ss)", s)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

// Location returns the site's time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// Seconds converts a whole-second config field into a Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
