package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Helioscope Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Indigo   IndigoConfig   `yaml:"indigo"`
	Actuator ActuatorConfig `yaml:"actuator"`
	Mount    MountConfig    `yaml:"mount"`
	Guider   GuiderConfig   `yaml:"guider"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig contains observatory site information.
// Latitude/longitude/elevation are written to the mount agent at startup
// and used by the solar tracker's position source.
type SiteConfig struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	Timezone  string  `yaml:"timezone"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Elevation float64 `yaml:"elevation"`
}

// IndigoConfig contains connection settings for the INDIGO device server.
type IndigoConfig struct {
	// Host is the device server address.
	Host string `yaml:"host"`

	// Port is the device server port. Default: 7624.
	Port int `yaml:"port"`

	// MountDevice is the device name of the mount agent on the server.
	MountDevice string `yaml:"mount_device"`

	// FocuserDevice is the device name of the focuser.
	FocuserDevice string `yaml:"focuser_device"`

	// MaxRetries bounds connection attempts. Default: 10.
	MaxRetries int `yaml:"max_retries"`

	// RetryInterval is the delay between connection attempts (seconds).
	// Default: 5.
	RetryInterval int `yaml:"retry_interval"`

	// ConnectTimeout is the dial timeout (seconds). Default: 10.
	ConnectTimeout int `yaml:"connect_timeout"`
}

// ActuatorConfig contains connection settings for the dome/etalon
// microcontroller board.
type ActuatorConfig struct {
	Host string `yaml:"host"`

	// Port is the board's TCP port. Default: 5555.
	Port int `yaml:"port"`

	// ConnectTimeout is the dial timeout (seconds). Default: 3.
	ConnectTimeout int `yaml:"connect_timeout"`

	// IdleTimeout closes the socket after this many seconds without
	// traffic. Default: 20.
	IdleTimeout int `yaml:"idle_timeout"`

	// WatchInterval is how often the idle watcher wakes (seconds).
	// Default: 5.
	WatchInterval int `yaml:"watch_interval"`

	// PollInterval is the status poll period (seconds). Default: 5.
	PollInterval int `yaml:"poll_interval"`

	// RetryDelay is the poll loop's backoff once the failure cap is hit
	// (seconds). Default: 10.
	RetryDelay int `yaml:"retry_delay"`

	// MaxFailures caps consecutive connection failures before the client
	// stops auto-retrying. Default: 3.
	MaxFailures int `yaml:"max_failures"`

	// LogInterval rate-limits connection failure logging (seconds).
	// Default: 15.
	LogInterval int `yaml:"log_interval"`
}

// MountConfig contains mount controller settings.
type MountConfig struct {
	// PollInterval is the property re-request period (seconds). Default: 1.
	PollInterval int `yaml:"poll_interval"`
}

// GuiderConfig contains the autoguider tunables.
type GuiderConfig struct {
	// URL is the preview frame source (HTTP, JPEG or PNG).
	URL string `yaml:"url"`

	// FetchTimeout is the frame fetch timeout (milliseconds). Default: 1000.
	FetchTimeout int `yaml:"fetch_timeout"`

	// TargetFPS is the loop pacing target. Default: 5.
	TargetFPS float64 `yaml:"target_fps"`

	// DownscaleWidth is the fixed processing width (pixels). Default: 480.
	DownscaleWidth int `yaml:"downscale_width"`

	// BlurSize is the smoothing kernel size; <=1 disables blurring.
	// Default: 3.
	BlurSize int `yaml:"blur_size"`

	// MinArea ignores segmented regions smaller than this (pixels).
	// Default: 80.
	MinArea int `yaml:"min_area"`

	// LockRadius is the lock tolerance radius (pixels). Default: 8.
	LockRadius float64 `yaml:"lock_radius"`

	// LockHoldFrames is the streak length required to declare lock.
	// Default: 10.
	LockHoldFrames int `yaml:"lock_hold_frames"`

	// Deadband suppresses corrections inside this radius (pixels).
	// Default: 5.
	Deadband float64 `yaml:"deadband"`

	// GainMsPerPx maps centroid error to pulse duration. Default: 4.
	GainMsPerPx float64 `yaml:"gain_ms_per_px"`

	// MinPulseMs / MaxPulseMs clamp corrective pulse durations.
	// Defaults: 40 / 600.
	MinPulseMs int `yaml:"min_pulse_ms"`
	MaxPulseMs int `yaml:"max_pulse_ms"`

	// AxisIntervalMs is the per-axis refractory interval between pulses
	// (milliseconds). Default: 120.
	AxisIntervalMs int `yaml:"axis_interval_ms"`

	// JPEGQuality is the overlay encode quality (1-100). Default: 70.
	JPEGQuality int `yaml:"jpeg_quality"`

	// FlipRA / FlipDec invert the correction direction per axis. The
	// default mapping (dx>0 east, dy>0 south) assumes an unflipped
	// optical train; set these to match the mount's actual orientation.
	FlipRA  bool `yaml:"flip_ra"`
	FlipDec bool `yaml:"flip_dec"`
}

// TrackerConfig contains solar tracking relay settings.
type TrackerConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval is the relay period (seconds). Default: 5.
	Interval int `yaml:"interval"`
}

// MQTTConfig contains MQTT broker connection settings for the status sink.
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

// InfluxDBConfig contains telemetry recording settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DatabaseConfig contains SQLite state history settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HELIOSCOPE_SECTION_KEY
// For example: HELIOSCOPE_INDIGO_HOST, HELIOSCOPE_MQTT_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "obs-001",
			Name:     "Helioscope",
			Timezone: "UTC",
		},
		Indigo: IndigoConfig{
			Host:           "localhost",
			Port:           7624,
			MountDevice:    "Mount Agent",
			FocuserDevice:  "nSTEP",
			MaxRetries:     10,
			RetryInterval:  5,
			ConnectTimeout: 10,
		},
		Actuator: ActuatorConfig{
			Host:           "localhost",
			Port:           5555,
			ConnectTimeout: 3,
			IdleTimeout:    20,
			WatchInterval:  5,
			PollInterval:   5,
			RetryDelay:     10,
			MaxFailures:    3,
			LogInterval:    15,
		},
		Mount: MountConfig{
			PollInterval: 1,
		},
		Guider: GuiderConfig{
			FetchTimeout:   1000,
			TargetFPS:      5.0,
			DownscaleWidth: 480,
			BlurSize:       3,
			MinArea:        80,
			LockRadius:     8,
			LockHoldFrames: 10,
			Deadband:       5,
			GainMsPerPx:    4.0,
			MinPulseMs:     40,
			MaxPulseMs:     600,
			AxisIntervalMs: 120,
			JPEGQuality:    70,
		},
		Tracker: TrackerConfig{
			Interval: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "helioscope-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/helioscope.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HELIOSCOPE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device server
	if v := os.Getenv("HELIOSCOPE_INDIGO_HOST"); v != "" {
		cfg.Indigo.Host = v
	}
	if v := os.Getenv("HELIOSCOPE_ACTUATOR_HOST"); v != "" {
		cfg.Actuator.Host = v
	}
	if v := os.Getenv("HELIOSCOPE_GUIDER_URL"); v != "" {
		cfg.Guider.URL = v
	}

	// MQTT
	if v := os.Getenv("HELIOSCOPE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HELIOSCOPE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HELIOSCOPE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("HELIOSCOPE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("HELIOSCOPE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Site.Latitude < -90 || c.Site.Latitude > 90 {
		errs = append(errs, "site.latitude must be between -90 and 90")
	}
	if c.Site.Longitude < -180 || c.Site.Longitude > 180 {
		errs = append(errs, "site.longitude must be between -180 and 180")
	}

	// Device server validation
	if c.Indigo.Port < 1 || c.Indigo.Port > 65535 {
		errs = append(errs, "indigo.port must be between 1 and 65535")
	}
	if c.Indigo.MountDevice == "" {
		errs = append(errs, "indigo.mount_device is required")
	}
	if c.Indigo.MaxRetries < 1 {
		errs = append(errs, "indigo.max_retries must be at least 1")
	}

	// Actuator validation
	if c.Actuator.Port < 1 || c.Actuator.Port > 65535 {
		errs = append(errs, "actuator.port must be between 1 and 65535")
	}

	// Guider validation
	if c.Guider.TargetFPS <= 0 {
		errs = append(errs, "guider.target_fps must be positive")
	}
	if c.Guider.MinPulseMs > c.Guider.MaxPulseMs {
		errs = append(errs, "guider.min_pulse_ms must not exceed guider.max_pulse_ms")
	}
	if c.Guider.JPEGQuality < 1 || c.Guider.JPEGQuality > 100 {
		errs = append(errs, "guider.jpeg_quality must be between 1 and 100")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// seconds converts a config integer to a Duration, substituting a default
// when the value is unset.
func seconds(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}

// GetRetryInterval returns the INDIGO connect retry delay as a Duration.
func (c *IndigoConfig) GetRetryInterval() time.Duration {
	return seconds(c.RetryInterval, 5)
}

// GetConnectTimeout returns the INDIGO dial timeout as a Duration.
func (c *IndigoConfig) GetConnectTimeout() time.Duration {
	return seconds(c.ConnectTimeout, 10)
}

// Address returns the device server address in host:port form.
func (c *IndigoConfig) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// GetConnectTimeout returns the actuator dial timeout as a Duration.
func (c *ActuatorConfig) GetConnectTimeout() time.Duration {
	return seconds(c.ConnectTimeout, 3)
}

// GetIdleTimeout returns the actuator idle-close window as a Duration.
func (c *ActuatorConfig) GetIdleTimeout() time.Duration {
	return seconds(c.IdleTimeout, 20)
}

// GetWatchInterval returns the idle watcher wake period as a Duration.
func (c *ActuatorConfig) GetWatchInterval() time.Duration {
	return seconds(c.WatchInterval, 5)
}

// GetPollInterval returns the actuator status poll period as a Duration.
func (c *ActuatorConfig) GetPollInterval() time.Duration {
	return seconds(c.PollInterval, 5)
}

// GetRetryDelay returns the poll loop backoff as a Duration.
func (c *ActuatorConfig) GetRetryDelay() time.Duration {
	return seconds(c.RetryDelay, 10)
}

// GetLogInterval returns the failure log rate limit as a Duration.
func (c *ActuatorConfig) GetLogInterval() time.Duration {
	return seconds(c.LogInterval, 15)
}

// Address returns the actuator board address in host:port form.
func (c *ActuatorConfig) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// GetPollInterval returns the mount property poll period as a Duration.
func (c *MountConfig) GetPollInterval() time.Duration {
	return seconds(c.PollInterval, 1)
}

// GetFetchTimeout returns the frame fetch timeout as a Duration.
func (c *GuiderConfig) GetFetchTimeout() time.Duration {
	v := c.FetchTimeout
	if v <= 0 {
		v = 1000
	}
	return time.Duration(v) * time.Millisecond
}

// GetAxisInterval returns the per-axis refractory interval as a Duration.
func (c *GuiderConfig) GetAxisInterval() time.Duration {
	v := c.AxisIntervalMs
	if v <= 0 {
		v = 120
	}
	return time.Duration(v) * time.Millisecond
}

// GetInterval returns the tracker relay period as a Duration.
func (c *TrackerConfig) GetInterval() time.Duration {
	return seconds(c.Interval, 5)
}
