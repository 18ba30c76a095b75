package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. WIFIPOS_SERVER_BASE_URL.
const EnvPrefix = "WIFIPOS"

// DefaultConfigFile returns the path used when --config is not given.
func DefaultConfigFile() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "wifiposition.yaml"
	}
	return filepath.Join(homeDir, ".config", "wifiposition.yaml")
}

type RootConfig struct {
	ActiveConfig string             `mapstructure:"active_config" yaml:"active_config"`
	Server       ServerConfig       `mapstructure:"server" yaml:"server"`
	Scan         ScanConfig         `mapstructure:"scan" yaml:"scan"`
	Prediction   PredictionConfig   `mapstructure:"prediction" yaml:"prediction"`
	MQTT         MQTTConfig         `mapstructure:"mqtt" yaml:"mqtt"`
	Metrics      MetricsConfig      `mapstructure:"metrics" yaml:"metrics"`
	Profiles     map[string]*Config `mapstructure:"profiles" yaml:"profiles,omitempty"`
}

type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Scan       ScanConfig       `mapstructure:"scan" yaml:"scan"`
	Prediction PredictionConfig `mapstructure:"prediction" yaml:"prediction"`
	MQTT       MQTTConfig       `mapstructure:"mqtt" yaml:"mqtt"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`

	// Profile is the name of the profile the config was resolved from, "default" for the base values.
	Profile string `mapstructure:"-" yaml:"-"`

	// Internal field to track inheritance information for config info
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

// InheritanceInfo records, per dotted key, whether a value came from the base
// section ("inherited") or from the selected profile ("profile-specific").
type InheritanceInfo struct {
	Keys map[string]string
}

// Source returns the origin of key, "inherited" when unknown.
func (i *InheritanceInfo) Source(key string) string {
	if i == nil {
		return "inherited"
	}
	if s, ok := i.Keys[key]; ok {
		return s
	}
	return "inherited"
}

type ServerConfig struct {
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	FeedPath    string        `mapstructure:"feed_path" yaml:"feed_path"`
	PredictPath string        `mapstructure:"predict_path" yaml:"predict_path"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type ScanConfig struct {
	Backend    string        `mapstructure:"backend" yaml:"backend"` // "nmcli", "iw", "replay"
	Interface  string        `mapstructure:"interface" yaml:"interface"`
	Interval   time.Duration `mapstructure:"interval" yaml:"interval"`
	ReplayFile string        `mapstructure:"replay_file" yaml:"replay_file,omitempty"`
}

type PredictionConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// MQTTConfig configures the optional prediction mirror. An empty broker disables it.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker" yaml:"broker"`
	ClientID string `mapstructure:"client_id" yaml:"client_id"`
	Username string `mapstructure:"username" yaml:"username,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	Topic    string `mapstructure:"topic" yaml:"topic"`
	DeviceID string `mapstructure:"device_id" yaml:"device_id"`
}

// Enabled reports whether a broker is configured.
func (m MQTTConfig) Enabled() bool {
	return strings.TrimSpace(m.Broker) != ""
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

var supportedBackends = []string{"nmcli", "iw", "replay"}

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:     "http://192.168.29.191:8000",
			FeedPath:    "/feed",
			PredictPath: "/predict",
			Timeout:     5 * time.Second,
		},
		Scan: ScanConfig{
			Backend:   "nmcli",
			Interface: "wlan0",
			Interval:  time.Second,
		},
		Prediction: PredictionConfig{
			Interval: time.Second,
		},
		MQTT: MQTTConfig{
			Topic: "wifiposition/{device_id}/prediction",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Profile: "default",
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server.base_url", d.Server.BaseURL)
	v.SetDefault("server.feed_path", d.Server.FeedPath)
	v.SetDefault("server.predict_path", d.Server.PredictPath)
	v.SetDefault("server.timeout", d.Server.Timeout)
	v.SetDefault("scan.backend", d.Scan.Backend)
	v.SetDefault("scan.interface", d.Scan.Interface)
	v.SetDefault("scan.interval", d.Scan.Interval)
	v.SetDefault("scan.replay_file", d.Scan.ReplayFile)
	v.SetDefault("prediction.interval", d.Prediction.Interval)
	v.SetDefault("mqtt.broker", d.MQTT.Broker)
	v.SetDefault("mqtt.client_id", d.MQTT.ClientID)
	v.SetDefault("mqtt.username", d.MQTT.Username)
	v.SetDefault("mqtt.password", d.MQTT.Password)
	v.SetDefault("mqtt.topic", d.MQTT.Topic)
	v.SetDefault("mqtt.device_id", d.MQTT.DeviceID)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("active_config", "")
}

// Load reads configFile with the active profile.
func Load(configFile string) (*Config, error) {
	return LoadWithProfile(configFile, "")
}

// LoadWithProfile reads configFile, applies environment overrides and merges
// the selected profile over the base sections. An empty configFile, or one that
// does not exist, yields the built-in defaults plus environment overrides.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	rootConfig, err := ReadRoot(configFile)
	if err != nil {
		return nil, err
	}

	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	base := &Config{
		Server:     rootConfig.Server,
		Scan:       rootConfig.Scan,
		Prediction: rootConfig.Prediction,
		MQTT:       rootConfig.MQTT,
		Metrics:    rootConfig.Metrics,
	}

	selected := base
	if configName != "default" {
		p, exists := rootConfig.Profiles[configName]
		if !exists {
			return nil, fmt.Errorf("configuration profile '%s' not found", configName)
		}
		selected = mergeConfigs(base, p)
	} else if p, exists := rootConfig.Profiles["default"]; exists {
		selected = mergeConfigs(base, p)
	} else {
		selected = mergeConfigs(base, nil)
	}
	selected.Profile = configName

	selected.Scan.ReplayFile = expandPath(selected.Scan.ReplayFile)

	if err := Validate(selected); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return selected, nil
}

// ReadRoot reads the raw file structure, including every profile, without
// resolving or validating it.
func ReadRoot(configFile string) (*RootConfig, error) {
	// A .env next to the binary is optional.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &rootConfig, nil
}

// ProfileNames lists the profiles defined in configFile.
func ProfileNames(configFile string) ([]string, error) {
	rootConfig, err := ReadRoot(configFile)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rootConfig.Profiles))
	for name := range rootConfig.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if newActiveConfig != "default" {
		profiles := v.GetStringMap("profiles")
		if _, ok := profiles[newActiveConfig]; !ok {
			return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
		}
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// mergeConfigs implements the "selection and fallback" model: every non-zero
// profile value replaces the base value, everything else is inherited.
// metrics.enabled is a plain bool and always comes from the base section.
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{}
	if base != nil {
		*result = *base
	}
	result.Inheritance = &InheritanceInfo{Keys: make(map[string]string)}

	if profile == nil {
		return result
	}

	set := func(key string) { result.Inheritance.Keys[key] = "profile-specific" }

	if profile.Server.BaseURL != "" {
		result.Server.BaseURL = profile.Server.BaseURL
		set("server.base_url")
	}
	if profile.Server.FeedPath != "" {
		result.Server.FeedPath = profile.Server.FeedPath
		set("server.feed_path")
	}
	if profile.Server.PredictPath != "" {
		result.Server.PredictPath = profile.Server.PredictPath
		set("server.predict_path")
	}
	if profile.Server.Timeout != 0 {
		result.Server.Timeout = profile.Server.Timeout
		set("server.timeout")
	}

	if profile.Scan.Backend != "" {
		result.Scan.Backend = profile.Scan.Backend
		set("scan.backend")
	}
	if profile.Scan.Interface != "" {
		result.Scan.Interface = profile.Scan.Interface
		set("scan.interface")
	}
	if profile.Scan.Interval != 0 {
		result.Scan.Interval = profile.Scan.Interval
		set("scan.interval")
	}
	if profile.Scan.ReplayFile != "" {
		result.Scan.ReplayFile = profile.Scan.ReplayFile
		set("scan.replay_file")
	}

	if profile.Prediction.Interval != 0 {
		result.Prediction.Interval = profile.Prediction.Interval
		set("prediction.interval")
	}

	if profile.MQTT.Broker != "" {
		result.MQTT.Broker = profile.MQTT.Broker
		set("mqtt.broker")
	}
	if profile.MQTT.ClientID != "" {
		result.MQTT.ClientID = profile.MQTT.ClientID
		set("mqtt.client_id")
	}
	if profile.MQTT.Username != "" {
		result.MQTT.Username = profile.MQTT.Username
		set("mqtt.username")
	}
	if profile.MQTT.Password != "" {
		result.MQTT.Password = profile.MQTT.Password
		set("mqtt.password")
	}
	if profile.MQTT.Topic != "" {
		result.MQTT.Topic = profile.MQTT.Topic
		set("mqtt.topic")
	}
	if profile.MQTT.DeviceID != "" {
		result.MQTT.DeviceID = profile.MQTT.DeviceID
		set("mqtt.device_id")
	}

	return result
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Validate checks a resolved configuration.
func Validate(cfg *Config) error {
	u, err := url.Parse(cfg.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("server.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.base_url must use http or https, got: %q", cfg.Server.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("server.base_url must include a host, got: %q", cfg.Server.BaseURL)
	}

	if !strings.HasPrefix(cfg.Server.FeedPath, "/") {
		return fmt.Errorf("server.feed_path must start with '/', got: %q", cfg.Server.FeedPath)
	}
	if !strings.HasPrefix(cfg.Server.PredictPath, "/") {
		return fmt.Errorf("server.predict_path must start with '/', got: %q", cfg.Server.PredictPath)
	}
	if cfg.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be > 0, got: %s", cfg.Server.Timeout)
	}

	if cfg.Scan.Interval <= 0 {
		return fmt.Errorf("scan.interval must be > 0, got: %s", cfg.Scan.Interval)
	}
	if cfg.Prediction.Interval <= 0 {
		return fmt.Errorf("prediction.interval must be > 0, got: %s", cfg.Prediction.Interval)
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Scan.Backend))
	if !isSupportedBackend(backend) {
		return fmt.Errorf("scan.backend must be one of %s, got: %q", strings.Join(supportedBackends, ", "), cfg.Scan.Backend)
	}
	if backend == "replay" && cfg.Scan.ReplayFile == "" {
		return fmt.Errorf("scan.backend 'replay' requires scan.replay_file")
	}

	if cfg.MQTT.Enabled() {
		mu, err := url.Parse(cfg.MQTT.Broker)
		if err != nil || mu.Host == "" {
			return fmt.Errorf("mqtt.broker must be a URL like tcp://host:1883, got: %q", cfg.MQTT.Broker)
		}
		if cfg.MQTT.Topic == "" {
			return fmt.Errorf("mqtt.topic is required when mqtt.broker is set")
		}
	}

	return nil
}

func isSupportedBackend(name string) bool {
	// An empty backend falls back to nmcli.
	if name == "" || name == "auto" {
		return true
	}
	for _, b := range supportedBackends {
		if b == name {
			return true
		}
	}
	return false
}
