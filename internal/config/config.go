// Package config loads the easybutton daemon configuration from a YAML file
// and EASYBUTTON_* environment variables, and watches the file for changes
// to the settings that can be applied at runtime.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sweeney/easybutton/internal/button"
	"github.com/sweeney/easybutton/internal/gpio"
	"github.com/sweeney/easybutton/internal/mqtt"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

const (
	configName = "easybutton"
	configType = "yaml"
	envPrefix  = "EASYBUTTON"

	keyDriver      = "driver"
	keyChip        = "chip"
	keyPollMs      = "poll_ms"
	keyDebounceMs  = "debounce_ms"
	keyLongPressMs = "long_press_ms"
	keyHeartbeatMs = "heartbeat_ms"
	keyBroker      = "broker"
	keyClientID    = "client_id"
	keyTopicPrefix = "topic_prefix"
	keyHTTPAddr    = "http"
	keyLogLevel    = "log_level"
	keyLEDLine     = "led_line"
	keyButtons     = "buttons"

	defaultPollMs      = 10
	defaultLongPressMs = 1000
	defaultHeartbeatMs = 15 * 60 * 1000
	defaultBroker      = "tcp://192.168.1.200:1883"
	defaultClientID    = "easybutton"
	defaultHTTPAddr    = ":80"
	defaultLogLevel    = "info"
	defaultButtonLine  = 17
)

// Button describes one push button.
type Button struct {
	Name       string `mapstructure:"name"`
	Line       int    `mapstructure:"line"`
	ActiveHigh bool   `mapstructure:"active_high"`
}

// Polarity returns the button's logical polarity.
func (b Button) Polarity() button.Polarity {
	if b.ActiveHigh {
		return button.ActiveHigh
	}
	return button.ActiveLow
}

// Config is the complete daemon configuration.
type Config struct {
	Driver      string
	Chip        string
	PollMs      int
	DebounceMs  int
	LongPressMs int
	HeartbeatMs int
	Broker      string
	ClientID    string
	TopicPrefix string
	HTTPAddr    string
	LogLevel    string
	// LEDLine is the line driven with the toggle state; negative disables it.
	LEDLine int
	Buttons []Button
}

// Lines returns the input line of every button in configuration order.
func (c Config) Lines() []int {
	lines := make([]int, len(c.Buttons))
	for i, b := range c.Buttons {
		lines[i] = b.Line
	}
	return lines
}

// Runtime holds the settings that may change while the daemon runs.
type Runtime struct {
	LongPressMs int
	LogLevel    zapcore.Level
}

// Loader reads the configuration through viper.
type Loader struct {
	v      *viper.Viper
	logger *zap.SugaredLogger
	// loaded is the config the daemon started with.
	loaded Config
}

// NewLoader creates a Loader. An empty path searches the working directory
// and /etc/easybutton for easybutton.yaml.
func NewLoader(path string, logger *zap.SugaredLogger) *Loader {
	v := viper.New()
	v.SetConfigType(configType)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/easybutton")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyDriver, gpio.DriverCdev)
	v.SetDefault(keyChip, gpio.DefaultChip)
	v.SetDefault(keyPollMs, defaultPollMs)
	v.SetDefault(keyDebounceMs, button.DefaultDebounceMillis)
	v.SetDefault(keyLongPressMs, defaultLongPressMs)
	v.SetDefault(keyHeartbeatMs, defaultHeartbeatMs)
	v.SetDefault(keyBroker, defaultBroker)
	v.SetDefault(keyClientID, defaultClientID)
	v.SetDefault(keyTopicPrefix, mqtt.DefaultTopicPrefix)
	v.SetDefault(keyHTTPAddr, defaultHTTPAddr)
	v.SetDefault(keyLogLevel, defaultLogLevel)
	v.SetDefault(keyLEDLine, -1)
	v.SetDefault(keyButtons, []map[string]interface{}{
		{"name": "button", "line": defaultButtonLine},
	})

	return &Loader{v: v, logger: logger.Named("config")}
}

// Load reads the file (if any), applies environment overrides and validates
// the result. A missing file is only an error when a path was given.
func (l *Loader) Load() (Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		l.logger.Infow("No config file found, using defaults")
	} else {
		l.logger.Debugw("Read config file", "path", l.v.ConfigFileUsed())
	}

	cfg, err := l.populate()
	if err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	l.loaded = cfg
	l.logger.Infow("Config values",
		"driver", cfg.Driver,
		"buttons", cfg.Buttons,
		"debounceMs", cfg.DebounceMs,
		"longPressMs", cfg.LongPressMs,
		"broker", cfg.Broker)
	return cfg, nil
}

// ConfigFileUsed returns the path of the file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) populate() (Config, error) {
	cfg := Config{
		Driver:      l.v.GetString(keyDriver),
		Chip:        l.v.GetString(keyChip),
		PollMs:      l.v.GetInt(keyPollMs),
		DebounceMs:  l.v.GetInt(keyDebounceMs),
		LongPressMs: l.v.GetInt(keyLongPressMs),
		HeartbeatMs: l.v.GetInt(keyHeartbeatMs),
		Broker:      l.v.GetString(keyBroker),
		ClientID:    l.v.GetString(keyClientID),
		TopicPrefix: l.v.GetString(keyTopicPrefix),
		HTTPAddr:    l.v.GetString(keyHTTPAddr),
		LogLevel:    l.v.GetString(keyLogLevel),
		LEDLine:     l.v.GetInt(keyLEDLine),
	}
	if err := l.v.UnmarshalKey(keyButtons, &cfg.Buttons); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalid, keyButtons, err)
	}
	return cfg, nil
}

// Validate checks cfg for values the daemon cannot run with.
func Validate(cfg Config) error {
	switch cfg.Driver {
	case gpio.DriverCdev, gpio.DriverPeriph, gpio.DriverRpio:
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrInvalid, cfg.Driver)
	}
	if cfg.PollMs <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, keyPollMs, cfg.PollMs)
	}
	if cfg.DebounceMs <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, keyDebounceMs, cfg.DebounceMs)
	}
	if cfg.LongPressMs <= cfg.DebounceMs {
		return fmt.Errorf("%w: %s (%d) must exceed %s (%d)", ErrInvalid,
			keyLongPressMs, cfg.LongPressMs, keyDebounceMs, cfg.DebounceMs)
	}
	if cfg.HeartbeatMs < 0 {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalid, keyHeartbeatMs)
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, keyLogLevel, err)
	}
	if len(cfg.Buttons) == 0 {
		return fmt.Errorf("%w: no buttons configured", ErrInvalid)
	}

	names := make(map[string]bool)
	lines := make(map[int]string)
	for _, b := range cfg.Buttons {
		if b.Name == "" {
			return fmt.Errorf("%w: button on line %d has no name", ErrInvalid, b.Line)
		}
		if names[b.Name] {
			return fmt.Errorf("%w: duplicate button name %q", ErrInvalid, b.Name)
		}
		names[b.Name] = true
		if b.Line < 0 {
			return fmt.Errorf("%w: button %q has negative line %d", ErrInvalid, b.Name, b.Line)
		}
		if other, ok := lines[b.Line]; ok {
			return fmt.Errorf("%w: buttons %q and %q share line %d", ErrInvalid, other, b.Name, b.Line)
		}
		lines[b.Line] = b.Name
	}
	if other, ok := lines[cfg.LEDLine]; ok {
		return fmt.Errorf("%w: %s %d is button %q", ErrInvalid, keyLEDLine, cfg.LEDLine, other)
	}
	return nil
}

// RuntimeOf extracts the reloadable settings of a validated config.
func RuntimeOf(cfg Config) Runtime {
	// Validate already rejected unparsable levels.
	level, _ := zapcore.ParseLevel(cfg.LogLevel)
	return Runtime{LongPressMs: cfg.LongPressMs, LogLevel: level}
}

// Watch starts watching the config file. On every successful reload the
// runtime settings are passed to onChange, which is called from the watcher
// goroutine. Changes to any other setting are logged and ignored until
// restart. Invalid files are logged and ignored.
func (l *Loader) Watch(onChange func(Runtime)) {
	if l.v.ConfigFileUsed() == "" {
		l.logger.Debug("No config file to watch")
		return
	}
	l.logger.Debugw("Watching config file for changes", "path", l.v.ConfigFileUsed())
	l.v.OnConfigChange(func(event fsnotify.Event) {
		l.handleChange(event, onChange)
	})
	l.v.WatchConfig()
}

func (l *Loader) handleChange(event fsnotify.Event, onChange func(Runtime)) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	l.logger.Debugw("Config file modified, attempting reload", "event", event)

	var cfg Config
	err := l.v.ReadInConfig()
	if err == nil {
		cfg, err = l.populate()
	}
	if err == nil {
		err = Validate(cfg)
	}
	if err != nil {
		l.logger.Warnw("Failed to reload config file", "error", err)
		return
	}
	if keys := restartOnly(l.loaded, cfg); len(keys) > 0 {
		l.logger.Warnw("Ignoring config changes until restart", "keys", keys)
	}
	rt := RuntimeOf(cfg)
	l.logger.Infow("Reloaded config", "longPressMs", rt.LongPressMs, "logLevel", rt.LogLevel)
	onChange(rt)
}

// restartOnly lists the keys that differ between old and cur but cannot be
// applied while running.
func restartOnly(old, cur Config) []string {
	var keys []string
	add := func(changed bool, key string) {
		if changed {
			keys = append(keys, key)
		}
	}
	add(old.Driver != cur.Driver, keyDriver)
	add(old.Chip != cur.Chip, keyChip)
	add(old.PollMs != cur.PollMs, keyPollMs)
	add(old.DebounceMs != cur.DebounceMs, keyDebounceMs)
	add(old.HeartbeatMs != cur.HeartbeatMs, keyHeartbeatMs)
	add(old.Broker != cur.Broker, keyBroker)
	add(old.ClientID != cur.ClientID, keyClientID)
	add(old.TopicPrefix != cur.TopicPrefix, keyTopicPrefix)
	add(old.HTTPAddr != cur.HTTPAddr, keyHTTPAddr)
	add(old.LEDLine != cur.LEDLine, keyLEDLine)
	add(!reflect.DeepEqual(old.Buttons, cur.Buttons), keyButtons)
	return keys
}
