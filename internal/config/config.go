package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"codeberg.org/mutker/solardash/internal/display"
	"codeberg.org/mutker/solardash/internal/errors"
	"codeberg.org/mutker/solardash/internal/history"
	"codeberg.org/mutker/solardash/internal/mqtt"
	"codeberg.org/mutker/solardash/internal/poller"
	"codeberg.org/mutker/solardash/internal/telemetry"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"

	defaultEnvPrefix  = "SOLARDASH"
	defaultConfigName = "solardash"
)

// Defaults come from the packages that consume them
var (
	telemetryDefaults = telemetry.DefaultConfig()
	pollerDefaults    = poller.DefaultConfig()
	historyDefaults   = history.DefaultConfig()
	mqttDefaults      = mqtt.DefaultConfig()

	DefaultURL           = telemetryDefaults.BaseURL
	DefaultTimeout       = telemetryDefaults.Timeout
	DefaultInterval      = pollerDefaults.Interval
	DefaultRetryDelay    = pollerDefaults.RetryDelay
	DefaultFlashDuration = display.DefaultFlashDuration
	DefaultHistoryDB     = historyDefaults.DBPath
	DefaultBackupDir     = historyDefaults.BackupDir
	DefaultBatchSize     = historyDefaults.BatchSize
	DefaultBatchTimeout  = historyDefaults.BatchTimeout
	DefaultMQTTTopic     = mqttDefaults.Topic
	DefaultMQTTClientID  = mqttDefaults.ClientID
	DefaultMQTTQoS       = int(mqttDefaults.QoS)
)

type Config struct {
	URL           string        `mapstructure:"url"`
	Interval      time.Duration `mapstructure:"interval"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	FlashDuration time.Duration `mapstructure:"flash_duration"`
	Timeout       time.Duration `mapstructure:"timeout"`
	LogLevel      string        `mapstructure:"log_level"`
	Monitor       bool          `mapstructure:"monitor"`
	History       HistoryConfig `mapstructure:"history"`
	MQTT          MQTTConfig    `mapstructure:"mqtt"`

	// ConfigFile is the file the values were read from, empty when none was found.
	ConfigFile string `mapstructure:"-"`
}

type HistoryConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DBPath       string        `mapstructure:"db_path"`
	BackupDir    string        `mapstructure:"backup_dir"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	QoS      int    `mapstructure:"qos"`
	Retained bool   `mapstructure:"retained"`
}

var defaults = map[string]any{
	"url":                   DefaultURL,
	"interval":              DefaultInterval,
	"retry_delay":           DefaultRetryDelay,
	"flash_duration":        DefaultFlashDuration,
	"timeout":               DefaultTimeout,
	"log_level":             DefaultLogLevel,
	"monitor":               false,
	"history.enabled":       false,
	"history.db_path":       DefaultHistoryDB,
	"history.backup_dir":    DefaultBackupDir,
	"history.batch_size":    DefaultBatchSize,
	"history.batch_timeout": DefaultBatchTimeout,
	"mqtt.enabled":          false,
	"mqtt.broker":           "",
	"mqtt.topic":            DefaultMQTTTopic,
	"mqtt.client_id":        DefaultMQTTClientID,
	"mqtt.username":         "",
	"mqtt.password":         "",
	"mqtt.qos":              DefaultMQTTQoS,
	"mqtt.retained":         false,
}

// flag name -> config key
var flagKeys = map[string]string{
	"url":            "url",
	"interval":       "interval",
	"retry-delay":    "retry_delay",
	"flash-duration": "flash_duration",
	"timeout":        "timeout",
	"log-level":      "log_level",
	"monitor":        "monitor",
	"history":        "history.enabled",
	"history-db":     "history.db_path",
	"mqtt":           "mqtt.enabled",
	"mqtt-broker":    "mqtt.broker",
	"mqtt-topic":     "mqtt.topic",
}

// Load reads configuration from defaults, config file, environment and
// command line flags, in increasing order of precedence.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}
	if !o.argsSet {
		o.args = os.Args[1:]
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	fs := newFlagSet()
	if err := fs.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := o.configPath
	if configPath == "" {
		configPath, _ = fs.GetString("config")
	}
	if configPath == "" {
		configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	config := &Config{}
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(config, decodeHook); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	config.ConfigFile = v.ConfigFileUsed()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("solardash", pflag.ContinueOnError)
	fs.String("config", "", "Path to the TOML configuration file")
	fs.String("url", DefaultURL, "Base URL of the solar monitor serving /data")
	fs.Duration("interval", DefaultInterval, "Interval between polls")
	fs.Duration("retry-delay", DefaultRetryDelay, "Delay before retrying a failed poll")
	fs.Duration("flash-duration", DefaultFlashDuration, "How long an updated value stays highlighted")
	fs.Duration("timeout", DefaultTimeout, "HTTP request timeout")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool("monitor", false, "Only log telemetry, do not draw the dashboard")
	fs.Bool("history", false, "Record snapshots to the history database")
	fs.String("history-db", DefaultHistoryDB, "Path to the history database")
	fs.Bool("mqtt", false, "Forward snapshots to an MQTT broker")
	fs.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	fs.String("mqtt-topic", DefaultMQTTTopic, "MQTT topic for snapshots")

	return fs
}

func readConfigFile(v *viper.Viper, path string) error {
	errFactory := errors.New()

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
		return nil
	}

	v.SetConfigName(defaultConfigName)
	v.AddConfigPath("/etc")
	v.AddConfigPath("$HOME/.config/solardash")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

// secondsToDurationHook lets plain numbers in the config file mean seconds,
// as in `interval = 2`.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch from.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if _, ok := data.(time.Duration); ok {
				return data, nil
			}
			return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
		default:
			return data, nil
		}
	}
}

// Validate checks the loaded values
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.Wrap(errors.ErrInvalidLogLevel, &validationError{
			field:  "log_level",
			value:  c.LogLevel,
			reason: "must be one of debug, info, warning, error",
		})
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"interval", c.Interval},
		{"retry_delay", c.RetryDelay},
		{"flash_duration", c.FlashDuration},
		{"timeout", c.Timeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return errFactory.Wrap(errors.ErrInvalidInterval, &validationError{
				field:  d.field,
				value:  d.value,
				reason: "must be positive",
			})
		}
	}

	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errFactory.Wrap(errors.ErrInvalidURL, &validationError{
			field:  "url",
			value:  c.URL,
			reason: "must be an absolute http(s) URL",
		})
	}

	if c.History.Enabled {
		if c.History.DBPath == "" {
			return errFactory.Wrap(errors.ErrInvalidConfig, &validationError{
				field:  "history.db_path",
				value:  c.History.DBPath,
				reason: "required when history is enabled",
			})
		}
		if c.History.BatchSize < 1 {
			return errFactory.Wrap(errors.ErrInvalidConfig, &validationError{
				field:  "history.batch_size",
				value:  c.History.BatchSize,
				reason: "must be at least 1",
			})
		}
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return errFactory.Wrap(errors.ErrInvalidConfig, &validationError{
				field:  "mqtt.broker",
				value:  c.MQTT.Broker,
				reason: "required when mqtt is enabled",
			})
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return errFactory.Wrap(errors.ErrInvalidConfig, &validationError{
				field:  "mqtt.qos",
				value:  c.MQTT.QoS,
				reason: "must be 0, 1 or 2",
			})
		}
	}

	return nil
}

type validationError struct {
	field  string
	value  interface{}
	reason string
}

func (e *validationError) Error() string {
	return fmt.Sprintf("%s=%v: %s", e.field, e.value, e.reason)
}

func (e *validationError) Field() string      { return e.field }
func (e *validationError) Value() interface{} { return e.value }
func (e *validationError) Reason() string     { return e.reason }
