package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Hive     HiveConfig    `mapstructure:"hive"`
	MQTT     MQTTConfig    `mapstructure:"mqtt"`
	Monitor  MonitorConfig `mapstructure:"monitor"`
	Port     uint          `mapstructure:"port"`
	HttpLog  bool          `mapstructure:"http_log"`
}

type HiveConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Username string
	Password string
	// LoginTimeoutMillis bounds the login call, ReadTimeoutMillis every
	// data call.
	LoginTimeoutMillis uint32 `mapstructure:"login_timeout_millis"`
	ReadTimeoutMillis  uint32 `mapstructure:"read_timeout_millis"`
}

type MonitorConfig struct {
	// PollIntervalMillis is the status refresh cadence,
	// DiscoveryIntervalMillis the (longer) device discovery cadence.
	PollIntervalMillis      uint32 `mapstructure:"poll_interval_millis"`
	PollInitialDelayMillis  uint32 `mapstructure:"poll_initial_delay_millis"`
	DiscoveryIntervalMillis uint32 `mapstructure:"discovery_interval_millis"`
	// CacheMaxAgeMillis is how long a snapshot is served without a new
	// remote call when the caller does not force a refresh.
	CacheMaxAgeMillis uint32 `mapstructure:"cache_max_age_millis"`
	// StatusWaitCeilingMillis bounds how long a caller waits for an
	// in-flight fetch before it gets an invalid snapshot instead.
	StatusWaitCeilingMillis uint32 `mapstructure:"status_wait_ceiling_millis"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
