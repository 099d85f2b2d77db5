package util

import (
	"hive2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Hive: config.HiveConfig{
			BaseURL:            "https://api.example.invalid/omnia",
			Username:           "test@example.invalid",
			Password:           "secret",
			LoginTimeoutMillis: 5000,
			ReadTimeoutMillis:  10000,
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "hive2mqtt",
		},
		Monitor: config.MonitorConfig{
			PollIntervalMillis:      30000,
			PollInitialDelayMillis:  100,
			DiscoveryIntervalMillis: 240000,
			CacheMaxAgeMillis:       300000,
			StatusWaitCeilingMillis: 100000,
		},
		Port: 8080,
	}
}
