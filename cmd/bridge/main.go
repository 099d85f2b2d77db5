package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "hive2mqtt/internal/adapter/actor"
	"hive2mqtt/internal/config"
	"hive2mqtt/internal/core/actor"
	"hive2mqtt/internal/server"
	"hive2mqtt/internal/util/actorutil"
	"hive2mqtt/pkg/hiveapi"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, hiveActorProvider(cfg, logger), mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => HIVE2MQTT_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("HIVE2MQTT_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("hive2mqtt")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if cfg.Hive.Username == "" || cfg.Hive.Password == "" {
		return nil, errors.New("config params hive.username and hive.password are required")
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if cfg.Monitor.PollIntervalMillis < 1000 {
		return nil, errors.New("config param monitor.poll_interval_millis should be >= 1000")
	}
	if cfg.Monitor.DiscoveryIntervalMillis < cfg.Monitor.PollIntervalMillis {
		return nil, errors.New("config param monitor.discovery_interval_millis should be >= monitor.poll_interval_millis")
	}
	if cfg.Monitor.StatusWaitCeilingMillis < 1000 {
		return nil, errors.New("config param monitor.status_wait_ceiling_millis should be >= 1000")
	}

	return &cfg, nil
}

func hiveActorProvider(cfg *config.Config, logger *zap.Logger) actor.HiveActorProvider {
	client := hiveapi.CreateHTTPClient(cfg.Hive.BaseURL, cfg.Hive.Username, cfg.Hive.Password,
		time.Duration(cfg.Hive.LoginTimeoutMillis)*time.Millisecond,
		time.Duration(cfg.Hive.ReadTimeoutMillis)*time.Millisecond, logger)

	// check the credentials up front so a misconfiguration shows up at
	// boot instead of on the first poll; the actor keeps retrying either way
	if !client.Session().EnsureToken() {
		logger.Error("hive login failed, check credentials (bridge starts offline)")
	}

	callTimeout := time.Duration(cfg.Hive.ReadTimeoutMillis)*time.Millisecond + 5*time.Second

	return func() *adactor.HiveActor {
		return adactor.NewHiveActor(client, callTimeout, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("hive.base_url", "https://api-prod.bgchprod.info/omnia")
	viper.SetDefault("hive.login_timeout_millis", 5000)
	viper.SetDefault("hive.read_timeout_millis", 30000)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "hive2mqtt")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("monitor.poll_interval_millis", 30000)
	viper.SetDefault("monitor.poll_initial_delay_millis", 5000)
	viper.SetDefault("monitor.discovery_interval_millis", 240000)
	viper.SetDefault("monitor.cache_max_age_millis", 300000)
	viper.SetDefault("monitor.status_wait_ceiling_millis", 100000)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.Hive.Username = "*redacted*"
	cfg.Hive.Password = "*redacted*"
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
