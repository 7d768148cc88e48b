package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	MQTTHost        string
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string

	SerialPort string

	PrometheusPort int

	PollInterval time.Duration
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	mqttHost := strings.TrimSpace(os.Getenv("MQTT_HOST"))
	if mqttHost == "" {
		mqttHost = "localhost"
	}

	mqttPortStr := strings.TrimSpace(os.Getenv("MQTT_PORT"))
	if mqttPortStr == "" {
		mqttPortStr = "1883"
	}
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}

	// Brokers drop the older session when two clients share an ID, so
	// the default gets a random suffix.
	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "s8bridge-" + uuid.NewString()[:8]
	}

	topicPrefix := strings.TrimSpace(os.Getenv("MQTT_TOPIC_PREFIX"))
	if topicPrefix == "" {
		topicPrefix = "sensors/co2"
	}
	topicPrefix = strings.TrimSuffix(topicPrefix, "/")
	if topicPrefix == "" {
		return Config{}, fmt.Errorf("invalid MQTT_TOPIC_PREFIX: must not be empty")
	}

	serialPort := strings.TrimSpace(os.Getenv("SERIAL_PORT"))
	if serialPort == "" {
		serialPort = "/dev/ttyAMA0"
	}

	prometheusPortStr := strings.TrimSpace(os.Getenv("PROMETHEUS_PORT"))
	if prometheusPortStr == "" {
		prometheusPortStr = "9100"
	}
	prometheusPort, err := strconv.Atoi(prometheusPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid PROMETHEUS_PORT %q: %w", prometheusPortStr, err)
	}

	pollIntervalStr := strings.TrimSpace(os.Getenv("POLL_INTERVAL"))
	if pollIntervalStr == "" {
		pollIntervalStr = "10s"
	}
	pollInterval, err := time.ParseDuration(pollIntervalStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid POLL_INTERVAL %q: %w", pollIntervalStr, err)
	}
	if pollInterval <= 0 {
		return Config{}, fmt.Errorf("POLL_INTERVAL must be positive, got %v", pollInterval)
	}

	return Config{
		AppEnv:          appEnv,
		LogLevel:        level,
		MQTTHost:        mqttHost,
		MQTTPort:        mqttPort,
		MQTTClientID:    mqttClientID,
		MQTTTopicPrefix: topicPrefix,
		SerialPort:      serialPort,
		PrometheusPort:  prometheusPort,
		PollInterval:    pollInterval,
	}, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
