// Package app wires the bridge together and owns startup and shutdown
// policy.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"s8bridge/internal/bridge"
	"s8bridge/internal/classify"
	"s8bridge/internal/config"
	"s8bridge/internal/metrics"
	"s8bridge/internal/mqtt"
	"s8bridge/internal/sensor"
)

// Run starts the metrics endpoint, connects to the broker, and drives
// the poll loop until ctx is cancelled. Exactly two failures are
// fatal: the metrics port not binding and the broker handshake
// exhausting its retries. Everything past startup is per-cycle and
// survives to the next tick.
func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()

	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"mqttHost", cfg.MQTTHost,
		"mqttPort", cfg.MQTTPort,
		"mqttClientID", cfg.MQTTClientID,
		"mqttTopicPrefix", cfg.MQTTTopicPrefix,
		"serialPort", cfg.SerialPort,
		"prometheusPort", cfg.PrometheusPort,
		"pollInterval", cfg.PollInterval,
	)
	for _, b := range classify.Bands() {
		logger.Info("classification band",
			"level", string(b.Level),
			"range_ppm", b.Range(),
			"description", b.Description,
		)
	}

	m := metrics.New()
	mqttClient := mqtt.NewClient(cfg, logger)

	metricsServer := metrics.NewServer(fmt.Sprintf(":%d", cfg.PrometheusPort), m, mqttClient)
	if err := metricsServer.Start(); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", "error", err)
		}
	}()
	logger.Info("metrics listening", "port", cfg.PrometheusPort)

	if err := mqttClient.Connect(ctx); err != nil {
		return fmt.Errorf("mqtt startup: %w", err)
	}
	defer mqttClient.Disconnect()

	reader := sensor.NewReader(cfg.SerialPort, logger)
	b := bridge.New(reader, mqttClient, m, cfg.PollInterval, logger)
	b.Run(ctx)

	return ctx.Err()
}
