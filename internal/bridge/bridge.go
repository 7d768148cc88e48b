// Package bridge drives the acquisition loop: read the sensor,
// classify the concentration, record metrics, and report over MQTT on
// a fixed cadence.
package bridge

import (
	"context"
	"log/slog"
	"time"

	"s8bridge/internal/classify"
	"s8bridge/internal/metrics"
	"s8bridge/internal/peak"
)

// Reader produces one CO2 reading per call. An error means the cycle
// failed; the loop reports the device offline and tries again on the
// next tick.
type Reader interface {
	Acquire() (int, error)
}

// Publisher reports cycle results to the broker.
type Publisher interface {
	PublishReading(ppm, peak int, newPeak bool)
	PublishOffline()
}

// Bridge sequences a single sensor through classification, metrics,
// and publishing. One goroutine drives it; nothing here is safe for
// concurrent use.
type Bridge struct {
	reader   Reader
	pub      Publisher
	metrics  *metrics.Metrics
	peak     *peak.Tracker
	interval time.Duration
	logger   *slog.Logger
}

func New(reader Reader, pub Publisher, m *metrics.Metrics, interval time.Duration, logger *slog.Logger) *Bridge {
	return &Bridge{
		reader:   reader,
		pub:      pub,
		metrics:  m,
		peak:     &peak.Tracker{},
		interval: interval,
		logger:   logger,
	}
}

// Run executes cycles until ctx is cancelled. The first cycle starts
// immediately; the cadence is fixed and measured start to start, so a
// slow cycle does not push back the next one.
func (b *Bridge) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.cycle()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("poll loop stopped")
			return
		case <-ticker.C:
			b.cycle()
		}
	}
}

// cycle runs one acquisition and report pass. A panic anywhere inside
// is contained here: the device is reported offline and the loop keeps
// its cadence.
func (b *Bridge) cycle() {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("cycle panicked", "panic", r)
			b.pub.PublishOffline()
		}
	}()

	ppm, err := b.reader.Acquire()
	if err != nil {
		b.logger.Error("co2 acquisition failed", "error", err)
		b.pub.PublishOffline()
		return
	}

	level, description := classify.Classify(ppm)
	b.logger.Info("co2 reading",
		"ppm", ppm,
		"level", string(level),
		"description", description,
	)

	b.metrics.ObserveReading(ppm, level)

	peakPPM, newPeak := b.peak.Observe(ppm)
	if newPeak {
		b.logger.Info("new peak co2 reading", "peak_ppm", peakPPM)
	}

	b.pub.PublishReading(ppm, peakPPM, newPeak)
}
