// Package mqtt owns the broker connection and the bridge's reporting
// protocol: plain string payloads on online, detected, level, and peak
// topics under a common prefix.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"s8bridge/internal/config"
)

// ConnState tracks the startup lifecycle of the broker link. It moves
// forward only: Disconnected, Connecting, then Connected or Exhausted.
// Once connected, reconnection after a drop is paho's job and the
// state stays Connected.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateExhausted
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

const (
	qosAtLeastOnce = 1

	connectAttempts = 3
	connectBackoff  = 5 * time.Second

	// ackTimeout bounds the wait for each publish acknowledgement so a
	// silent broker cannot stall the poll loop.
	ackTimeout = 5 * time.Second

	// detectedThreshold splits the detected topic payloads: at or
	// below reports "NORMAL", above reports "ABNORMAL".
	detectedThreshold = 1000
)

const (
	onlinePayload  = "1"
	offlinePayload = "0"

	detectedNormal   = "NORMAL"
	detectedAbnormal = "ABNORMAL"
)

type Client struct {
	client mqtt.Client
	prefix string
	logger *slog.Logger

	mu    sync.RWMutex
	state ConnState

	stopCh   chan struct{}
	stopOnce sync.Once

	// backoff is connectBackoff in production; tests shrink it.
	backoff time.Duration
}

func NewClient(cfg config.Config, logger *slog.Logger) *Client {
	c := &Client{
		prefix:  cfg.MQTTTopicPrefix,
		logger:  logger,
		state:   StateDisconnected,
		stopCh:  make(chan struct{}),
		backoff: connectBackoff,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTHost, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)

	// Session settings
	opts.SetCleanSession(true)

	// The startup retry budget lives in Connect; after the first
	// successful handshake paho reconnects on its own.
	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)

	// The broker flips the retained online flag to "0" for us if the
	// process dies without a clean shutdown.
	opts.SetWill(c.topic("online"), offlinePayload, qosAtLeastOnce, true)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("mqtt connected", "broker", cfg.MQTTHost, "port", cfg.MQTTPort)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, reconnecting", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect performs the startup handshake: up to connectAttempts tries
// with a fixed pause between failures. Exhausting the budget is fatal
// to startup; callers must not enter the poll loop after an error.
// Respects ctx and Disconnect().
func (c *Client) Connect(ctx context.Context) error {
	// Fail fast if already stopped.
	select {
	case <-c.stopCh:
		return fmt.Errorf("client stopped")
	default:
	}

	if c.IsConnected() {
		return nil
	}

	c.setState(StateConnecting)

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		c.logger.Info("connecting to mqtt broker", "attempt", attempt, "max_attempts", connectAttempts)

		err := c.waitToken(ctx, c.client.Connect())
		if err == nil {
			c.setState(StateConnected)
			return nil
		}
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}
		lastErr = err

		if attempt < connectAttempts {
			c.logger.Warn("mqtt connect failed, retrying",
				"attempt", attempt, "retry_in", c.backoff, "error", err)
			if !sleepCtx(ctx, c.backoff) {
				c.setState(StateDisconnected)
				return ctx.Err()
			}
		}
	}

	c.setState(StateExhausted)
	return fmt.Errorf("mqtt connect: %d attempts failed: %w", connectAttempts, lastErr)
}

// waitToken waits for token completion in a ctx/stop-aware loop.
func (c *Client) waitToken(ctx context.Context, token mqtt.Token) error {
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			return token.Error()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return fmt.Errorf("client stopped")
		default:
		}
	}
}

// publication is one queued topic write within a cycle report.
type publication struct {
	suffix   string
	payload  string
	retained bool
}

// PublishReading reports one successful cycle. Topics go out in a
// fixed order, each waiting for its acknowledgement before the next is
// sent. A failed publish is logged and the remaining topics are still
// attempted. The peak topic goes out only when the reading set a new
// peak, and it is retained so late subscribers see the high-water
// mark; the online flag is refreshed last.
func (c *Client) PublishReading(ppm, peak int, newPeak bool) {
	pubs := []publication{
		{suffix: "detected", payload: detectedPayload(ppm)},
		{suffix: "level", payload: strconv.Itoa(ppm)},
	}
	if newPeak {
		pubs = append(pubs, publication{suffix: "peak", payload: strconv.Itoa(peak), retained: true})
	}
	pubs = append(pubs, publication{suffix: "online", payload: onlinePayload, retained: true})

	for _, p := range pubs {
		if err := c.publish(p.suffix, p.payload, p.retained); err != nil {
			c.logger.Error("publish failed", "topic", c.topic(p.suffix), "error", err)
		}
	}
}

// PublishOffline marks the device unhealthy after a failed cycle. Only
// the retained online flag changes; stale readings are not refreshed.
func (c *Client) PublishOffline() {
	if err := c.publish("online", offlinePayload, true); err != nil {
		c.logger.Error("publish failed", "topic", c.topic("online"), "error", err)
	}
}

func (c *Client) publish(suffix, payload string, retained bool) error {
	topic := c.topic(suffix)

	token := c.client.Publish(topic, qosAtLeastOnce, retained, payload)
	if !token.WaitTimeout(ackTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	c.logger.Debug("published", "topic", topic, "payload", payload, "retained", retained)
	return nil
}

func (c *Client) topic(suffix string) string {
	return c.prefix + "/" + suffix
}

// detectedPayload maps a reading to the detected topic's status string.
func detectedPayload(ppm int) string {
	if ppm <= detectedThreshold {
		return detectedNormal
	}
	return detectedAbnormal
}

// State returns the startup lifecycle state.
func (c *Client) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the broker link is currently live.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected && c.client.IsConnected()
}

// Disconnect clears the retained online flag and closes the broker
// connection. Idempotent and safe to call multiple times. After
// Disconnect, Connect() will return "client stopped".
func (c *Client) Disconnect() {
	// Signal shutdown once (unblocks any Connect loops).
	c.stopOnce.Do(func() { close(c.stopCh) })

	// A clean DISCONNECT suppresses the broker's last-will, so the
	// online flag has to be cleared here while the link is still up.
	if c.client.IsConnected() {
		c.PublishOffline()
	}
	c.client.Disconnect(250)

	c.setState(StateDisconnected)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// sleepCtx pauses for d unless ctx is cancelled first. Reports whether
// the full pause elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
