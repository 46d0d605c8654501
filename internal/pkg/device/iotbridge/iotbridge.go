// Package iotbridge receives readings from an MQTT sensor bridge. The
// bridge publishes flat JSON reading documents on a topic; the adapter
// keeps the latest sample and hands it to the scheduler when polled. A
// poll counts as fresh only if a sample arrived since the previous poll,
// otherwise the cycle records a timeout for this device.
package iotbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/seubert/gammalog/internal/pkg/device"
	"github.com/seubert/gammalog/internal/pkg/logger"
	"github.com/seubert/gammalog/internal/pkg/vars"
)

// Config describes the bridge connection.
type Config struct {
	Broker   string // host:port
	Topic    string
	ClientID string
	// KeepAlive for the MQTT connection
	KeepAlive time.Duration
}

type sample struct {
	values  map[vars.Name]float64
	arrived time.Time
}

// Adapter subscribes to the bridge topic and caches the newest reading.
type Adapter struct {
	cfg Config
	// connMu serializes connection setup so overlapping polls cannot each
	// dial the broker and leak a client. It is separate from mu because
	// receive runs on the client's incoming loop and needs mu while
	// Connect/Subscribe are still waiting for their acks.
	connMu sync.Mutex
	mu     sync.Mutex
	client *paho.Client
	latest *sample
	// lastTaken marks the arrival time of the sample consumed by the
	// previous poll, so a stale retained value is not re-reported
	lastTaken time.Time
}

// New creates the adapter. The broker connection is established lazily on
// the first poll.
func New(cfg Config) (*Adapter, error) {
	if cfg.Broker == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("iotbridge: broker and topic must be configured")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "gammalog"
	}
	if cfg.KeepAlive == 0 {
		cfg.KeepAlive = 30 * time.Second
	}
	return &Adapter{cfg: cfg}, nil
}

func (a *Adapter) Name() string { return "iotbridge" }

func (a *Adapter) Produces() []vars.Name {
	return []vars.Name{vars.CPM2nd, vars.CPS2nd, vars.Temp, vars.Press, vars.Humid}
}

// Poll returns the newest sample that arrived since the previous poll.
func (a *Adapter) Poll(ctx context.Context) device.PollResult {
	if err := a.ensureConnected(ctx); err != nil {
		if ctx.Err() != nil {
			return device.TimedOut()
		}
		return device.Failed(err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.latest == nil || !a.latest.arrived.After(a.lastTaken) {
		return device.TimedOut()
	}
	a.lastTaken = a.latest.arrived

	values := make(map[vars.Name]float64, len(a.latest.values))
	for k, v := range a.latest.values {
		values[k] = v
	}
	return device.Ok(values)
}

func (a *Adapter) ensureConnected(ctx context.Context) error {
	a.connMu.Lock()
	defer a.connMu.Unlock()

	a.mu.Lock()
	if a.client != nil {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	conn, err := net.Dial("tcp", a.cfg.Broker)
	if err != nil {
		return fmt.Errorf("iotbridge: dial %s: %w", a.cfg.Broker, err)
	}

	client := paho.NewClient(paho.ClientConfig{
		Conn: conn,
		OnClientError: func(err error) {
			logger.Warn("MQTT client error, will reconnect on next poll", "error", err)
			a.dropClient()
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			logger.Warn("MQTT server disconnect", "reason", d.ReasonCode)
			a.dropClient()
		},
	})
	client.AddOnPublishReceived(func(pr paho.PublishReceived) (bool, error) {
		a.receive(pr.Packet.Payload)
		return true, nil
	})

	if _, err := client.Connect(ctx, &paho.Connect{
		ClientID:   a.cfg.ClientID,
		CleanStart: true,
		KeepAlive:  uint16(a.cfg.KeepAlive.Seconds()),
	}); err != nil {
		conn.Close()
		return fmt.Errorf("iotbridge: connect: %w", err)
	}

	if _, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: a.cfg.Topic, QoS: 0},
		},
	}); err != nil {
		client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return fmt.Errorf("iotbridge: subscribe %s: %w", a.cfg.Topic, err)
	}

	a.mu.Lock()
	a.client = client
	a.mu.Unlock()
	logger.Info("MQTT bridge connected", "broker", a.cfg.Broker, "topic", a.cfg.Topic)
	return nil
}

func (a *Adapter) dropClient() {
	a.mu.Lock()
	a.client = nil
	a.mu.Unlock()
}

// receive parses one published reading document. Malformed payloads are
// counted against the device on the next poll rather than raised.
func (a *Adapter) receive(payload []byte) {
	var doc map[string]float64
	if err := json.Unmarshal(payload, &doc); err != nil {
		logger.Warn("MQTT bridge published malformed reading", "error", err)
		return
	}

	values := make(map[vars.Name]float64)
	for key, v := range doc {
		name := vars.Name(key)
		if vars.IsValid(name) {
			values[name] = v
		}
	}
	if len(values) == 0 {
		return
	}

	a.mu.Lock()
	a.latest = &sample{values: values, arrived: time.Now()}
	a.mu.Unlock()
}

// Close tears the MQTT connection down.
func (a *Adapter) Close() error {
	a.mu.Lock()
	client := a.client
	a.client = nil
	a.mu.Unlock()

	if client != nil {
		return client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	}
	return nil
}
