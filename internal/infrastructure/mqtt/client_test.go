package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/spimrig/internal/infrastructure/config"
)

// testConfig returns an MQTT configuration pointing at a local broker.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "spimrig-test",
		},
		QoS:         1,
		TopicPrefix: "spimrig-test",
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := Topics{Prefix: "lab1"}

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"Command", topics.Command("move"), "lab1/command/move"},
		{"Ack", topics.Ack("snap"), "lab1/ack/snap"},
		{"State", topics.State("stage_z"), "lab1/state/stage_z"},
		{"Event", topics.Event("laser"), "lab1/event/laser"},
		{"SystemStatus", topics.SystemStatus(), "lab1/system/status"},
		{"AllCommands", topics.AllCommands(), "lab1/command/+"},
		{"AllStates", topics.AllStates(), "lab1/state/+"},
		{"AllTopics", topics.AllTopics(), "lab1/#"},
		{"DefaultPrefix", Topics{}.SystemStatus(), "spimrig/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("got %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

func TestActionFromCommand(t *testing.T) {
	topics := Topics{Prefix: "lab1"}

	tests := []struct {
		topic  string
		action string
		ok     bool
	}{
		{"lab1/command/move", "move", true},
		{"lab1/command/", "", false},
		{"lab1/ack/move", "", false},
		{"lab2/command/move", "", false},
		{"spimrig/command/move", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			action, ok := topics.ActionFromCommand(tt.topic)
			if action != tt.action || ok != tt.ok {
				t.Errorf("ActionFromCommand(%q) = (%q, %v), want (%q, %v)", tt.topic, action, ok, tt.action, tt.ok)
			}
		})
	}
}

// =============================================================================
// Option Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "rig"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.Username != "rig" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want rig/secret", opts.Username, opts.Password)
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS configured for a plain connection")
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS minimum version not set")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, Topics{Prefix: "lab1"}, "rig-1")

	if !opts.WillEnabled || !opts.WillRetained {
		t.Fatal("LWT should be enabled and retained")
	}
	if opts.WillTopic != "lab1/system/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}

	var msg StatusMessage
	if err := json.Unmarshal(opts.WillPayload, &msg); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if msg.Status != "offline" || msg.ClientID != "rig-1" || msg.Reason != "unexpected_disconnect" {
		t.Errorf("will payload = %+v", msg)
	}
}

// =============================================================================
// Client Tests (no broker)
// =============================================================================

func TestPublishValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}

	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		want    error
	}{
		{"empty topic", "", 1, nil, ErrInvalidTopic},
		{"invalid QoS", "spimrig/ack/move", 3, nil, ErrInvalidQoS},
		{"oversized payload", "spimrig/ack/move", 1, make([]byte, maxPayloadSize+1), ErrPublishFailed},
		{"disconnected", "spimrig/ack/move", 1, []byte("{}"), ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := &Client{subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("spimrig/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := c.Subscribe("spimrig/#", 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
	if c.HasSubscription("spimrig/#") {
		t.Error("failed subscription was tracked")
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true for unconnected client")
	}
}

func TestHealthCheck(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestDispatch_RecoversPanic(t *testing.T) {
	logger := &mockLogger{}
	c := &Client{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("boom") }, "spimrig/command/move", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "spimrig/command/move", nil)

	if len(logger.errors) != 1 {
		t.Errorf("panic logs = %d, want 1", len(logger.errors))
	}
	if len(logger.warns) != 1 {
		t.Errorf("error logs = %d, want 1", len(logger.warns))
	}
}

func TestCallbacks(t *testing.T) {
	c := &Client{}
	var lost error
	c.SetOnDisconnect(func(err error) { lost = err })

	c.handleDisconnect(errors.New("network down"))

	if lost == nil || lost.Error() != "network down" {
		t.Errorf("disconnect callback got %v", lost)
	}
}

func TestStatusPayload(t *testing.T) {
	var msg StatusMessage
	if err := json.Unmarshal([]byte(statusPayload("rig-1", "online", "")), &msg); err != nil {
		t.Fatalf("status payload is not JSON: %v", err)
	}
	if msg.Status != "online" || msg.Reason != "" || msg.Timestamp == "" {
		t.Errorf("status payload = %+v", msg)
	}
}
