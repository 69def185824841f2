package mqtt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/unison-systems/actuation-core/internal/infrastructure/config"
)

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "localhost",
			Port:     1883,
			TLS:      false,
			ClientID: "actuation-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     60,
		},
	}
}

func TestBuildClientOptions_PlainBroker(t *testing.T) {
	cfg := testMQTTConfig()

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("expected 1 broker, got %d", len(opts.Servers))
	}
	got := opts.Servers[0].String()
	want := "tcp://localhost:1883"
	if got != want {
		t.Errorf("broker URL = %q, want %q", got, want)
	}
	if opts.ClientID != "actuation-test" {
		t.Errorf("client ID = %q, want %q", opts.ClientID, "actuation-test")
	}
	if !opts.AutoReconnect {
		t.Error("expected auto-reconnect to be enabled")
	}
}

func TestBuildClientOptions_TLSBroker(t *testing.T) {
	cfg := testMQTTConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	got := opts.Servers[0].String()
	want := "ssl://localhost:8883"
	if got != want {
		t.Errorf("broker URL = %q, want %q", got, want)
	}
	if opts.TLSConfig == nil {
		t.Fatal("expected TLS config to be set")
	}
	if opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("TLS min version = %d, want %d", opts.TLSConfig.MinVersion, tlsMinVersion)
	}
}

func TestBuildClientOptions_Credentials(t *testing.T) {
	cfg := testMQTTConfig()
	cfg.Auth.Username = "svc-actuation"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if opts.Username != "svc-actuation" {
		t.Errorf("username = %q, want %q", opts.Username, "svc-actuation")
	}
	if opts.Password != "secret" {
		t.Errorf("password not carried through")
	}
}

func TestConfigureLWT(t *testing.T) {
	cfg := testMQTTConfig()
	opts := buildClientOptions(cfg)

	configureLWT(opts, cfg.Broker.ClientID)

	if !opts.WillEnabled {
		t.Fatal("expected will to be enabled")
	}
	if opts.WillTopic != statusTopic {
		t.Errorf("will topic = %q, want %q", opts.WillTopic, statusTopic)
	}
	if !opts.WillRetained {
		t.Error("expected will to be retained")
	}
	if !bytes.Contains(opts.WillPayload, []byte(`"status":"offline"`)) {
		t.Errorf("will payload missing offline status: %s", opts.WillPayload)
	}
	if !bytes.Contains(opts.WillPayload, []byte(`"reason":"unexpected_disconnect"`)) {
		t.Errorf("will payload missing disconnect reason: %s", opts.WillPayload)
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("actuation-test")
	if !strings.Contains(online, `"status":"online"`) {
		t.Errorf("online payload = %s", online)
	}
	if !strings.Contains(online, `"client_id":"actuation-test"`) {
		t.Errorf("online payload missing client_id: %s", online)
	}

	offline := buildOfflinePayload("actuation-test")
	if !strings.Contains(offline, `"status":"offline"`) {
		t.Errorf("offline payload = %s", offline)
	}
	if !strings.Contains(offline, `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload missing graceful reason: %s", offline)
	}
}

func TestPublish_Validation(t *testing.T) {
	c := &Client{cfg: testMQTTConfig()}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{
			name:    "empty topic",
			topic:   "",
			payload: []byte("{}"),
			qos:     1,
			wantErr: ErrInvalidTopic,
		},
		{
			name:    "invalid qos",
			topic:   "unison/home/lamp",
			payload: []byte("{}"),
			qos:     3,
			wantErr: ErrInvalidQoS,
		},
		{
			name:    "oversized payload",
			topic:   "unison/home/lamp",
			payload: make([]byte, maxPayloadSize+1),
			qos:     1,
			wantErr: ErrPublishFailed,
		},
		{
			name:    "not connected",
			topic:   "unison/home/lamp",
			payload: []byte("{}"),
			qos:     1,
			wantErr: ErrNotConnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	c := &Client{cfg: testMQTTConfig()}

	err := c.HealthCheck(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want %v", err, ErrNotConnected)
	}
}

func TestCallbackRegistration(t *testing.T) {
	c := &Client{cfg: testMQTTConfig()}

	var connectCalled, disconnectCalled bool
	c.SetOnConnect(func() { connectCalled = true })
	c.SetOnDisconnect(func(error) { disconnectCalled = true })

	c.callbackMu.RLock()
	onConnect := c.onConnect
	onDisconnect := c.onDisconnect
	c.callbackMu.RUnlock()

	onConnect()
	onDisconnect(fmt.Errorf("broker gone"))

	if !connectCalled {
		t.Error("connect callback not registered")
	}
	if !disconnectCalled {
		t.Error("disconnect callback not registered")
	}
}
