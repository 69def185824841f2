package influxdb

import (
	"context"
	"errors"
	"testing"

	"github.com/unison-systems/actuation-core/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	cfg := config.InfluxDBConfig{Enabled: false}

	client, err := Connect(cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want %v", err, ErrDisabled)
	}
	if client != nil {
		t.Error("expected nil client when disabled")
	}
}

func TestWrite_NoOpWhenDisconnected(t *testing.T) {
	// A zero-value client is disconnected; writes must be silent no-ops
	// rather than panicking on the nil write API.
	c := &Client{}

	c.WriteLifecycleEvent("act-1", "action_started", "mock_home", "low")
	c.WriteActionDuration("mock_home", "completed", 12.5)
	c.WriteProxyAttempt("browse", 1, "retryable", 430.0)
	c.WritePoint("custom", map[string]string{"k": "v"}, map[string]interface{}{"n": 1})
	c.Flush()
}

func TestClose_NilClient(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero client = %v, want nil", err)
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want %v", err, ErrNotConnected)
	}
}
