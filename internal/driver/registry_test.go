package driver

import (
	"errors"
	"testing"

	"github.com/unison-systems/actuation-core/internal/envelope"
)

func testEnvelope(intent, deviceClass string) *envelope.ActionEnvelope {
	return &envelope.ActionEnvelope{
		SchemaVersion: envelope.SchemaVersion,
		ActionID:      "act-1",
		PersonID:      "person-1",
		Target:        envelope.Target{DeviceID: "dev-1", DeviceClass: deviceClass},
		Intent:        envelope.Intent{Name: intent, Parameters: map[string]any{}},
		RiskLevel:     envelope.RiskLow,
	}
}

func defaultRegistry(opts ...RegistryOption) *Registry {
	r := NewRegistry(opts...)
	r.Register(NewMockHomeDriver(nil))
	r.Register(NewMockRobotDriver(nil))
	r.Register(NewDesktopAutomationDriver(nil))
	r.Register(NewMqttDriver(nil, 1, nil))
	return r
}

func TestRoute_CapabilityMatching(t *testing.T) {
	r := defaultRegistry()

	tests := []struct {
		intent      string
		deviceClass string
		wantDriver  string
	}{
		{"turn_on", "light", "mock-home"},
		{"turn_off", "switch", "mock-home"},
		{"set_brightness", "light", "mock-home"},
		{"robot.move", "robot", "mock-robot"},
		{"robot.stop", "robot", "mock-robot"},
		{"desktop.command", "desktop", "desktop-automation"},
		{"desktop.navigate", "browser", "desktop-automation"},
		{"device.publish", "mqtt", "mqtt"},
	}

	for _, tt := range tests {
		t.Run(tt.intent+"/"+tt.deviceClass, func(t *testing.T) {
			d, err := r.Route(testEnvelope(tt.intent, tt.deviceClass))
			if err != nil {
				t.Fatalf("Route() error = %v", err)
			}
			if d.Name() != tt.wantDriver {
				t.Errorf("driver = %q, want %q", d.Name(), tt.wantDriver)
			}
		})
	}
}

func TestRoute_DeviceClassFilter(t *testing.T) {
	r := defaultRegistry()

	// Intent matches mock-home but device class does not.
	_, err := r.Route(testEnvelope("set_brightness", "switch"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Route() = %v, want %v", err, ErrNotFound)
	}
}

func TestRoute_NotFound(t *testing.T) {
	r := defaultRegistry()

	_, err := r.Route(testEnvelope("teleport", "sofa"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Route() = %v, want %v", err, ErrNotFound)
	}
}

func TestRoute_LoggingOnlyOverridesEverything(t *testing.T) {
	r := defaultRegistry(WithLoggingOnly(true))

	envelopes := []*envelope.ActionEnvelope{
		testEnvelope("turn_on", "light"),
		testEnvelope("robot.move", "robot"),
		testEnvelope("teleport", "sofa"), // would miss in normal mode
	}

	for _, env := range envelopes {
		d, err := r.Route(env)
		if err != nil {
			t.Fatalf("Route(%s) error = %v", env.Intent.Name, err)
		}
		if d.Name() != "logging" {
			t.Errorf("Route(%s) = %q, want logging driver", env.Intent.Name, d.Name())
		}
	}
}

func TestRoute_Deterministic(t *testing.T) {
	r := defaultRegistry()
	env := testEnvelope("turn_on", "light")

	first, err := r.Route(env)
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		d, err := r.Route(env)
		if err != nil {
			t.Fatalf("Route() error = %v", err)
		}
		if d != first {
			t.Fatal("routing changed between identical calls")
		}
	}
}

func TestRoute_RegistrationOrderWins(t *testing.T) {
	// Two drivers claim the same capability; the first registered wins.
	r := NewRegistry()
	first := NewMockHomeDriver(nil)
	r.Register(first)
	r.Register(NewLoggingDriver(nil)) // wildcard would also match

	d, err := r.Route(testEnvelope("turn_on", "light"))
	if err != nil {
		t.Fatalf("Route() error = %v", err)
	}
	if d != Driver(first) {
		t.Errorf("driver = %q, want first-registered mock-home", d.Name())
	}
}

func TestCapability_Matches(t *testing.T) {
	tests := []struct {
		name       string
		capability Capability
		intent     string
		class      string
		want       bool
	}{
		{"exact match", Capability{Name: "turn_on", DeviceClasses: []string{"light"}}, "turn_on", "light", true},
		{"wrong intent", Capability{Name: "turn_on", DeviceClasses: []string{"light"}}, "turn_off", "light", false},
		{"wrong class", Capability{Name: "turn_on", DeviceClasses: []string{"light"}}, "turn_on", "robot", false},
		{"no class filter", Capability{Name: "turn_on"}, "turn_on", "anything", true},
		{"wildcard", Capability{Name: "*"}, "whatever", "anything", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.capability.Matches(testEnvelope(tt.intent, tt.class)); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
