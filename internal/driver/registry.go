package driver

import (
	"fmt"
	"sync"

	"github.com/unison-systems/actuation-core/internal/envelope"
)

// Registry maps (intent name, device class) pairs to drivers.
//
// Routing iterates drivers in registration order and selects the first
// whose capability set matches; given the same registry state the same
// envelope always routes to the same driver. The registry is populated
// at startup and read-only thereafter — registration is not supported
// once routing has begun.
type Registry struct {
	mu      sync.RWMutex
	drivers []Driver

	// loggingOnly forces every route to the fallback driver,
	// regardless of intent or device class.
	loggingOnly bool
	fallback    Driver

	logger Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger attaches a logger for registration and routing.
func WithRegistryLogger(l Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithLoggingOnly forces all routing to the logging fallback driver.
// Corresponds to the ACTUATION_LOGGING_ONLY deployment gate.
func WithLoggingOnly(enabled bool) RegistryOption {
	return func(r *Registry) { r.loggingOnly = enabled }
}

// NewRegistry constructs a registry with a logging fallback driver
// already installed for logging-only mode.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger:   noopLogger{},
		fallback: NewLoggingDriver(nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register appends a driver to the routing order. Call only during
// startup, before the first Route.
func (r *Registry) Register(d Driver) {
	r.mu.Lock()
	r.drivers = append(r.drivers, d)
	r.mu.Unlock()

	r.logger.Info("driver registered",
		"driver", d.Name(),
		"capabilities", len(d.Capabilities()),
		"max_risk_level", string(d.MaxRiskLevel()))
}

// Route selects the driver for an envelope.
//
// In logging-only mode the fallback driver is returned unconditionally.
// Otherwise drivers are scanned in registration order and the first
// capability match wins. A miss returns ErrNotFound wrapped with the
// unmatched pair.
func (r *Registry) Route(env *envelope.ActionEnvelope) (Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.loggingOnly {
		return r.fallback, nil
	}

	for _, d := range r.drivers {
		for _, capability := range d.Capabilities() {
			if capability.Matches(env) {
				return d, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: intent %q, device class %q",
		ErrNotFound, env.Intent.Name, env.Target.DeviceClass)
}

// Drivers returns the registered drivers in registration order.
func (r *Registry) Drivers() []Driver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Driver, len(r.drivers))
	copy(out, r.drivers)
	return out
}

// LoggingOnly reports whether the registry is in logging-only mode.
func (r *Registry) LoggingOnly() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loggingOnly
}
