// Package mqtt provides a publish-only MQTT client used by the MQTT
// relay driver to deliver actuation payloads to external brokers.
//
// The client wraps the Eclipse Paho library with automatic reconnection,
// a last-will-and-testament announcing service availability, and TLS
// support. Subscription handling is deliberately absent: actuation only
// ever pushes state outward, it never reacts to inbound topics.
//
// Connection lifecycle:
//
//	client, err := mqtt.Connect(cfg)
//	if err != nil { ... }
//	defer client.Close()
//
//	err = client.Publish("unison/home/lamp", payload, 1, false)
//
// The client publishes an online status message on connect and a
// graceful offline message on Close. Unexpected disconnects trigger the
// broker-side LWT instead.
package mqtt
