package events

import "github.com/diagnosis/gatepass/pkg/logger"

// Connect returns a NATS-backed bus, or an in-process bus when url is empty.
func Connect(url, name string) (EventBus, error) {
	if url == "" {
		logger.Warn("NATS_URL empty, events stay in-process", "service", name)
		return NewMemoryBus(), nil
	}
	return NewNATSEventBus(url, name)
}
