package events

import (
	"time"

	"github.com/rs/zerolog"
)

// Manager is the emission side of the event system. Services hold the
// manager, never the bus, so subscription and publication stay separated.
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates an event manager bound to a bus
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("component", "event_manager").Logger(),
	}
}

// Emit publishes an event with a free-form data map
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Module:    module,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	m.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		Msg("Emitting event")

	m.bus.Publish(event)
}

// EmitData publishes an event with a typed payload; the event type comes
// from the payload itself
func (m *Manager) EmitData(module string, data EventData) {
	event := &Event{
		Type:      data.EventType(),
		Module:    module,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	m.log.Debug().
		Str("event_type", string(event.Type)).
		Str("module", module).
		Msg("Emitting event")

	m.bus.Publish(event)
}
