package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var received []*Event
	bus.Subscribe(HarvestCompleted, func(e *Event) {
		received = append(received, e)
	})

	bus.Publish(&Event{Type: HarvestCompleted, Module: "harvest"})
	bus.Publish(&Event{Type: DepositSettled, Module: "orchestrator"})

	assert.Len(t, received, 1)
	assert.Equal(t, HarvestCompleted, received[0].Type)
	assert.Equal(t, "harvest", received[0].Module)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	count := 0
	id := bus.Subscribe(EpochSettled, func(e *Event) { count++ })

	bus.Publish(&Event{Type: EpochSettled})
	bus.Unsubscribe(EpochSettled, id)
	bus.Publish(&Event{Type: EpochSettled})

	assert.Equal(t, 1, count)
}

func TestBusSurvivesPanickingHandler(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	bus.Subscribe(YieldLoopCompleted, func(e *Event) { panic("bad handler") })

	delivered := false
	bus.Subscribe(YieldLoopCompleted, func(e *Event) { delivered = true })

	assert.NotPanics(t, func() {
		bus.Publish(&Event{Type: YieldLoopCompleted})
	})
	assert.True(t, delivered, "later subscribers still receive the event")
}

func TestManagerEmitStampsTimestamp(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var got *Event
	bus.Subscribe(SettingsChanged, func(e *Event) { got = e })

	manager.Emit(SettingsChanged, "settings", map[string]interface{}{"key": "feed_url"})

	assert.NotNil(t, got)
	assert.False(t, got.Timestamp.IsZero())
	assert.Equal(t, "settings", got.Module)
}

func TestManagerEmitDataUsesPayloadType(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var got *Event
	bus.Subscribe(DepositSettled, func(e *Event) { got = e })

	manager.EmitData("orchestrator", &DepositSettledData{
		Account: "holder-1",
		Amount:  "1000000000000000000",
	})

	assert.NotNil(t, got)
	data, ok := got.Data.(*DepositSettledData)
	assert.True(t, ok)
	assert.Equal(t, "holder-1", data.Account)
}

func TestPartnerChangedDataEventType(t *testing.T) {
	added := &PartnerChangedData{PartnerID: "venue-a", Active: true}
	removed := &PartnerChangedData{PartnerID: "venue-a", Active: false}

	assert.Equal(t, PartnerAdded, added.EventType())
	assert.Equal(t, PartnerRemoved, removed.EventType())
}
