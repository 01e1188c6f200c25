// Package bus is the in-process event bus used to report workflow progress to
// whoever is watching (CLI spinners, tests).
package bus

import (
	eventbus "github.com/asaskevich/EventBus"
)

type Subscriber interface {
	Subscribe(topic string, fn any) error
	SubscribeAsync(topic string, fn any) error
	Unsubscribe(topic string, handler any) error
}

type Publisher interface {
	Publish(topic string, args ...any)
}

type Bus interface {
	Subscriber
	Publisher
	// WaitAsync blocks until every async handler has returned.
	WaitAsync()
}

func New() Bus {
	return &EventBus{bus: eventbus.New()}
}

type EventBus struct {
	bus eventbus.Bus
}

func (e *EventBus) Publish(topic string, args ...any) {
	e.bus.Publish(topic, args...)
}

func (e *EventBus) Subscribe(topic string, handler any) error {
	return e.bus.Subscribe(topic, handler)
}

// SubscribeAsync runs handler on its own goroutine, one event at a time.
func (e *EventBus) SubscribeAsync(topic string, handler any) error {
	return e.bus.SubscribeAsync(topic, handler, true)
}

func (e *EventBus) Unsubscribe(topic string, handler any) error {
	return e.bus.Unsubscribe(topic, handler)
}

func (e *EventBus) WaitAsync() {
	e.bus.WaitAsync()
}

// NoopBus drops every event.
type NoopBus struct{}

func (NoopBus) Publish(string, ...any)           {}
func (NoopBus) Subscribe(string, any) error      { return nil }
func (NoopBus) SubscribeAsync(string, any) error { return nil }
func (NoopBus) Unsubscribe(string, any) error    { return nil }
func (NoopBus) WaitAsync()                       {}
