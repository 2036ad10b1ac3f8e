package device

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// MemoryBus is an in-process bus. With echo enabled every published command
// is reported back as the device's new state after the echo delay, which
// mimics a well-behaved device.
type MemoryBus struct {
	mu        sync.Mutex
	states    map[string]State
	published []Published
	echo      bool
	delay     time.Duration
	timers    []*time.Timer
	closed    bool
}

// Published is a command seen by a MemoryBus.
type Published struct {
	Topic   string
	Payload []byte
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus(echo bool, delay time.Duration) *MemoryBus {
	return &MemoryBus{states: make(map[string]State), echo: echo, delay: delay}
}

// Publish records the command and schedules its echo.
func (b *MemoryBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errBusClosed
	}
	b.published = append(b.published, Published{Topic: topic, Payload: append([]byte(nil), payload...)})
	if !b.echo {
		return nil
	}
	id := setTopicDeviceID(topic)
	if id == "" {
		return nil
	}
	var values map[string]any
	if err := json.Unmarshal(payload, &values); err != nil {
		return nil
	}
	if b.delay <= 0 {
		b.states[id] = State{Values: values, UpdatedAt: time.Now()}
		return nil
	}
	b.timers = append(b.timers, time.AfterFunc(b.delay, func() {
		b.Report(id, values)
	}))
	return nil
}

// Report sets a device's state as if the device had published it.
func (b *MemoryBus) Report(id string, values map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.states[id] = State{Values: values, UpdatedAt: time.Now()}
}

// State returns the last reported state of id.
func (b *MemoryBus) State(id string) (State, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.states[id]
	return st, ok
}

// Sent returns the commands published so far.
func (b *MemoryBus) Sent() []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Published(nil), b.published...)
}

// Close stops pending echoes.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, t := range b.timers {
		t.Stop()
	}
	b.timers = nil
	return nil
}

// setTopicDeviceID extracts the device id from "<prefix>/<type>/<id>/set".
func setTopicDeviceID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[len(parts)-1] != "set" {
		return ""
	}
	return parts[len(parts)-2]
}
