// Package device publishes smart-home commands to a device bus and waits for
// the devices to report their new state.
package device

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Type is a kind of controllable device.
type Type string

const (
	Light      Type = "light"
	Thermostat Type = "thermostat"
	Lock       Type = "lock"
	Switch     Type = "switch"
	Camera     Type = "camera"
)

// Action is a command verb understood by devices.
type Action string

const (
	TurnOn         Action = "turn_on"
	TurnOff        Action = "turn_off"
	SetTemperature Action = "set_temperature"
	LockDevice     Action = "lock"
	UnlockDevice   Action = "unlock"
	GetStatus      Action = "get_status"
)

// DefaultTemperature is used when a thermostat command carries no temperature.
const DefaultTemperature = 22.0

// DefaultBrightness is used when an on/off command carries no brightness.
const DefaultBrightness = 100

// Command is one device instruction.
type Command struct {
	Type   Type
	ID     string
	Action Action
	Params map[string]any
}

// DefaultID is the device addressed when a command names none.
func DefaultID(t Type) string { return "default_" + string(t) }

// Topic is the bus topic the command is published on.
func (c Command) Topic(prefix string) string {
	return fmt.Sprintf("%s/%s/%s/set", prefix, c.Type, c.ID)
}

// Payload builds the JSON body sent to the device. When params were
// extracted, thermostat and on/off commands always carry their value,
// falling back to the defaults.
func (c Command) Payload() ([]byte, error) {
	body := map[string]any{"action": string(c.Action)}
	if len(c.Params) > 0 {
		switch c.Action {
		case SetTemperature:
			body["temperature"] = paramOr(c.Params, "temperature", DefaultTemperature)
		case TurnOn, TurnOff:
			body["brightness"] = paramOr(c.Params, "brightness", DefaultBrightness)
		}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding %s command: %w", c.Type, err)
	}
	return data, nil
}

func paramOr(params map[string]any, key string, def any) any {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

// State is the last report received from a device.
type State struct {
	Values    map[string]any `json:"values"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone returns a deep-enough copy for handing to callers.
func (s State) Clone() State {
	return State{Values: maps.Clone(s.Values), UpdatedAt: s.UpdatedAt}
}

// Bus is the device transport.
type Bus interface {
	// Publish sends the command to its device.
	Publish(ctx context.Context, topic string, payload []byte) error

	// State returns the last state reported by the device, if any.
	State(id string) (State, bool)

	// Close releases the bus connection.
	Close() error
}
