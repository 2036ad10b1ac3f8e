package handler

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/nadzzz/qia/internal/device"
	"github.com/nadzzz/qia/internal/phrase"
	"github.com/nadzzz/qia/internal/task"
)

var digitsRe = regexp.MustCompile(`\d+`)

// DeviceController executes device commands.
type DeviceController interface {
	Execute(ctx context.Context, cmd device.Command) (device.Outcome, error)
}

// SmartHomePayload is the result of an executed device command.
type SmartHomePayload struct {
	Message    string         `json:"message"`
	DeviceType device.Type    `json:"device_type"`
	Action     device.Action  `json:"action"`
	DeviceID   string         `json:"device_id"`
	Params     map[string]any `json:"params,omitempty"`
	State      map[string]any `json:"state"`
	Confirmed  bool           `json:"confirmed"`
	Type       string         `json:"type"`
}

// Summary implements task.Payload.
func (p SmartHomePayload) Summary() string { return p.Message }

// SmartHome recognizes a device and an action in the command and sends the
// resulting device command.
type SmartHome struct {
	devices DeviceController
	tables  Tables
}

// NewSmartHome creates the smart-home handler.
func NewSmartHome(devices DeviceController, tables Tables) *SmartHome {
	return &SmartHome{devices: devices, tables: tables}
}

// Intent implements task.Handler.
func (*SmartHome) Intent() task.Intent { return task.IntentSmartHome }

// Execute implements task.Handler. A command naming no known device or
// action is a handled outcome, not a failure.
func (h *SmartHome) Execute(ctx context.Context, req task.Request) (task.Payload, error) {
	command := strings.ToLower(req.Text)
	text := phrase.New(command)

	typ, okType := h.tables.DeviceType(text)
	action, okAction := h.tables.Action(text)
	if !okType || !okAction {
		return AckPayload{Message: "Could not identify device or action"}, nil
	}
	if h.devices == nil {
		return nil, fmt.Errorf("no device controller configured")
	}

	params := h.params(command, text, typ, req.Context)
	cmd := device.Command{
		Type:   typ,
		ID:     req.Aux["device_id"],
		Action: action,
		Params: params,
	}
	slog.Debug("smart home command resolved",
		"command_id", req.CommandID, "device_type", typ, "action", action, "params", params)

	out, err := h.devices.Execute(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return SmartHomePayload{
		Message:    fmt.Sprintf("Successfully %s %s", action, typ),
		DeviceType: typ,
		Action:     action,
		DeviceID:   out.DeviceID,
		Params:     params,
		State:      out.State,
		Confirmed:  out.Confirmed,
		Type:       string(task.IntentSmartHome),
	}, nil
}

// params extracts the action parameters for typ. A thermostat always gets a
// temperature: the first number in the command, else the learned
// preference, else the default.
func (h *SmartHome) params(command string, text phrase.Text, typ device.Type, uc task.UserContext) map[string]any {
	params := map[string]any{}
	switch typ {
	case device.Thermostat:
		if m := digitsRe.FindString(command); m != "" {
			if v, err := strconv.ParseFloat(m, 64); err == nil {
				params["temperature"] = v
				break
			}
		}
		if v, ok := uc.NumberPreference(task.IntentSmartHome, "preferred_temperature"); ok {
			params["temperature"] = v
			break
		}
		params["temperature"] = device.DefaultTemperature
	case device.Light:
		if v, ok := h.tables.BrightnessFor(text); ok {
			params["brightness"] = v
		}
	}
	return params
}

// Learn remembers the temperature of a thermostat command.
func (*SmartHome) Learn(p task.Payload) map[string]any {
	sp, ok := p.(SmartHomePayload)
	if !ok || sp.Action != device.SetTemperature {
		return nil
	}
	temp, ok := sp.Params["temperature"]
	if !ok {
		return nil
	}
	return map[string]any{"preferred_temperature": temp}
}
