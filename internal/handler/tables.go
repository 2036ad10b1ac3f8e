package handler

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nadzzz/qia/internal/device"
	"github.com/nadzzz/qia/internal/phrase"
)

// DeviceRule maps keywords onto a device type.
type DeviceRule struct {
	Type     device.Type `yaml:"type"`
	Keywords []string    `yaml:"keywords"`
}

// ActionRule maps keywords onto a device action.
type ActionRule struct {
	Action   device.Action `yaml:"action"`
	Keywords []string      `yaml:"keywords"`
}

// BrightnessRule maps a keyword onto a light brightness.
type BrightnessRule struct {
	Keyword string `yaml:"keyword"`
	Value   int    `yaml:"value"`
}

// Tables are the ordered keyword tables of the smart-home handler. Rules are
// scanned in order and the first rule with a matching keyword wins.
type Tables struct {
	Devices    []DeviceRule     `yaml:"devices"`
	Actions    []ActionRule     `yaml:"actions"`
	Brightness []BrightnessRule `yaml:"brightness"`
}

// DefaultTables returns the built-in keyword tables.
func DefaultTables() Tables {
	return Tables{
		Devices: []DeviceRule{
			{device.Light, []string{"light", "lamp", "bulb"}},
			{device.Thermostat, []string{"thermostat", "temperature", "ac", "heat"}},
			{device.Lock, []string{"lock", "door"}},
			{device.Switch, []string{"switch", "plug", "outlet"}},
			{device.Camera, []string{"camera", "cam", "security"}},
		},
		Actions: []ActionRule{
			{device.TurnOn, []string{"turn on", "enable", "activate"}},
			{device.TurnOff, []string{"turn off", "disable", "deactivate"}},
			{device.SetTemperature, []string{"set", "change to", "adjust"}},
			{device.LockDevice, []string{"lock", "secure"}},
			{device.UnlockDevice, []string{"unlock", "open"}},
		},
		Brightness: []BrightnessRule{
			{"dim", 30},
			{"bright", 100},
			{"medium", 50},
		},
	}
}

// LoadTables reads keyword tables from a YAML file. Sections missing from
// the file keep their defaults.
func LoadTables(path string) (Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("reading keyword tables: %w", err)
	}
	var file Tables
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Tables{}, fmt.Errorf("parsing keyword tables %s: %w", path, err)
	}

	t := DefaultTables()
	if len(file.Devices) > 0 {
		t.Devices = file.Devices
	}
	if len(file.Actions) > 0 {
		t.Actions = file.Actions
	}
	if len(file.Brightness) > 0 {
		t.Brightness = file.Brightness
	}
	if err := t.validate(); err != nil {
		return Tables{}, fmt.Errorf("keyword tables %s: %w", path, err)
	}
	return t, nil
}

func (t Tables) validate() error {
	for _, r := range t.Devices {
		switch r.Type {
		case device.Light, device.Thermostat, device.Lock, device.Switch, device.Camera:
		default:
			return fmt.Errorf("unknown device type %q", r.Type)
		}
		if len(r.Keywords) == 0 {
			return fmt.Errorf("device type %q has no keywords", r.Type)
		}
	}
	for _, r := range t.Actions {
		switch r.Action {
		case device.TurnOn, device.TurnOff, device.SetTemperature, device.LockDevice, device.UnlockDevice, device.GetStatus:
		default:
			return fmt.Errorf("unknown device action %q", r.Action)
		}
		if len(r.Keywords) == 0 {
			return fmt.Errorf("device action %q has no keywords", r.Action)
		}
	}
	for _, r := range t.Brightness {
		if r.Keyword == "" || r.Value < 0 || r.Value > 100 {
			return fmt.Errorf("invalid brightness rule %q=%d", r.Keyword, r.Value)
		}
	}
	return nil
}

// DeviceType returns the type of the first device rule matching text.
func (t Tables) DeviceType(text phrase.Text) (device.Type, bool) {
	for _, r := range t.Devices {
		if text.ContainsAny(r.Keywords) {
			return r.Type, true
		}
	}
	return "", false
}

// Action returns the action of the first action rule matching text.
func (t Tables) Action(text phrase.Text) (device.Action, bool) {
	for _, r := range t.Actions {
		if text.ContainsAny(r.Keywords) {
			return r.Action, true
		}
	}
	return "", false
}

// BrightnessFor returns the value of the first brightness rule matching text.
func (t Tables) BrightnessFor(text phrase.Text) (int, bool) {
	for _, r := range t.Brightness {
		if text.Contains(r.Keyword) {
			return r.Value, true
		}
	}
	return 0, false
}
