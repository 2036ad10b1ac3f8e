package device

import (
	"context"
	"log/slog"
	"time"

	"github.com/nadzzz/qia/internal/task"
)

// Outcome is the result of an executed device command.
type Outcome struct {
	DeviceID string `json:"device_id"`
	// State is the best-known state of the device. It may be stale or empty
	// when the device did not confirm in time.
	State     map[string]any `json:"state"`
	Confirmed bool           `json:"confirmed"`
}

// ControllerConfig tunes the confirmation wait.
type ControllerConfig struct {
	TopicPrefix    string
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
}

// Controller sends device commands and waits for state confirmation.
type Controller struct {
	bus Bus
	cfg ControllerConfig
	now func() time.Time
}

// NewController creates a controller publishing on bus.
func NewController(bus Bus, cfg ControllerConfig) *Controller {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "home"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 5 * time.Second
	}
	return &Controller{bus: bus, cfg: cfg, now: time.Now}
}

// Execute publishes cmd and polls for a state update newer than the publish.
// A missing confirmation is not an error: the command was sent, and the
// outcome carries whatever state is known.
func (c *Controller) Execute(ctx context.Context, cmd Command) (Outcome, error) {
	if cmd.ID == "" {
		cmd.ID = DefaultID(cmd.Type)
	}
	log := slog.With("device_type", cmd.Type, "device_id", cmd.ID, "action", cmd.Action)

	payload, err := cmd.Payload()
	if err != nil {
		return Outcome{}, err
	}

	sent := c.now()
	if err := c.bus.Publish(ctx, cmd.Topic(c.cfg.TopicPrefix), payload); err != nil {
		return Outcome{}, &task.TransportError{Op: "publish device command", Err: err}
	}
	log.Debug("device command published")

	out := Outcome{DeviceID: cmd.ID, State: map[string]any{}}
	confirmed := func() bool {
		st, ok := c.bus.State(cmd.ID)
		if !ok {
			return false
		}
		out.State = st.Clone().Values
		if out.State == nil {
			out.State = map[string]any{}
		}
		return !st.UpdatedAt.Before(sent)
	}

	if confirmed() {
		out.Confirmed = true
		return out, nil
	}

	deadline := time.NewTimer(c.cfg.ConfirmTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if confirmed() {
				out.Confirmed = true
				return out, nil
			}
		case <-deadline.C:
			log.Warn("device did not confirm state", "timeout", c.cfg.ConfirmTimeout)
			return out, nil
		case <-ctx.Done():
			log.Warn("device confirmation wait cancelled", "error", ctx.Err())
			return out, nil
		}
	}
}
