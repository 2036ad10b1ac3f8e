// Package handler implements the task handlers registered in the dispatch
// table, one per intent.
package handler

import (
	"time"

	"github.com/nadzzz/qia/internal/task"
)

// AckPayload is a plain acknowledgment.
type AckPayload struct {
	Message string `json:"message"`
}

// Summary implements task.Payload.
func (p AckPayload) Summary() string { return p.Message }

// DefaultSmartHomeTimeout leaves room for the device round-trip.
const DefaultSmartHomeTimeout = 10 * time.Second

// Deps are the collaborators the handlers need.
type Deps struct {
	Searcher Searcher
	Devices  DeviceController
	Tables   Tables
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewTable builds the dispatch table with every handler registered.
// timeouts overrides the per-intent execution timeout; smart_home falls back
// to DefaultSmartHomeTimeout and every other intent to defaultTimeout.
func NewTable(deps Deps, defaultTimeout time.Duration, timeouts map[task.Intent]time.Duration) (*task.Table, error) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Tables.Devices == nil && deps.Tables.Actions == nil && deps.Tables.Brightness == nil {
		deps.Tables = DefaultTables()
	}
	timeout := func(i task.Intent, def time.Duration) time.Duration {
		if d, ok := timeouts[i]; ok && d > 0 {
			return d
		}
		return def
	}

	return task.NewTable(defaultTimeout,
		task.Entry{Handler: NewSchedule(deps.Now), Timeout: timeout(task.IntentSchedule, 0)},
		task.Entry{Handler: NewWebSearch(deps.Searcher), Timeout: timeout(task.IntentWebSearch, 0)},
		task.Entry{Handler: NewSmartHome(deps.Devices, deps.Tables), Timeout: timeout(task.IntentSmartHome, DefaultSmartHomeTimeout)},
		task.Entry{Handler: CodeAssist{}, Timeout: timeout(task.IntentCodeAssist, 0)},
		task.Entry{Handler: General{}, Timeout: timeout(task.IntentGeneral, 0)},
	)
}
