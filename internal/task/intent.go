// Package task defines the command dispatch contract shared by the
// orchestrator, the handlers and the transports: the closed set of intents,
// the handler interface, the immutable dispatch table, the per-user context
// snapshot handed to handlers, and the result every command produces.
package task

import (
	"fmt"
	"slices"
	"strings"
)

// Intent is the closed-set classification of a command into a task category.
type Intent string

const (
	IntentSchedule   Intent = "schedule"
	IntentWebSearch  Intent = "web_search"
	IntentSmartHome  Intent = "smart_home"
	IntentCodeAssist Intent = "code_assist"
	IntentGeneral    Intent = "general"
)

var intents = []Intent{
	IntentSchedule,
	IntentWebSearch,
	IntentSmartHome,
	IntentCodeAssist,
	IntentGeneral,
}

// Intents returns every member of the closed set in declaration order.
func Intents() []Intent {
	return slices.Clone(intents)
}

// Valid reports whether i belongs to the closed set.
func (i Intent) Valid() bool {
	return slices.Contains(intents, i)
}

func (i Intent) String() string { return string(i) }

// ParseIntent maps a classifier label onto the closed set. Labels are
// compared case-insensitively and "web search" / "web-search" spellings are
// accepted. Anything else is a classification failure; there is no default.
func ParseIntent(label string) (Intent, error) {
	norm := strings.ToLower(strings.TrimSpace(label))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	i := Intent(norm)
	if !i.Valid() {
		return "", fmt.Errorf("%w: label %q is not a known task", ErrClassification, label)
	}
	return i, nil
}

// UserID is the opaque stable identity supplied by the authentication
// boundary. The core never creates or destroys identities.
type UserID string

func (u UserID) String() string { return string(u) }

// Command is one inbound command. Aux carries optional caller-supplied
// context (for example an explicit "device_id") and is read-only.
type Command struct {
	User UserID
	Text string
	Aux  map[string]string
}
