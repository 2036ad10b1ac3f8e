package task

import (
	"encoding/json"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Interaction is one remembered command of the session-scoped history.
type Interaction struct {
	Command   string    `json:"command"`
	Intent    Intent    `json:"intent,omitempty"`
	Status    Status    `json:"status"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// UserContext is the merged snapshot of a user's short-term history and
// persisted preferences. It is built fresh for every command; handlers
// receive a copy and never write back through it.
type UserContext struct {
	User        UserID            `json:"user"`
	Recent      []Interaction     `json:"recent_interactions"`
	Preferences map[string]any    `json:"preferences"`
	Frequency   map[string]int    `json:"frequently_used_commands"`
	Shortcuts   map[string]string `json:"custom_shortcuts"`
}

// EmptyContext is the context of a first-time user, and the degraded
// context used when loading fails.
func EmptyContext(user UserID) UserContext {
	return UserContext{
		User:        user,
		Preferences: map[string]any{},
		Frequency:   map[string]int{},
		Shortcuts:   map[string]string{},
	}
}

// Preference looks key up in the intent's learned sub-map first and then at
// the top level of the preferences.
func (c UserContext) Preference(intent Intent, key string) (any, bool) {
	if sub, ok := c.Preferences[string(intent)].(map[string]any); ok {
		if v, ok := sub[key]; ok {
			return v, true
		}
	}
	v, ok := c.Preferences[key]
	return v, ok
}

// NumberPreference is Preference restricted to numeric values.
func (c UserContext) NumberPreference(intent Intent, key string) (float64, bool) {
	v, ok := c.Preference(intent, key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// LastInteractions returns up to n of the most recent interactions, oldest first.
func (c UserContext) LastInteractions(n int) []Interaction {
	if n <= 0 || len(c.Recent) == 0 {
		return nil
	}
	if n > len(c.Recent) {
		n = len(c.Recent)
	}
	return slices.Clone(c.Recent[len(c.Recent)-n:])
}

// TopCommands returns up to n commands ordered by descending usage count.
func (c UserContext) TopCommands(n int) []string {
	cmds := make([]string, 0, len(c.Frequency))
	for cmd := range c.Frequency {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool {
		if c.Frequency[cmds[i]] != c.Frequency[cmds[j]] {
			return c.Frequency[cmds[i]] > c.Frequency[cmds[j]]
		}
		return cmds[i] < cmds[j]
	})
	if n >= 0 && len(cmds) > n {
		cmds = cmds[:n]
	}
	return cmds
}

// ShortcutKey normalizes a shortcut phrase for lookup: lower case with
// single spaces.
func ShortcutKey(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// Expand returns the expansion of text when it exactly matches one of the
// user's shortcuts.
func (c UserContext) Expand(text string) (string, bool) {
	exp, ok := c.Shortcuts[ShortcutKey(text)]
	if !ok || exp == "" {
		return text, false
	}
	return exp, true
}
