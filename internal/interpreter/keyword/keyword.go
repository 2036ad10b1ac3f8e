// Package keyword implements an offline Interpreter that classifies commands
// with ordered keyword rules. It cannot transcribe audio.
package keyword

import (
	"context"

	"github.com/nadzzz/qia/internal/interpreter"
	"github.com/nadzzz/qia/internal/phrase"
	"github.com/nadzzz/qia/internal/task"
)

// Rule maps keywords onto a task label.
type Rule struct {
	Label    string
	Keywords []string
}

// DefaultRules is the built-in rule set, scanned in order.
var DefaultRules = []Rule{
	{Label: "smart_home", Keywords: []string{
		"turn on", "turn off", "light", "lamp", "bulb", "thermostat", "temperature",
		"lock", "unlock", "door", "switch", "plug", "outlet", "camera",
	}},
	{Label: "schedule", Keywords: []string{
		"remind", "reminder", "schedule", "calendar", "appointment", "meeting", "alarm", "timer",
	}},
	{Label: "code_assist", Keywords: []string{
		"code", "function", "bug", "compile", "refactor", "golang", "python", "program",
	}},
	{Label: "web_search", Keywords: []string{
		"search", "look up", "find", "who is", "what is", "who was", "where is", "news",
	}},
}

// Interpreter classifies by keyword rules.
type Interpreter struct {
	rules    []Rule
	fallback string
}

// New creates a keyword interpreter. Commands no rule matches get "general".
func New(rules []Rule) *Interpreter {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Interpreter{rules: rules, fallback: string(task.IntentGeneral)}
}

// Name returns the backend identifier.
func (i *Interpreter) Name() string { return "keyword" }

// Transcribe is not supported.
func (i *Interpreter) Transcribe(context.Context, []byte, string, interpreter.TranscribeOpts) (*interpreter.TranscribeResult, error) {
	return nil, interpreter.ErrTranscriptionUnsupported
}

// Classify returns the label of the first rule with a matching keyword.
func (i *Interpreter) Classify(ctx context.Context, text string, _ task.UserContext) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t := phrase.New(text)
	for _, r := range i.rules {
		if t.ContainsAny(r.Keywords) {
			return r.Label, nil
		}
	}
	return i.fallback, nil
}

// Close is a no-op.
func (i *Interpreter) Close() error { return nil }
