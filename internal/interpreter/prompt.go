package interpreter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/nadzzz/qia/internal/task"
)

// RecentInteractions is how many recent interactions the prompt includes.
const RecentInteractions = 3

// SystemPrompt builds the classification prompt for uc.
func SystemPrompt(uc task.UserContext) string {
	var sb strings.Builder
	sb.WriteString("You are QIA, an advanced AI assistant capable of understanding and executing various tasks.\n")
	sb.WriteString("Classify the user's command into exactly one task type.\n\n")
	sb.WriteString("Task types:\n")
	sb.WriteString("- schedule: reminders, calendar events, timers\n")
	sb.WriteString("- web_search: questions that need information from the web\n")
	sb.WriteString("- smart_home: controlling lights, thermostats, locks, switches, cameras\n")
	sb.WriteString("- code_assist: programming help\n")
	sb.WriteString("- general: anything else\n")

	var ctxLines []string
	if len(uc.Preferences) > 0 {
		if b, err := json.Marshal(uc.Preferences); err == nil {
			ctxLines = append(ctxLines, "User preferences: "+string(b))
		}
	}
	if top := uc.TopCommands(5); len(top) > 0 {
		if b, err := json.Marshal(top); err == nil {
			ctxLines = append(ctxLines, "Common commands: "+string(b))
		}
	}
	if recent := uc.LastInteractions(RecentInteractions); len(recent) > 0 {
		type brief struct {
			Command string `json:"command"`
			Task    string `json:"task,omitempty"`
			Result  string `json:"result"`
		}
		briefs := make([]brief, len(recent))
		for i, r := range recent {
			briefs[i] = brief{Command: r.Command, Task: string(r.Intent), Result: r.Summary}
		}
		if b, err := json.Marshal(briefs); err == nil {
			ctxLines = append(ctxLines, "Recent interactions: "+string(b))
		}
	}
	if len(ctxLines) > 0 {
		sb.WriteString("\nContext:\n")
		sb.WriteString(strings.Join(ctxLines, "\n"))
		sb.WriteString("\n")
	}

	sb.WriteString("\nReturn a JSON object: {\"task\": \"<task type>\"}\n")
	return sb.String()
}

// ParseLabel extracts the task label from a model reply. The reply may wrap
// the JSON object in prose or a code fence.
func ParseLabel(content string) (string, error) {
	content = strings.TrimSpace(content)
	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		obj := content[start : end+1]
		if gjson.Valid(obj) {
			if label := gjson.Get(obj, "task"); label.Type == gjson.String && label.Str != "" {
				return label.Str, nil
			}
		}
	}
	return "", fmt.Errorf("no task label in model reply: %.200s", content)
}

// ExtFromContentType maps an audio MIME type to a file extension.
func ExtFromContentType(ct string) string {
	switch {
	case strings.Contains(ct, "wav"):
		return ".wav"
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	case strings.Contains(ct, "mp3"), strings.Contains(ct, "mpeg"):
		return ".mp3"
	case strings.Contains(ct, "flac"):
		return ".flac"
	case strings.Contains(ct, "webm"):
		return ".webm"
	case strings.Contains(ct, "m4a"), strings.Contains(ct, "mp4"):
		return ".m4a"
	default:
		return ".wav"
	}
}

// NormalizeLanguage converts full language names (as returned by OpenAI) to ISO-639-1 codes.
func NormalizeLanguage(lang string) string {
	if len(lang) == 2 {
		return strings.ToLower(lang)
	}
	known := map[string]string{
		"english":    "en",
		"french":     "fr",
		"spanish":    "es",
		"german":     "de",
		"italian":    "it",
		"portuguese": "pt",
		"dutch":      "nl",
		"polish":     "pl",
		"russian":    "ru",
		"japanese":   "ja",
		"korean":     "ko",
		"chinese":    "zh",
		"arabic":     "ar",
		"hindi":      "hi",
		"turkish":    "tr",
	}
	if code, ok := known[strings.ToLower(lang)]; ok {
		return code
	}
	return strings.ToLower(lang)
}
