package handler

import (
	"context"
	"strings"
	"time"

	"github.com/nadzzz/qia/internal/phrase"
	"github.com/nadzzz/qia/internal/task"
)

var temporalKeywords = []string{"today", "tomorrow", "next week", "at", "on"}

// SchedulePayload is the result of a schedule command. No date parsing is
// done: a temporal keyword stamps the current time as the event time.
type SchedulePayload struct {
	Message       string     `json:"message"`
	ScheduledTime *time.Time `json:"scheduled_time"`
	Type          string     `json:"type"`
}

// Summary implements task.Payload.
func (p SchedulePayload) Summary() string { return p.Message }

// Schedule handles reminders and calendar events.
type Schedule struct {
	now func() time.Time
}

// NewSchedule creates the schedule handler.
func NewSchedule(now func() time.Time) *Schedule {
	if now == nil {
		now = time.Now
	}
	return &Schedule{now: now}
}

// Intent implements task.Handler.
func (*Schedule) Intent() task.Intent { return task.IntentSchedule }

// Execute implements task.Handler. It always succeeds.
func (h *Schedule) Execute(_ context.Context, req task.Request) (task.Payload, error) {
	command := strings.ToLower(req.Text)
	p := SchedulePayload{
		Message: "Scheduled: " + command,
		Type:    string(task.IntentSchedule),
	}
	if phrase.New(command).ContainsAny(temporalKeywords) {
		at := h.now()
		p.ScheduledTime = &at
	}
	return p, nil
}
