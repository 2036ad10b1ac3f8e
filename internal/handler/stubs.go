package handler

import (
	"context"

	"github.com/nadzzz/qia/internal/task"
)

// CodeAssist acknowledges code assistance requests.
type CodeAssist struct{}

// Intent implements task.Handler.
func (CodeAssist) Intent() task.Intent { return task.IntentCodeAssist }

// Execute implements task.Handler.
func (CodeAssist) Execute(context.Context, task.Request) (task.Payload, error) {
	return AckPayload{Message: "Code assist task handled"}, nil
}

// General acknowledges general queries.
type General struct{}

// Intent implements task.Handler.
func (General) Intent() task.Intent { return task.IntentGeneral }

// Execute implements task.Handler.
func (General) Execute(context.Context, task.Request) (task.Payload, error) {
	return AckPayload{Message: "General task handled"}, nil
}
