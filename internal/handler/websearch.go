package handler

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nadzzz/qia/internal/search"
	"github.com/nadzzz/qia/internal/task"
)

// Searcher runs web searches.
type Searcher interface {
	Search(ctx context.Context, query string) (search.Result, error)
}

// SearchPayload is the result of a web search.
type SearchPayload struct {
	Message  string          `json:"message"`
	Results  json.RawMessage `json:"results"`
	Abstract string          `json:"abstract,omitempty"`
	Source   string          `json:"source,omitempty"`
	Type     string          `json:"type"`
}

// Summary implements task.Payload.
func (p SearchPayload) Summary() string { return p.Message }

// WebSearch forwards the command text to the search endpoint.
type WebSearch struct {
	searcher Searcher
}

// NewWebSearch creates the web search handler.
func NewWebSearch(s Searcher) *WebSearch {
	return &WebSearch{searcher: s}
}

// Intent implements task.Handler.
func (*WebSearch) Intent() task.Intent { return task.IntentWebSearch }

// Execute implements task.Handler.
func (h *WebSearch) Execute(ctx context.Context, req task.Request) (task.Payload, error) {
	if h.searcher == nil {
		return nil, &task.TransportError{Op: "web search", Err: errors.New("no search endpoint configured")}
	}
	res, err := h.searcher.Search(ctx, req.Text)
	if err != nil {
		return nil, &task.TransportError{Op: "web search", Err: err}
	}
	return SearchPayload{
		Message:  "Here's what I found",
		Results:  res.Raw,
		Abstract: res.Abstract,
		Source:   res.Source,
		Type:     string(task.IntentWebSearch),
	}, nil
}
