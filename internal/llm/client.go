package llm

import (
	"context"
	"errors"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ErrEmptyResponse is returned when the provider answers without any text.
var ErrEmptyResponse = errors.New("llm: model returned empty content")

// Turn is one entry of a conversation history.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ChatModel continues a conversation given its full prior history.
type ChatModel interface {
	SendMessage(ctx context.Context, history []Turn, message string) (string, error)
}

// Generator answers a single stateless prompt.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}
