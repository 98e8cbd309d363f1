package mock

import (
	"context"
	"sync"

	"github.com/garnizeh/medequip/pkg/models"
)

// ChatModel is a scripted language model. Fn takes precedence over Reply
// and Err when set.
type ChatModel struct {
	Reply string
	Err   error
	Fn    func(ctx context.Context, model string, messages []models.ChatMessage) (string, error)

	mu    sync.Mutex
	calls [][]models.ChatMessage
}

func (m *ChatModel) Chat(ctx context.Context, model string, messages []models.ChatMessage) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]models.ChatMessage(nil), messages...))
	m.mu.Unlock()

	if m.Fn != nil {
		return m.Fn(ctx, model, messages)
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Reply, nil
}

// Calls returns the transcripts the model was sent, oldest first.
func (m *ChatModel) Calls() [][]models.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]models.ChatMessage(nil), m.calls...)
}
