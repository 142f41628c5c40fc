package domain

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatHistory guarda la conversacion reciente de un usuario con el mentor.
type ChatHistory struct {
	ID        string        `json:"_id,omitempty"`
	UserID    string        `json:"user_id"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Append agrega mensajes y conserva solo los ultimos limit (limit <= 0 no recorta).
func (h *ChatHistory) Append(limit int, msgs ...ChatMessage) {
	h.Messages = append(h.Messages, msgs...)
	if limit > 0 && len(h.Messages) > limit {
		trimmed := make([]ChatMessage, limit)
		copy(trimmed, h.Messages[len(h.Messages)-limit:])
		h.Messages = trimmed
	}
}

// Recent devuelve una copia de los ultimos n mensajes.
func (h ChatHistory) Recent(n int) []ChatMessage {
	if n <= 0 || len(h.Messages) == 0 {
		return nil
	}
	start := len(h.Messages) - n
	if start < 0 {
		start = 0
	}
	out := make([]ChatMessage, len(h.Messages)-start)
	copy(out, h.Messages[start:])
	return out
}
