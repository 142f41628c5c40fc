package queue

import "time"

// PromptEvent avisa que hay un prompt nuevo pendiente de generacion.
// El store sigue siendo la fuente de verdad; el evento solo despierta al worker.
type PromptEvent struct {
	PromptID  string    `json:"promptId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}
