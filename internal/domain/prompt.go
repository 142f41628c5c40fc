package domain

import "time"

// Prompt es un pedido del usuario a la espera de una respuesta generada.
type Prompt struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Message     string     `json:"message"`
	Processed   bool       `json:"processed"`
	Processing  bool       `json:"processing"`
	ResponseID  string     `json:"response_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Linked indica si el worker ya asocio una Response al prompt.
func (p Prompt) Linked() bool {
	return p.ResponseID != ""
}
