package domain

import "time"

// Response acumula los tokens generados para un Prompt.
// Una vez Complete, Tokens no deberia crecer.
type Response struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Tokens       []string  `json:"tokens"`
	Complete     bool      `json:"complete"`
	Error        string    `json:"error,omitempty"`
	FullResponse string    `json:"full_response,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Failed indica si el worker reporto un error de generacion.
func (r Response) Failed() bool {
	return r.Error != ""
}
