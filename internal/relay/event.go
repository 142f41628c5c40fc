package relay

import "strings"

// Mensajes de error enviados al cliente. El detalle interno solo va al log.
const (
	msgPromptNotFound    = "Error: Prompt not found after multiple attempts."
	msgNoResponse        = "Error: No response generated within the time limit."
	msgInvalidResponseID = "Error: Invalid response ID format."
	msgResponseNotFound  = "Error: Response not found after waiting."
	msgInactivity        = "Error: Stream timed out due to inactivity."
	msgServerError       = "Error: Stream encountered a server error."
	msgSetupFailed       = "Error: Failed to set up stream."
	msgGenerationFailed  = "Error: Response generation failed."
)

// Event es el payload JSON de cada evento del stream.
type Event struct {
	Tokens      []string `json:"tokens"`
	Partial     bool     `json:"partial"`
	TotalTokens *int     `json:"totalTokens,omitempty"`
	Complete    bool     `json:"complete,omitempty"`
	Error       bool     `json:"error,omitempty"`
}

// Text concatena los fragmentos del evento.
func (e Event) Text() string {
	return strings.Join(e.Tokens, "")
}

func tokenEvent(tokens []string, total int, partial bool) Event {
	batch := make([]string, len(tokens))
	copy(batch, tokens)
	return Event{Tokens: batch, Partial: partial, TotalTokens: &total}
}

func completeEvent(total int) Event {
	return Event{Tokens: []string{}, Partial: false, Complete: true, TotalTokens: &total}
}

func errorEvent(msg string) Event {
	return Event{Tokens: []string{msg}, Partial: false, Error: true}
}
