package llm

import (
	"context"
	"strings"
	"sync"
)

// MockClient permite tests sin llamar a un LLM real. StreamChat entrega Chunks
// en orden (o Response como un unico fragmento) y luego devuelve Err.
type MockClient struct {
	Response string
	Chunks   []string
	Err      error

	mu       sync.Mutex
	Requests [][]Message
}

func (m *MockClient) StreamChat(ctx context.Context, messages []Message, onDelta func(string) error) (string, error) {
	m.record(messages)
	chunks := m.Chunks
	if len(chunks) == 0 && m.Response != "" {
		chunks = []string{m.Response}
	}
	var full strings.Builder
	for _, ch := range chunks {
		if err := ctx.Err(); err != nil {
			return full.String(), err
		}
		full.WriteString(ch)
		if onDelta != nil {
			if err := onDelta(ch); err != nil {
				return full.String(), err
			}
		}
	}
	if m.Err != nil {
		return full.String(), m.Err
	}
	return full.String(), nil
}

func (m *MockClient) record(messages []Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Message, len(messages))
	copy(cp, messages)
	m.Requests = append(m.Requests, cp)
}

// LastRequest devuelve los mensajes de la ultima llamada.
func (m *MockClient) LastRequest() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return nil
	}
	return m.Requests[len(m.Requests)-1]
}
