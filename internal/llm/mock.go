package llm

import (
	"context"
	"sync"
)

// MockClient permite tests sin llamar a un LLM real.
type MockClient struct {
	mu        sync.Mutex
	Response  string
	Responses []string
	Err       error
	Embedding []float32
	Calls     [][]Message
}

func (m *MockClient) Complete(_ context.Context, messages []Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, append([]Message(nil), messages...))
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) > 0 {
		resp := m.Responses[0]
		m.Responses = m.Responses[1:]
		return resp, nil
	}
	return m.Response, nil
}

func (m *MockClient) Generate(ctx context.Context, prompt string) (string, error) {
	return m.Complete(ctx, []Message{{Role: "user", Content: prompt}})
}

func (m *MockClient) CreateEmbedding(context.Context, string) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Embedding, nil
}

// CallCount devuelve cuantas llamadas de completion se hicieron.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
