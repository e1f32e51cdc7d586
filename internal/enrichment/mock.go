package enrichment

import (
	"context"
	"sync"
)

// MockClient is a scripted LLMClient for tests and dry runs. Each call
// consumes the next response; the last one repeats.
type MockClient struct {
	mu        sync.Mutex
	responses []MockResponse
	prompts   []string
}

// MockResponse is one scripted answer.
type MockResponse struct {
	Content string
	Err     error
}

// NewMockClient creates a client that answers with responses in order.
func NewMockClient(responses ...MockResponse) *MockClient {
	return &MockClient{responses: responses}
}

func (m *MockClient) Complete(ctx context.Context, prompt string) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)
	if len(m.responses) == 0 {
		return nil, ErrEmptyResponse
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	if resp.Content == "" {
		return nil, ErrEmptyResponse
	}
	return &Completion{Content: resp.Content}, nil
}

// Prompts returns every prompt received so far.
func (m *MockClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
