package llm

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// MockResponse is a canned response for the MockProvider.
type MockResponse struct {
	Content json.RawMessage
	Usage   Usage
	Err     error

	// Chunks are the increments GenerateStream delivers for this response.
	// When empty, the full Content is delivered as a single increment.
	Chunks []string

	// ErrAfter makes GenerateStream deliver that many chunks before
	// returning Err, simulating a mid-stream provider failure.
	// Zero with Err set fails before any output.
	ErrAfter int
}

// MockProvider is a deterministic Provider for testing.
// It returns canned responses in FIFO order and records all requests.
type MockProvider struct {
	mu        sync.Mutex
	responses []MockResponse
	Calls     []Request
}

// NewMockProvider creates a MockProvider with the given canned responses.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{responses: responses}
}

// Generate returns the next canned response or ErrProviderUnavailable if
// the queue is empty.
func (m *MockProvider) Generate(_ context.Context, req Request) (*Response, error) {
	resp, err := m.next(req)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil {
		return nil, resp.Err
	}

	return &Response{
		Content:    resp.Content,
		Usage:      resp.Usage,
		Model:      "mock",
		StopReason: "end",
	}, nil
}

// GenerateStream delivers the next canned response chunk by chunk.
func (m *MockProvider) GenerateStream(_ context.Context, req Request, fn StreamFunc) (*Response, error) {
	resp, err := m.next(req)
	if err != nil {
		return nil, err
	}
	if resp.Err != nil && resp.ErrAfter == 0 {
		return nil, resp.Err
	}

	chunks := resp.Chunks
	if len(chunks) == 0 && len(resp.Content) > 0 {
		chunks = []string{string(resp.Content)}
	}

	var text strings.Builder
	for i, c := range chunks {
		if resp.Err != nil && i == resp.ErrAfter {
			return nil, resp.Err
		}
		text.WriteString(c)
		if err := fn(c); err != nil {
			return nil, &ErrStreamAborted{Err: err}
		}
	}
	if resp.Err != nil && resp.ErrAfter >= len(chunks) {
		return nil, resp.Err
	}

	return &Response{
		Content:    json.RawMessage(text.String()),
		Usage:      resp.Usage,
		Model:      "mock",
		StopReason: "end",
	}, nil
}

// ModelID returns "mock".
func (m *MockProvider) ModelID() string {
	return "mock"
}

// AddResponse appends a canned response to the queue.
func (m *MockProvider) AddResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

// CallCount returns the number of requests made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

func (m *MockProvider) next(req Request) (MockResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)

	if len(m.responses) == 0 {
		return MockResponse{}, &ErrProviderUnavailable{Err: nil}
	}

	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}
