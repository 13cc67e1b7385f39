package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Message is an alert captured by MockProvider.
type Message struct {
	To   string
	Body string
}

// MockProvider logs alerts instead of sending them. Used in silent mode and tests.
type MockProvider struct {
	logger *slog.Logger
	mu     sync.Mutex
	sent   []Message
}

// NewMockProvider creates a new mock alert provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{
		logger: logger,
	}
}

// Send logs the alert instead of sending it.
func (m *MockProvider) Send(ctx context.Context, to, message string) error {
	m.logger.Info("MOCK ALERT",
		"to", to,
		"body_length", len(message))
	m.mu.Lock()
	m.sent = append(m.sent, Message{To: to, Body: message})
	m.mu.Unlock()
	return nil
}

// Sent returns the alerts captured so far.
func (m *MockProvider) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}
