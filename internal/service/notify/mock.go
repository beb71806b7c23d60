package notify

import (
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// MockSink — конфигурируемая заглушка NotificationSink для тестов.
type MockSink struct {
	NotifyErr error

	mu     sync.Mutex
	events []domain.Event
}

// NewMockSink возвращает mock с успешным сценарием по умолчанию.
func NewMockSink() *MockSink {
	return &MockSink{}
}

// Notify запоминает событие и возвращает заранее настроенную ошибку.
func (m *MockSink) Notify(event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.NotifyErr
}

// Events возвращает копию накопленных событий.
func (m *MockSink) Events() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event(nil), m.events...)
}

var _ domain.NotificationSink = (*MockSink)(nil)
