package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// sequenceInMemory — монотонный счётчик номеров заказов по годам.
type sequenceInMemory struct {
	mu       sync.Mutex
	counters map[int]int64
}

// NewOrderNumberSequence возвращает in-memory реализацию OrderNumberSequence.
func NewOrderNumberSequence() domain.OrderNumberSequence {
	return &sequenceInMemory{
		counters: make(map[int]int64),
	}
}

// Next возвращает следующее значение счётчика для года.
func (s *sequenceInMemory) Next(year int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[year]++
	return s.counters[year], nil
}

var _ domain.OrderNumberSequence = (*sequenceInMemory)(nil)
