package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type orderNumberSequence struct {
	db *sql.DB
}

// NewOrderNumberSequence создаёт PostgreSQL-реализацию счётчика номеров заказов.
func NewOrderNumberSequence(store *Store) domain.OrderNumberSequence {
	return &orderNumberSequence{db: store.DB()}
}

// Next атомарно наращивает счётчик года и возвращает новое значение.
// Upsert с RETURNING исключает гонки между репликами сервиса.
func (s *orderNumberSequence) Next(year int) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var n int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO order_number_seq (year, counter)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE
		SET counter = order_number_seq.counter + 1
		RETURNING counter
	`, year).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("advance order number sequence: %w", err)
	}
	return n, nil
}

var _ domain.OrderNumberSequence = (*orderNumberSequence)(nil)
