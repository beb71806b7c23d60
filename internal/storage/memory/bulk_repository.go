package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// bulkRepositoryInMemory — in-memory реализация BulkRepository.
type bulkRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.BulkOperation
}

// NewBulkRepository возвращает in-memory хранилище bulk-операций.
func NewBulkRepository() domain.BulkRepository {
	return &bulkRepositoryInMemory{
		items: make(map[string]domain.BulkOperation),
	}
}

// Create сохраняет новую операцию, если ID ещё не занят.
func (r *bulkRepositoryInMemory) Create(op domain.BulkOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[op.ID]; exists {
		return domain.ErrVersionConflict
	}
	r.items[op.ID] = cloneOperation(op)
	return nil
}

// Get возвращает операцию или ErrOperationNotFound.
func (r *bulkRepositoryInMemory) Get(id string) (domain.BulkOperation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.items[id]
	if !ok {
		return domain.BulkOperation{}, domain.ErrOperationNotFound
	}
	return cloneOperation(op), nil
}

// Save перезаписывает операцию, проверяя версию. Завершённые операции неизменяемы.
func (r *bulkRepositoryInMemory) Save(op domain.BulkOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[op.ID]
	if !ok {
		return domain.ErrOperationNotFound
	}
	if current.Finished() {
		return domain.ErrVersionConflict
	}
	if current.Version != op.Version {
		return domain.ErrVersionConflict
	}
	op.Version++
	r.items[op.ID] = cloneOperation(op)
	return nil
}

func cloneOperation(op domain.BulkOperation) domain.BulkOperation {
	cp := op
	cp.TargetIDs = append([]string(nil), op.TargetIDs...)
	cp.Errors = append([]domain.BulkError(nil), op.Errors...)
	cp.Changes.Tags = append([]string(nil), op.Changes.Tags...)
	cp.Changes.PriceMinor = cloneInt64(op.Changes.PriceMinor)
	cp.Changes.Quantity = cloneInt64(op.Changes.Quantity)
	cp.Changes.QuantityDelta = cloneInt64(op.Changes.QuantityDelta)
	cp.StartedAt = cloneTime(op.StartedAt)
	cp.FinishedAt = cloneTime(op.FinishedAt)
	return cp
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

var _ domain.BulkRepository = (*bulkRepositoryInMemory)(nil)
