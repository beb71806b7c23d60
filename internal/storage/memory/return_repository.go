package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// returnRepositoryInMemory — in-memory реализация ReturnRepository.
type returnRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.ReturnRequest
}

// NewReturnRepository возвращает in-memory хранилище запросов на возврат.
func NewReturnRepository() domain.ReturnRepository {
	return &returnRepositoryInMemory{
		items: make(map[string]domain.ReturnRequest),
	}
}

// Create сохраняет новый запрос, если ID ещё не занят.
func (r *returnRepositoryInMemory) Create(req domain.ReturnRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[req.ID]; exists {
		return domain.ErrVersionConflict
	}
	r.items[req.ID] = cloneReturn(req)
	return nil
}

// Get возвращает запрос или ErrReturnNotFound.
func (r *returnRepositoryInMemory) Get(id string) (domain.ReturnRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req, ok := r.items[id]
	if !ok {
		return domain.ReturnRequest{}, domain.ErrReturnNotFound
	}
	return cloneReturn(req), nil
}

// ListByOrder возвращает запросы по заказу в порядке создания.
func (r *returnRepositoryInMemory) ListByOrder(orderID string) ([]domain.ReturnRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.ReturnRequest, 0)
	for _, req := range r.items {
		if req.OrderID == orderID {
			result = append(result, cloneReturn(req))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Save перезаписывает запрос без версионирования: единственный писатель —
// ReturnRefundProcessor, дополнительная сериализация не требуется.
func (r *returnRepositoryInMemory) Save(req domain.ReturnRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[req.ID]; !ok {
		return domain.ErrReturnNotFound
	}
	r.items[req.ID] = cloneReturn(req)
	return nil
}

func cloneReturn(req domain.ReturnRequest) domain.ReturnRequest {
	cp := req
	cp.Lines = append([]domain.ReturnLine(nil), req.Lines...)
	cp.ProcessedAt = cloneTime(req.ProcessedAt)
	return cp
}

var _ domain.ReturnRepository = (*returnRepositoryInMemory)(nil)
