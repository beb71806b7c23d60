package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// inventoryRepositoryInMemory — in-memory реализация InventoryRepository.
type inventoryRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[domain.InventoryKey]domain.InventoryRecord
}

// NewInventoryRepository возвращает in-memory хранилище складских записей.
func NewInventoryRepository() domain.InventoryRepository {
	return &inventoryRepositoryInMemory{
		items: make(map[domain.InventoryKey]domain.InventoryRecord),
	}
}

// Get возвращает запись или ErrInventoryNotFound.
func (r *inventoryRepositoryInMemory) Get(key domain.InventoryKey) (domain.InventoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.items[key]
	if !ok {
		return domain.InventoryRecord{}, domain.ErrInventoryNotFound
	}
	return cloneRecord(rec), nil
}

// Put создаёт или замещает запись целиком (административный upsert).
func (r *inventoryRepositoryInMemory) Put(record domain.InventoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.items[record.Key()]; ok {
		record.Version = existing.Version + 1
		record.CreatedAt = existing.CreatedAt
	}
	record.UpdatedAt = time.Now().UTC()
	r.items[record.Key()] = cloneRecord(record)
	return nil
}

// Save перезаписывает запись, проверяя версию (optimistic locking).
func (r *inventoryRepositoryInMemory) Save(record domain.InventoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[record.Key()]
	if !ok {
		return domain.ErrInventoryNotFound
	}
	if current.Version != record.Version {
		return domain.ErrVersionConflict
	}
	record.Version++
	record.UpdatedAt = time.Now().UTC()
	r.items[record.Key()] = cloneRecord(record)
	return nil
}

// List возвращает все записи в детерминированном порядке ключей.
func (r *inventoryRepositoryInMemory) List() ([]domain.InventoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.InventoryRecord, 0, len(r.items))
	for _, rec := range r.items {
		result = append(result, cloneRecord(rec))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key().String() < result[j].Key().String()
	})
	return result, nil
}

func cloneRecord(rec domain.InventoryRecord) domain.InventoryRecord {
	cp := rec
	cp.Tags = append([]string(nil), rec.Tags...)
	return cp
}

var _ domain.InventoryRepository = (*inventoryRepositoryInMemory)(nil)
