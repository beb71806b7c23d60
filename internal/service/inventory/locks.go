package inventory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// keyLocks выдаёт мьютекс на складской ключ: операции по разным ключам не
// блокируют друг друга, операции по одному ключу сериализуются.
type keyLocks struct {
	mu    sync.Mutex
	locks map[domain.InventoryKey]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{
		locks: make(map[domain.InventoryKey]*sync.Mutex),
	}
}

// get возвращает мьютекс ключа, создавая его при первом обращении.
func (kl *keyLocks) get(key domain.InventoryKey) *sync.Mutex {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	lock, ok := kl.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		kl.locks[key] = lock
	}
	return lock
}

// lockAll захватывает мьютексы всех ключей в глобальном порядке (по строковому
// представлению ключа), исключая взаимную блокировку при мультиключевых
// операциях. Возвращает функцию освобождения в обратном порядке.
func (kl *keyLocks) lockAll(keys []domain.InventoryKey) func() {
	ordered := append([]domain.InventoryKey(nil), keys...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].String() < ordered[j].String()
	})

	acquired := make([]*sync.Mutex, 0, len(ordered))
	for _, key := range ordered {
		lock := kl.get(key)
		lock.Lock()
		acquired = append(acquired, lock)
	}

	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
	}
}
