package inventory

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
)

// Ledger — единственный писатель складских записей. Все операции атомарны
// относительно одного ключа (product, variant); разные ключи не блокируют
// друг друга.
type Ledger struct {
	records domain.InventoryRepository
	locks   *keyLocks
	logger  *log.Entry
	metrics *metrics.EngineMetrics
}

// NewLedger создаёт рабочий экземпляр без метрик (для тестов и встраивания).
func NewLedger(records domain.InventoryRepository, logger *log.Entry) *Ledger {
	if logger == nil {
		logger = log.New().WithField("component", "inventory-ledger")
	}
	return &Ledger{
		records: records,
		locks:   newKeyLocks(),
		logger:  logger,
	}
}

// NewLedgerWithMetrics создаёт экземпляр, публикующий метрики.
func NewLedgerWithMetrics(records domain.InventoryRepository, m *metrics.EngineMetrics, logger *log.Entry) *Ledger {
	l := NewLedger(records, logger)
	l.metrics = m
	return l
}

// Get возвращает складскую запись по ключу.
func (l *Ledger) Get(key domain.InventoryKey) (domain.InventoryRecord, error) {
	return l.records.Get(key)
}

// Upsert создаёт или замещает запись целиком. Отрицательный остаток допускается
// только при разрешённом backorder.
func (l *Ledger) Upsert(record domain.InventoryRecord) error {
	if record.ProductID == "" {
		return domain.ErrProductIDRequired
	}
	if record.Quantity < 0 && !record.AllowBackorder {
		return domain.ErrNegativeQuantity
	}

	lock := l.locks.get(record.Key())
	lock.Lock()
	defer lock.Unlock()

	return l.records.Put(record)
}

// Reserve списывает qty единиц под заказ. Для неотслеживаемых записей резерв
// всегда успешен и не мутирует количество. Для отслеживаемых — уходит в минус
// только при разрешённом backorder, иначе ErrInsufficientInventory без изменений.
func (l *Ledger) Reserve(key domain.InventoryKey, qty int64) error {
	if qty <= 0 {
		return domain.ErrQuantityInvalid
	}

	lock := l.locks.get(key)
	lock.Lock()
	defer lock.Unlock()

	return l.reserveLocked(key, qty)
}

// reserveLocked выполняет резерв; вызывающий обязан держать мьютекс ключа.
func (l *Ledger) reserveLocked(key domain.InventoryKey, qty int64) error {
	rec, err := l.records.Get(key)
	if err != nil {
		return fmt.Errorf("reserve %s: %w", key, err)
	}

	if !rec.Tracked {
		return nil
	}
	if rec.Quantity < qty && !rec.AllowBackorder {
		if l.metrics != nil {
			l.metrics.RecordInsufficientStock()
		}
		return fmt.Errorf("reserve %s: %w", key, domain.ErrInsufficientInventory)
	}

	rec.Quantity -= qty
	if err := l.records.Save(rec); err != nil {
		return fmt.Errorf("persist reserve %s: %w", key, err)
	}

	if l.metrics != nil {
		l.metrics.RecordReservation()
	}
	if rec.Backordered() {
		l.logger.WithFields(log.Fields{
			"product_id": key.ProductID,
			"variant_id": key.VariantID,
			"debt":       -rec.Quantity,
		}).Info("reservation went into backorder")
	}
	return nil
}

// ReserveAll резервирует все позиции заказа атомарно: либо каждая строка
// зарезервирована, либо ни одна. Ключи блокируются в глобальном порядке,
// валидация выполняется до первой мутации, поэтому частичный резерв не
// просачивается наружу даже при отказе в середине списка.
func (l *Ledger) ReserveAll(items []domain.OrderItem) error {
	required, keys, err := aggregateByKey(items)
	if err != nil {
		return err
	}

	unlock := l.locks.lockAll(keys)
	defer unlock()

	// Первый проход: убеждаемся, что каждая строка резервируема.
	for _, key := range keys {
		rec, err := l.records.Get(key)
		if err != nil {
			return fmt.Errorf("reserve %s: %w", key, err)
		}
		if !rec.Tracked {
			continue
		}
		if rec.Quantity < required[key] && !rec.AllowBackorder {
			if l.metrics != nil {
				l.metrics.RecordInsufficientStock()
			}
			return fmt.Errorf("reserve %s: %w", key, domain.ErrInsufficientInventory)
		}
	}

	// Второй проход: применяем списания под теми же блокировками.
	for _, key := range keys {
		if err := l.reserveLocked(key, required[key]); err != nil {
			// Недостижимо после успешной валидации; оставляем как защиту от
			// ошибок хранилища.
			return err
		}
	}
	return nil
}

// Release возвращает qty единиц на склад (обратная операция к Reserve).
// Снятие резерва никогда не отклоняется; отрицательный backorder-остаток
// движется обратно к нулю.
func (l *Ledger) Release(key domain.InventoryKey, qty int64) error {
	if qty <= 0 {
		return domain.ErrQuantityInvalid
	}

	lock := l.locks.get(key)
	lock.Lock()
	defer lock.Unlock()

	rec, err := l.records.Get(key)
	if err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	if !rec.Tracked {
		return nil
	}

	rec.Quantity += qty
	if err := l.records.Save(rec); err != nil {
		return fmt.Errorf("persist release %s: %w", key, err)
	}

	if l.metrics != nil {
		l.metrics.RecordRelease()
	}
	return nil
}

// ReleaseAll снимает резерв по всем позициям заказа. Ошибки отдельных ключей
// логируются и не прерывают остальные снятия: release обязан быть максимально
// устойчивым, это компенсация.
func (l *Ledger) ReleaseAll(items []domain.OrderItem) {
	required, keys, err := aggregateByKey(items)
	if err != nil {
		l.logger.WithError(err).Warn("release skipped for invalid items")
		return
	}

	for _, key := range keys {
		if err := l.Release(key, required[key]); err != nil {
			l.logger.WithError(err).WithFields(log.Fields{
				"product_id": key.ProductID,
				"variant_id": key.VariantID,
			}).Warn("release failed")
		}
	}
}

// Adjust применяет административную корректировку остатка. Результат не может
// стать отрицательным для записей без backorder.
func (l *Ledger) Adjust(key domain.InventoryKey, delta int64) error {
	lock := l.locks.get(key)
	lock.Lock()
	defer lock.Unlock()

	rec, err := l.records.Get(key)
	if err != nil {
		return fmt.Errorf("adjust %s: %w", key, err)
	}
	next := rec.Quantity + delta
	if next < 0 && !rec.AllowBackorder {
		return fmt.Errorf("adjust %s: %w", key, domain.ErrNegativeQuantity)
	}

	rec.Quantity = next
	if err := l.records.Save(rec); err != nil {
		return fmt.Errorf("persist adjust %s: %w", key, err)
	}

	if l.metrics != nil {
		l.metrics.RecordAdjustment()
	}
	return nil
}

// SetQuantity выставляет абсолютный остаток. Отрицательное значение
// отклоняется, если для ключа не разрешён backorder.
func (l *Ledger) SetQuantity(key domain.InventoryKey, qty int64) error {
	lock := l.locks.get(key)
	lock.Lock()
	defer lock.Unlock()

	rec, err := l.records.Get(key)
	if err != nil {
		return fmt.Errorf("set quantity %s: %w", key, err)
	}
	if qty < 0 && !rec.AllowBackorder {
		return fmt.Errorf("set quantity %s: %w", key, domain.ErrNegativeQuantity)
	}

	rec.Quantity = qty
	if err := l.records.Save(rec); err != nil {
		return fmt.Errorf("persist set quantity %s: %w", key, err)
	}

	if l.metrics != nil {
		l.metrics.RecordAdjustment()
	}
	return nil
}

// SetPrice выставляет административную цену товара. Цены существующих заказов
// зафиксированы при создании и не пересчитываются.
func (l *Ledger) SetPrice(key domain.InventoryKey, priceMinor int64) error {
	if priceMinor < 0 {
		return domain.ErrItemPriceInvalid
	}

	lock := l.locks.get(key)
	lock.Lock()
	defer lock.Unlock()

	rec, err := l.records.Get(key)
	if err != nil {
		return fmt.Errorf("set price %s: %w", key, err)
	}
	rec.PriceMinor = priceMinor
	if err := l.records.Save(rec); err != nil {
		return fmt.Errorf("persist set price %s: %w", key, err)
	}
	return nil
}

// AssignTags замещает набор тегов/категорий товара.
func (l *Ledger) AssignTags(key domain.InventoryKey, tags []string) error {
	lock := l.locks.get(key)
	lock.Lock()
	defer lock.Unlock()

	rec, err := l.records.Get(key)
	if err != nil {
		return fmt.Errorf("assign tags %s: %w", key, err)
	}
	rec.Tags = append([]string(nil), tags...)
	if err := l.records.Save(rec); err != nil {
		return fmt.Errorf("persist assign tags %s: %w", key, err)
	}
	return nil
}

// IsLowStock сообщает, находится ли остаток на пороге или ниже.
func (l *Ledger) IsLowStock(key domain.InventoryKey) (bool, error) {
	rec, err := l.records.Get(key)
	if err != nil {
		return false, err
	}
	return rec.LowStock(), nil
}

// IsOutOfStock сообщает об исчерпании остатка.
func (l *Ledger) IsOutOfStock(key domain.InventoryKey) (bool, error) {
	rec, err := l.records.Get(key)
	if err != nil {
		return false, err
	}
	return rec.OutOfStock(), nil
}

// LowStockReport возвращает записи с низким остатком. Долг по backorder
// выделяется отдельно от настоящего стокаута на уровне полей записи.
func (l *Ledger) LowStockReport() ([]domain.InventoryRecord, error) {
	all, err := l.records.List()
	if err != nil {
		return nil, err
	}
	low := make([]domain.InventoryRecord, 0)
	for _, rec := range all {
		if rec.LowStock() {
			low = append(low, rec)
		}
	}
	return low, nil
}

// aggregateByKey суммирует количества позиций по складскому ключу и возвращает
// детерминированно упорядоченный список ключей.
func aggregateByKey(items []domain.OrderItem) (map[domain.InventoryKey]int64, []domain.InventoryKey, error) {
	if len(items) == 0 {
		return nil, nil, domain.ErrItemsRequired
	}

	required := make(map[domain.InventoryKey]int64, len(items))
	keys := make([]domain.InventoryKey, 0, len(items))
	for _, item := range items {
		if item.Qty <= 0 {
			return nil, nil, domain.ErrItemQtyInvalid
		}
		key := item.InventoryKeyOf()
		if _, seen := required[key]; !seen {
			keys = append(keys, key)
		}
		required[key] += int64(item.Qty)
	}
	return required, keys, nil
}
