package domain

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// ListByStatus возвращает заказы в указанном статусе (все при пустом статусе)
	// с опциональным ограничением на количество.
	ListByStatus(status OrderStatus, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking:
	// при несовпадении версии возвращается ErrVersionConflict.
	Save(order Order) error
}

// InventoryRepository описывает требования к хранилищу складских записей.
type InventoryRepository interface {
	// Get возвращает запись по ключу или ErrInventoryNotFound.
	Get(key InventoryKey) (InventoryRecord, error)
	// Put создаёт или полностью замещает запись (административный upsert).
	Put(record InventoryRecord) error
	// Save применяет обновления с проверкой версии.
	Save(record InventoryRecord) error
	// List возвращает все записи (для отчётов о низких остатках).
	List() ([]InventoryRecord, error)
}

// ReturnRepository описывает требования к хранилищу запросов на возврат.
type ReturnRepository interface {
	Create(req ReturnRequest) error
	Get(id string) (ReturnRequest, error)
	// ListByOrder возвращает все запросы по заказу; нужен для подсчёта уже
	// покрытых возвратами единиц.
	ListByOrder(orderID string) ([]ReturnRequest, error)
	Save(req ReturnRequest) error
}

// BulkRepository описывает требования к хранилищу bulk-операций.
type BulkRepository interface {
	Create(op BulkOperation) error
	Get(id string) (BulkOperation, error)
	Save(op BulkOperation) error
}

// OrderNumberSequence выдаёт монотонный счётчик номеров заказов в пределах года.
type OrderNumberSequence interface {
	// Next возвращает следующее значение счётчика для указанного года.
	Next(year int) (int64, error)
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(orderID string) ([]TimelineEvent, error)
}
