package domain

import "time"

// InventoryKey идентифицирует складскую единицу: товар плюс опциональный вариант.
type InventoryKey struct {
	ProductID string
	VariantID string
}

// String возвращает канонический вид ключа; используется для упорядочивания
// блокировок при мультиключевых операциях.
func (k InventoryKey) String() string {
	if k.VariantID == "" {
		return k.ProductID
	}
	return k.ProductID + "/" + k.VariantID
}

// InventoryRecord — складская запись. Количество мутируется исключительно
// операциями InventoryLedger; никакой другой компонент не пишет в запись напрямую.
type InventoryRecord struct {
	ProductID string
	VariantID string
	// Quantity — остаток; может быть отрицательным только при AllowBackorder
	// (отрицательное значение означает глубину backorder — количество единиц в долгу).
	Quantity int64
	// LowStockThreshold — порог, ниже которого остаток считается низким.
	LowStockThreshold int64
	// AllowBackorder разрешает резерв сверх остатка.
	AllowBackorder bool
	// Tracked = false означает, что количество информационное и не блокирует заказ.
	Tracked bool

	// PriceMinor и Tags — административные атрибуты товара; цели bulk-операций
	// update_price и assign_tags. Цены существующих заказов они не меняют.
	PriceMinor int64
	Tags       []string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key возвращает складской ключ записи.
func (r InventoryRecord) Key() InventoryKey {
	return InventoryKey{ProductID: r.ProductID, VariantID: r.VariantID}
}

// LowStock сообщает, находится ли остаток на пороге или ниже.
func (r InventoryRecord) LowStock() bool {
	return r.Tracked && r.Quantity <= r.LowStockThreshold
}

// OutOfStock сообщает об исчерпании остатка.
func (r InventoryRecord) OutOfStock() bool {
	return r.Tracked && r.Quantity <= 0
}

// Backordered различает настоящий ноль и долг по backorder: отрицательный
// остаток записи с AllowBackorder — это единицы, которые должны клиентам.
func (r InventoryRecord) Backordered() bool {
	return r.AllowBackorder && r.Quantity < 0
}
