package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, резерв выполнен, подтверждения ещё нет.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — заказ подтверждён и принят в работу.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing — заказ комплектуется.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан перевозчику.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusOutForDelivery — заказ на последней миле.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusDelivered — заказ доставлен; единственная точка входа для возвратов.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён до завершения цикла; резерв снят.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusReturned — по заказу оформлен возврат позиций.
	OrderStatusReturned OrderStatus = "returned"
	// OrderStatusRefunded — по заказу выполнен полный возврат средств.
	OrderStatusRefunded OrderStatus = "refunded"
)

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// statusGraph кодирует граф переходов как данные: статус -> множество достижимых статусов.
// cancelled достижим из любого нетерминального статуса; returned/refunded — только из delivered.
var statusGraph = map[OrderStatus]map[OrderStatus]struct{}{
	OrderStatusPending:        {OrderStatusConfirmed: {}, OrderStatusCancelled: {}},
	OrderStatusConfirmed:      {OrderStatusProcessing: {}, OrderStatusCancelled: {}},
	OrderStatusProcessing:     {OrderStatusShipped: {}, OrderStatusCancelled: {}},
	OrderStatusShipped:        {OrderStatusOutForDelivery: {}, OrderStatusCancelled: {}},
	OrderStatusOutForDelivery: {OrderStatusDelivered: {}, OrderStatusCancelled: {}},
	OrderStatusDelivered:      {OrderStatusReturned: {}, OrderStatusRefunded: {}},
	OrderStatusCancelled:      {},
	OrderStatusReturned:       {},
	OrderStatusRefunded:       {},
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	_, ok := statusGraph[s]
	return ok
}

// CanTransitionTo проверяет достижимость next из s по графу переходов.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	_, ok := statusGraph[s][next]
	return ok
}

// Terminal сообщает, является ли статус терминальным.
// returned терминален для покрытых им позиций, но сам заказ остаётся читаемым.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// OrderItem представляет одну позицию заказа. Позиции неизменяемы после создания заказа:
// изменение цены товара задним числом никогда не затрагивает исторические заказы.
type OrderItem struct {
	// ID позиции нужен для однозначной идентификации в возвратах.
	ID string
	// ProductID — внешний идентификатор товара.
	ProductID string
	// VariantID — опциональный идентификатор варианта товара.
	VariantID string
	// Qty — количество единиц товара.
	Qty int32
	// UnitPriceMinor — цена за единицу в минимальных денежных единицах.
	UnitPriceMinor int64
	// TotalPriceMinor = Qty * UnitPriceMinor, фиксируется при создании.
	TotalPriceMinor int64
	// CreatedAt фиксирует момент добавления позиции в заказ.
	CreatedAt time.Time
}

// InventoryKeyOf возвращает складской ключ позиции.
func (i OrderItem) InventoryKeyOf() InventoryKey {
	return InventoryKey{ProductID: i.ProductID, VariantID: i.VariantID}
}

// ShippingInfo содержит адрес доставки и данные перевозчика.
type ShippingInfo struct {
	Name           string
	AddressLine    string
	City           string
	Country        string
	PostalCode     string
	TrackingNumber string
	Carrier        string
}

// Order агрегирует состояние заказа, его позиции и временные метки переходов.
type Order struct {
	ID            string
	OrderNumber   string
	CustomerEmail string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	Items         []OrderItem

	SubtotalMinor int64
	DiscountMinor int64
	ShippingMinor int64
	TaxMinor      int64
	TotalMinor    int64
	// RefundedMinor накапливает суммы одобренных возмещений по заказу.
	RefundedMinor int64

	Shipping   ShippingInfo
	CancelNote string

	// Метки переходов устанавливаются ровно один раз; повторная установка — no-op.
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time
	RefundedAt  *time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerEmail == "" {
		errs = append(errs, ErrCustomerEmailRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}

	var subtotal int64
	for _, item := range o.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrProductIDRequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		subtotal += int64(item.Qty) * item.UnitPriceMinor
	}
	if subtotal != o.SubtotalMinor {
		errs = append(errs, ErrTotalMismatch)
	}
	// Денежное тождество должно выполняться в любой точке жизненного цикла.
	if o.TotalMinor != o.SubtotalMinor-o.DiscountMinor+o.ShippingMinor+o.TaxMinor {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}

// Item находит позицию по её идентификатору.
func (o *Order) Item(itemID string) (OrderItem, bool) {
	for _, it := range o.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return OrderItem{}, false
}

// StampTransition устанавливает метку времени, соответствующую статусу, если она
// ещё не установлена. Повторная установка молча игнорируется (идемпотентность
// при at-least-once доставке запросов на переход).
func (o *Order) StampTransition(status OrderStatus, ts time.Time) {
	switch status {
	case OrderStatusShipped:
		if o.ShippedAt == nil {
			o.ShippedAt = &ts
		}
	case OrderStatusDelivered:
		if o.DeliveredAt == nil {
			o.DeliveredAt = &ts
		}
	case OrderStatusCancelled:
		if o.CancelledAt == nil {
			o.CancelledAt = &ts
		}
	case OrderStatusRefunded:
		if o.RefundedAt == nil {
			o.RefundedAt = &ts
		}
	}
}
