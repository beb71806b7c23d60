package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
)

const (
	timelineEventOrderCreated   = "OrderCreated"
	timelineEventStatusChanged  = "OrderStatusChanged"
	timelineEventOrderCancelled = "OrderCancelled"
	timelineEventTrackingAdded  = "TrackingAdded"
	timelineEventRefundRecorded = "RefundRecorded"
)

// ItemInput — позиция нового заказа. Цена не принимается от клиента: она
// берётся из авторитетной складской записи в момент создания.
type ItemInput struct {
	ProductID string
	VariantID string
	Qty       int32
}

// CreateOrderInput — входные данные createOrder. Скидка, доставка и налог —
// заранее вычисленные значения внешнего прайсинга.
type CreateOrderInput struct {
	Items         []ItemInput
	Shipping      domain.ShippingInfo
	CustomerEmail string
	DiscountMinor int64
	ShippingMinor int64
	TaxMinor      int64
}

// Store владеет заказами и машиной статусов. Единственный писатель
// Order.Status и меток переходов; склад мутирует только через Ledger.
type Store struct {
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	seq      domain.OrderNumberSequence
	ledger   *inventory.Ledger
	sink     domain.NotificationSink
	logger   *log.Entry
	metrics  *metrics.EngineMetrics
}

// NewStore создаёт рабочий экземпляр OrderStore.
func NewStore(
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	seq domain.OrderNumberSequence,
	ledger *inventory.Ledger,
	sink domain.NotificationSink,
	logger *log.Entry,
) *Store {
	if logger == nil {
		logger = log.New().WithField("component", "order-store")
	}
	return &Store{
		orders:   orders,
		timeline: timeline,
		seq:      seq,
		ledger:   ledger,
		sink:     sink,
		logger:   logger,
	}
}

// NewStoreWithMetrics создаёт экземпляр, публикующий метрики.
func NewStoreWithMetrics(
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	seq domain.OrderNumberSequence,
	ledger *inventory.Ledger,
	sink domain.NotificationSink,
	m *metrics.EngineMetrics,
	logger *log.Entry,
) *Store {
	s := NewStore(orders, timeline, seq, ledger, sink, logger)
	s.metrics = m
	return s
}

// CreateOrder валидирует позиции, резервирует остатки атомарно по всем строкам
// и сохраняет заказ со статусом pending. Любой отказ резервирования или
// сохранения не оставляет за собой частичного резерва.
func (s *Store) CreateOrder(input CreateOrderInput) (domain.Order, error) {
	if input.CustomerEmail == "" {
		return domain.Order{}, domain.ErrCustomerEmailRequired
	}
	if len(input.Items) == 0 {
		return domain.Order{}, domain.ErrItemsRequired
	}
	if input.DiscountMinor < 0 || input.ShippingMinor < 0 || input.TaxMinor < 0 {
		return domain.Order{}, domain.ErrItemPriceInvalid
	}

	now := time.Now().UTC()
	items := make([]domain.OrderItem, 0, len(input.Items))
	var subtotal int64
	for _, in := range input.Items {
		if in.ProductID == "" {
			return domain.Order{}, domain.ErrProductIDRequired
		}
		if in.Qty <= 0 {
			return domain.Order{}, domain.ErrItemQtyInvalid
		}

		key := domain.InventoryKey{ProductID: in.ProductID, VariantID: in.VariantID}
		rec, err := s.ledger.Get(key)
		if err != nil {
			return domain.Order{}, fmt.Errorf("resolve item %s: %w", key, err)
		}

		item := domain.OrderItem{
			ID:              uuid.NewString(),
			ProductID:       in.ProductID,
			VariantID:       in.VariantID,
			Qty:             in.Qty,
			UnitPriceMinor:  rec.PriceMinor,
			TotalPriceMinor: int64(in.Qty) * rec.PriceMinor,
			CreatedAt:       now,
		}
		items = append(items, item)
		subtotal += item.TotalPriceMinor
	}

	// Резерв по всем строкам атомарен: либо все, либо ни одной.
	if err := s.ledger.ReserveAll(items); err != nil {
		return domain.Order{}, err
	}

	number, err := s.nextOrderNumber(now)
	if err != nil {
		s.ledger.ReleaseAll(items)
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:            uuid.NewString(),
		OrderNumber:   number,
		CustomerEmail: input.CustomerEmail,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Items:         items,
		SubtotalMinor: subtotal,
		DiscountMinor: input.DiscountMinor,
		ShippingMinor: input.ShippingMinor,
		TaxMinor:      input.TaxMinor,
		TotalMinor:    subtotal - input.DiscountMinor + input.ShippingMinor + input.TaxMinor,
		Shipping:      input.Shipping,
		Version:       0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		s.ledger.ReleaseAll(items)
		return domain.Order{}, errs[0]
	}

	if err := s.orders.Create(order); err != nil {
		// Компенсация: заказ не сохранился, резерв обязан быть снят.
		s.ledger.ReleaseAll(items)
		return domain.Order{}, fmt.Errorf("persist order: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCreated()
	}
	s.appendTimeline(order.ID, timelineEventOrderCreated, "", now)
	s.notifyAsync(domain.EventOrderCreated, order.ID, map[string]interface{}{
		"order_number": order.OrderNumber,
		"total_minor":  order.TotalMinor,
	})

	return order, nil
}

// Get возвращает заказ по идентификатору.
func (s *Store) Get(orderID string) (domain.Order, error) {
	return s.orders.Get(orderID)
}

// ListByStatus возвращает заказы в указанном статусе.
func (s *Store) ListByStatus(status domain.OrderStatus, limit int) ([]domain.Order, error) {
	return s.orders.ListByStatus(status, limit)
}

// Timeline возвращает журнал событий заказа.
func (s *Store) Timeline(orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.orders.Get(orderID); err != nil {
		return nil, err
	}
	return s.timeline.List(orderID)
}

// Transition переводит заказ в новый статус согласно графу переходов.
// Повторный запрос уже действующего статуса — идемпотентный no-op: метка
// времени не перезаписывается и ошибки нет. Переход в cancelled снимает резерв
// по всем позициям заказа.
func (s *Store) Transition(orderID string, newStatus domain.OrderStatus) (domain.Order, error) {
	if !newStatus.Valid() {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, newStatus)
	}
	return s.transition(orderID, newStatus, "")
}

// CancelOrder — обёртка над переходом в cancelled с записью причины.
func (s *Store) CancelOrder(orderID, reason string) (domain.Order, error) {
	order, err := s.transition(orderID, domain.OrderStatusCancelled, reason)
	if err != nil {
		return domain.Order{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordOrderCancelled()
	}
	return order, nil
}

func (s *Store) transition(orderID string, newStatus domain.OrderStatus, reason string) (domain.Order, error) {
	noop := false
	order, err := s.commit(orderID, func(o *domain.Order) error {
		if o.Status == newStatus {
			// Идемпотентность при at-least-once доставке запроса.
			noop = true
			return nil
		}
		if !o.Status.CanTransitionTo(newStatus) {
			if s.metrics != nil {
				s.metrics.RecordTransitionDenied()
			}
			return fmt.Errorf("%w: %s -> %s for order %s", domain.ErrInvalidTransition, o.Status, newStatus, o.ID)
		}
		now := time.Now().UTC()
		o.Status = newStatus
		o.StampTransition(newStatus, now)
		if newStatus == domain.OrderStatusCancelled && reason != "" {
			o.CancelNote = reason
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	if noop {
		return order, nil
	}

	// Отмена снимает резерв ровно один раз — после успешной фиксации перехода.
	if newStatus == domain.OrderStatusCancelled {
		s.ledger.ReleaseAll(order.Items)
	}

	if s.metrics != nil {
		s.metrics.RecordTransition(string(newStatus))
	}

	eventType := timelineEventStatusChanged
	kind := domain.EventStatusChanged
	if newStatus == domain.OrderStatusCancelled {
		eventType = timelineEventOrderCancelled
		kind = domain.EventOrderCancelled
	}
	s.appendTimeline(order.ID, eventType, reason, order.UpdatedAt)
	s.notifyAsync(kind, order.ID, map[string]interface{}{
		"status": string(newStatus),
		"reason": reason,
	})

	return order, nil
}

// AddTracking прикрепляет трек-номер перевозчика. Разрешено только в статусах
// processing, shipped и out_for_delivery; статус заказа при этом не меняется —
// продвижение processing -> shipped каллер запрашивает отдельным переходом.
func (s *Store) AddTracking(orderID, trackingNumber, carrier string) (domain.Order, error) {
	if trackingNumber == "" || carrier == "" {
		return domain.Order{}, domain.ErrTrackingRequired
	}

	order, err := s.commit(orderID, func(o *domain.Order) error {
		switch o.Status {
		case domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusOutForDelivery:
		default:
			return fmt.Errorf("%w: tracking not allowed in status %s for order %s", domain.ErrInvalidTransition, o.Status, o.ID)
		}
		o.Shipping.TrackingNumber = trackingNumber
		o.Shipping.Carrier = carrier
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.appendTimeline(order.ID, timelineEventTrackingAdded, carrier, order.UpdatedAt)
	s.notifyAsync(domain.EventTrackingAdded, order.ID, map[string]interface{}{
		"tracking_number": trackingNumber,
		"carrier":         carrier,
	})
	return order, nil
}

// RecordRefund фиксирует одобренное возмещение: накапливает сумму, обновляет
// paymentStatus и при полном возмещении из delivered переводит заказ в refunded.
// Вызывается только ReturnRefundProcessor.
func (s *Store) RecordRefund(orderID string, amountMinor int64) (domain.Order, error) {
	if amountMinor <= 0 {
		return domain.Order{}, domain.ErrQuantityInvalid
	}

	fullyRefunded := false
	order, err := s.commit(orderID, func(o *domain.Order) error {
		o.RefundedMinor += amountMinor
		if o.RefundedMinor >= o.TotalMinor {
			o.PaymentStatus = domain.PaymentStatusRefunded
			if o.Status == domain.OrderStatusDelivered {
				now := time.Now().UTC()
				o.Status = domain.OrderStatusRefunded
				o.StampTransition(domain.OrderStatusRefunded, now)
				fullyRefunded = true
			}
		} else {
			o.PaymentStatus = domain.PaymentStatusPartiallyRefunded
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if fullyRefunded && s.metrics != nil {
		s.metrics.RecordTransition(string(domain.OrderStatusRefunded))
	}
	s.appendTimeline(order.ID, timelineEventRefundRecorded, "", order.UpdatedAt)
	return order, nil
}

// commit применяет мутацию к заказу через optimistic locking с ограниченным
// числом повторов при конфликте версий. Переходы по одному заказу фиксируются
// в порядке успешной валидации; заказы с разными ID не влияют друг на друга.
func (s *Store) commit(orderID string, mutate func(*domain.Order) error) (domain.Order, error) {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		order, err := s.orders.Get(orderID)
		if err != nil {
			return domain.Order{}, err
		}

		if err := mutate(&order); err != nil {
			return domain.Order{}, err
		}
		order.UpdatedAt = time.Now().UTC()

		if err := s.orders.Save(order); err != nil {
			if domain.IsVersionConflict(err) && attempt < maxRetries-1 {
				s.logger.WithFields(log.Fields{
					"order_id": orderID,
					"attempt":  attempt + 1,
				}).Warn("version conflict detected, retrying")
				time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			return domain.Order{}, err
		}

		order.Version++
		return order, nil
	}

	return domain.Order{}, domain.ErrVersionConflict
}

// nextOrderNumber выдаёт человекочитаемый номер: монотонный счётчик в пределах года.
func (s *Store) nextOrderNumber(now time.Time) (string, error) {
	n, err := s.seq.Next(now.Year())
	if err != nil {
		return "", fmt.Errorf("allocate order number: %w", err)
	}
	return fmt.Sprintf("ORD-%d-%06d", now.Year(), n), nil
}

func (s *Store) appendTimeline(orderID, eventType, reason string, occurred time.Time) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: occurred,
	}
	if err := s.timeline.Append(event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("append timeline event failed")
	}
}

// notifyAsync отправляет уведомление внешнему коллектору на отдельной
// горутине: не более одного вызова на зафиксированный переход, ошибки
// логируются и никогда не откатывают переход.
func (s *Store) notifyAsync(kind domain.EventKind, orderID string, payload map[string]interface{}) {
	if s.sink == nil {
		return
	}
	event := domain.Event{
		Kind:      kind,
		OrderID:   orderID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	go func() {
		if err := s.sink.Notify(event); err != nil {
			if s.metrics != nil {
				s.metrics.RecordNotification(true)
			}
			s.logger.WithError(err).WithFields(log.Fields{
				"order_id": orderID,
				"kind":     kind,
			}).Warn("notification sink rejected event")
			return
		}
		if s.metrics != nil {
			s.metrics.RecordNotification(false)
		}
	}()
}
