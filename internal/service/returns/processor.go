package returns

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/orders"
)

// LineInput — одна возвращаемая позиция из запроса клиента.
type LineInput struct {
	OrderItemID string
	Qty         int32
	Reason      string
	Condition   string
}

// CreateInput — входные данные запроса на возврат. Сумма возмещения клиентом
// не передаётся: она выводится из зафиксированных цен заказа.
type CreateInput struct {
	OrderID string
	Type    domain.ReturnType
	Lines   []LineInput
	Reason  string
}

// Decision — решение оператора по запросу на возврат.
type Decision struct {
	Approve bool
	// AmountMinor переопределяет сумму возмещения; nil означает запрошенную
	// сумму. Значение сверх запрошенной отклоняется.
	AmountMinor *int64
	Note        string
}

// Processor — единственный писатель ReturnRequest. Возврат средств и
// восстановление остатков проходят только через OrderStore и Ledger.
type Processor struct {
	returns domain.ReturnRepository
	store   *orders.Store
	ledger  *inventory.Ledger
	sink    domain.NotificationSink
	logger  *log.Entry
	metrics *metrics.EngineMetrics
}

// NewProcessor создаёт рабочий экземпляр ReturnRefundProcessor.
func NewProcessor(
	returns domain.ReturnRepository,
	store *orders.Store,
	ledger *inventory.Ledger,
	sink domain.NotificationSink,
	logger *log.Entry,
) *Processor {
	if logger == nil {
		logger = log.New().WithField("component", "return-processor")
	}
	return &Processor{
		returns: returns,
		store:   store,
		ledger:  ledger,
		sink:    sink,
		logger:  logger,
	}
}

// NewProcessorWithMetrics создаёт экземпляр, публикующий метрики.
func NewProcessorWithMetrics(
	returns domain.ReturnRepository,
	store *orders.Store,
	ledger *inventory.Ledger,
	sink domain.NotificationSink,
	m *metrics.EngineMetrics,
	logger *log.Entry,
) *Processor {
	p := NewProcessor(returns, store, ledger, sink, logger)
	p.metrics = m
	return p
}

// Create регистрирует запрос на возврат по доставленному заказу.
// Количество по каждой позиции ограничено исходным количеством за вычетом
// единиц, уже покрытых ранее созданными неотклонёнными запросами.
func (p *Processor) Create(input CreateInput) (domain.ReturnRequest, error) {
	if !input.Type.Valid() {
		return domain.ReturnRequest{}, fmt.Errorf("%w: unknown return type %q", domain.ErrUnknownOperationType, input.Type)
	}
	if len(input.Lines) == 0 {
		return domain.ReturnRequest{}, domain.ErrItemsRequired
	}

	order, err := p.store.Get(input.OrderID)
	if err != nil {
		return domain.ReturnRequest{}, err
	}
	switch order.Status {
	case domain.OrderStatusDelivered, domain.OrderStatusReturned:
	default:
		return domain.ReturnRequest{}, fmt.Errorf("%w: returns require a delivered order, got %s", domain.ErrInvalidTransition, order.Status)
	}

	prior, err := p.returns.ListByOrder(order.ID)
	if err != nil {
		return domain.ReturnRequest{}, fmt.Errorf("list prior returns: %w", err)
	}

	now := time.Now().UTC()
	req := domain.ReturnRequest{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		Type:      input.Type,
		Status:    domain.ReturnStatusPending,
		Reason:    input.Reason,
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, line := range input.Lines {
		if line.Qty <= 0 {
			return domain.ReturnRequest{}, domain.ErrQuantityInvalid
		}
		item, ok := order.Item(line.OrderItemID)
		if !ok {
			return domain.ReturnRequest{}, fmt.Errorf("%w: %s", domain.ErrOrderItemNotFound, line.OrderItemID)
		}

		available := item.Qty - coveredQty(prior, line.OrderItemID)
		if line.Qty > available {
			return domain.ReturnRequest{}, fmt.Errorf("%w: item %s has %d returnable units", domain.ErrReturnQtyExceeded, line.OrderItemID, available)
		}

		req.Lines = append(req.Lines, domain.ReturnLine{
			OrderItemID: line.OrderItemID,
			Qty:         line.Qty,
			Reason:      line.Reason,
			Condition:   line.Condition,
		})
		req.RequestedAmountMinor += int64(line.Qty) * item.UnitPriceMinor
	}

	if err := p.returns.Create(req); err != nil {
		return domain.ReturnRequest{}, fmt.Errorf("persist return request: %w", err)
	}

	if p.metrics != nil {
		p.metrics.RecordReturnRequested()
	}
	p.logger.WithFields(log.Fields{
		"return_id": req.ID,
		"order_id":  req.OrderID,
		"type":      req.Type,
	}).Info("return request created")

	return req, nil
}

// Get возвращает запрос на возврат по идентификатору.
func (p *Processor) Get(returnID string) (domain.ReturnRequest, error) {
	return p.returns.Get(returnID)
}

// ListByOrder возвращает все запросы на возврат по заказу.
func (p *Processor) ListByOrder(orderID string) ([]domain.ReturnRequest, error) {
	return p.returns.ListByOrder(orderID)
}

// Process применяет решение оператора к запросу в статусе pending.
// Одобрение типов return и refund возвращает единицы на склад; тип refund
// дополнительно фиксирует возмещение в заказе. Отклонение не меняет ни склад,
// ни заказ. Повторная обработка возвращает ErrAlreadyProcessed.
func (p *Processor) Process(returnID string, decision Decision) (domain.ReturnRequest, error) {
	req, err := p.returns.Get(returnID)
	if err != nil {
		return domain.ReturnRequest{}, err
	}
	if req.Processed() {
		return domain.ReturnRequest{}, fmt.Errorf("%w: return %s is %s", domain.ErrAlreadyProcessed, req.ID, req.Status)
	}

	now := time.Now().UTC()
	if !decision.Approve {
		req.Status = domain.ReturnStatusRejected
		req.ApprovedAmountMinor = 0
		req.ProcessedAt = &now
		req.UpdatedAt = now
		if decision.Note != "" {
			req.Reason = decision.Note
		}
		if err := p.returns.Save(req); err != nil {
			return domain.ReturnRequest{}, fmt.Errorf("persist rejection: %w", err)
		}
		if p.metrics != nil {
			p.metrics.RecordReturnRejected()
		}
		p.notify(req, "rejected")
		return req, nil
	}

	amount := req.RequestedAmountMinor
	if decision.AmountMinor != nil {
		if *decision.AmountMinor > req.RequestedAmountMinor || *decision.AmountMinor < 0 {
			return domain.ReturnRequest{}, fmt.Errorf("%w: approved %d, requested %d", domain.ErrAmountExceedsRequested, *decision.AmountMinor, req.RequestedAmountMinor)
		}
		amount = *decision.AmountMinor
	}

	order, err := p.store.Get(req.OrderID)
	if err != nil {
		return domain.ReturnRequest{}, err
	}

	req.Status = domain.ReturnStatusApproved
	req.ApprovedAmountMinor = amount
	req.ProcessedAt = &now
	req.UpdatedAt = now
	if err := p.returns.Save(req); err != nil {
		return domain.ReturnRequest{}, fmt.Errorf("persist approval: %w", err)
	}

	// Товар возвращается на склад для return и refund; exchange резервирует
	// замену отдельным заказом и остатки не трогает.
	if req.Type == domain.ReturnTypeReturn || req.Type == domain.ReturnTypeRefund {
		p.restock(order, req)
	}

	switch req.Type {
	case domain.ReturnTypeRefund:
		if amount > 0 {
			if _, err := p.store.RecordRefund(order.ID, amount); err != nil {
				p.logger.WithError(err).WithField("return_id", req.ID).Error("record refund failed")
			}
		}
	case domain.ReturnTypeReturn:
		if _, err := p.store.Transition(order.ID, domain.OrderStatusReturned); err != nil {
			p.logger.WithError(err).WithField("return_id", req.ID).Warn("mark order returned failed")
		}
	}

	if p.metrics != nil {
		p.metrics.RecordReturnApproved()
	}
	p.notify(req, "approved")
	return req, nil
}

// Complete переводит одобренный запрос в completed. Движение по статусам
// только вперёд; завершённый или отклонённый запрос менять нельзя.
func (p *Processor) Complete(returnID string) (domain.ReturnRequest, error) {
	req, err := p.returns.Get(returnID)
	if err != nil {
		return domain.ReturnRequest{}, err
	}
	if !req.Status.CanTransitionTo(domain.ReturnStatusCompleted) {
		return domain.ReturnRequest{}, fmt.Errorf("%w: %s -> %s for return %s", domain.ErrInvalidTransition, req.Status, domain.ReturnStatusCompleted, req.ID)
	}

	req.Status = domain.ReturnStatusCompleted
	req.UpdatedAt = time.Now().UTC()
	if err := p.returns.Save(req); err != nil {
		return domain.ReturnRequest{}, fmt.Errorf("persist completion: %w", err)
	}
	return req, nil
}

// restock возвращает одобренные единицы на склад. Release не отклоняет запись,
// поэтому ошибки здесь означают отсутствие складской записи; они логируются,
// но не откатывают уже принятое решение.
func (p *Processor) restock(order domain.Order, req domain.ReturnRequest) {
	for _, line := range req.Lines {
		item, ok := order.Item(line.OrderItemID)
		if !ok {
			continue
		}
		if err := p.ledger.Release(item.InventoryKeyOf(), int64(line.Qty)); err != nil {
			p.logger.WithError(err).WithFields(log.Fields{
				"return_id": req.ID,
				"key":       item.InventoryKeyOf().String(),
			}).Error("restock failed")
		}
	}
}

func (p *Processor) notify(req domain.ReturnRequest, resolution string) {
	if p.sink == nil {
		return
	}
	event := domain.Event{
		Kind:    domain.EventReturnResolved,
		OrderID: req.OrderID,
		Payload: map[string]interface{}{
			"return_id":             req.ID,
			"type":                  string(req.Type),
			"resolution":            resolution,
			"approved_amount_minor": req.ApprovedAmountMinor,
		},
		Timestamp: time.Now().UTC(),
	}
	go func() {
		if err := p.sink.Notify(event); err != nil {
			if p.metrics != nil {
				p.metrics.RecordNotification(true)
			}
			p.logger.WithError(err).WithField("return_id", req.ID).Warn("notification sink rejected event")
			return
		}
		if p.metrics != nil {
			p.metrics.RecordNotification(false)
		}
	}()
}

// coveredQty суммирует единицы позиции, покрытые неотклонёнными запросами.
func coveredQty(prior []domain.ReturnRequest, orderItemID string) int32 {
	var total int32
	for _, r := range prior {
		if r.Status == domain.ReturnStatusRejected {
			continue
		}
		total += r.QtyForItem(orderItemID)
	}
	return total
}
