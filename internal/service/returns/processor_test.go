package returns_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/notify"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/orders"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/returns"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

type fixture struct {
	processor *returns.Processor
	store     *orders.Store
	repo      domain.InventoryRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	entry := logger.WithField("component", "test")

	invRepo := memory.NewInventoryRepository()
	require.NoError(t, invRepo.Put(domain.InventoryRecord{
		ProductID: "p1", Quantity: 10, Tracked: true, PriceMinor: 250,
	}))

	ledger := inventory.NewLedger(invRepo, entry)
	store := orders.NewStore(
		memory.NewOrderRepository(),
		memory.NewTimelineRepository(),
		memory.NewOrderNumberSequence(),
		ledger,
		notify.NewMockSink(),
		entry,
	)
	processor := returns.NewProcessor(
		memory.NewReturnRepository(),
		store,
		ledger,
		notify.NewMockSink(),
		entry,
	)
	return &fixture{processor: processor, store: store, repo: invRepo}
}

// deliveredOrder создаёт заказ на qty единиц p1 и доводит его до delivered.
func (f *fixture) deliveredOrder(t *testing.T, qty int32) domain.Order {
	t.Helper()

	order, err := f.store.CreateOrder(orders.CreateOrderInput{
		Items:         []orders.ItemInput{{ProductID: "p1", Qty: qty}},
		CustomerEmail: "buyer@example.com",
	})
	require.NoError(t, err)

	for _, status := range []domain.OrderStatus{
		domain.OrderStatusConfirmed, domain.OrderStatusProcessing, domain.OrderStatusShipped,
		domain.OrderStatusOutForDelivery, domain.OrderStatusDelivered,
	} {
		order, err = f.store.Transition(order.ID, status)
		require.NoError(t, err)
	}
	return order
}

func (f *fixture) quantity(t *testing.T) int64 {
	t.Helper()
	rec, err := f.repo.Get(domain.InventoryKey{ProductID: "p1"})
	require.NoError(t, err)
	return rec.Quantity
}

func TestCreate_RequiresDeliveredOrder(t *testing.T) {
	f := newFixture(t)
	order, err := f.store.CreateOrder(orders.CreateOrderInput{
		Items:         []orders.ItemInput{{ProductID: "p1", Qty: 1}},
		CustomerEmail: "buyer@example.com",
	})
	require.NoError(t, err)

	_, err = f.processor.Create(returns.CreateInput{
		OrderID: order.ID,
		Type:    domain.ReturnTypeReturn,
		Lines:   []returns.LineInput{{OrderItemID: order.Items[0].ID, Qty: 1}},
	})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCreate_RequestedAmountFromRecordedPrices(t *testing.T) {
	f := newFixture(t)
	order := f.deliveredOrder(t, 2)

	req, err := f.processor.Create(returns.CreateInput{
		OrderID: order.ID,
		Type:    domain.ReturnTypeRefund,
		Lines:   []returns.LineInput{{OrderItemID: order.Items[0].ID, Qty: 2, Reason: "damaged"}},
	})
	require.NoError(t, err)
	require.Equal(t, domain.ReturnStatusPending, req.Status)
	require.EqualValues(t, 500, req.RequestedAmountMinor)
	require.EqualValues(t, 0, req.ApprovedAmountMinor)
}

func TestCreate_QtyBoundedByCoverage(t *testing.T) {
	f := newFixture(t)
	order := f.deliveredOrder(t, 2)
	itemID := order.Items[0].ID

	// Первый запрос покрывает одну единицу из двух.
	_, err := f.processor.Create(returns.CreateInput{
		OrderID: order.ID,
		Type:    domain.ReturnTypeReturn,
		Lines:   []returns.LineInput{{OrderItemID: itemID, Qty: 1}},
	})
	require.NoError(t, err)

	// Вторая единица ещё доступна.
	_, err = f.processor.Create(returns.CreateInput{
		OrderID: order.ID,
		Type:    domain.ReturnTypeReturn,
		Lines:   []returns.LineInput{{OrderItemID: itemID, Qty: 2}},
	})
	require.ErrorIs(t, err, domain.ErrReturnQtyExceeded)

	_, err = f.processor.Create(returns.CreateInput{
		OrderID: order.ID,
		Type:    domain.ReturnTypeReturn,
		Lines:   []returns.LineInput{{OrderItemID: itemID, Qty: 1}},
	})
	require.NoError(t, err)
}

func TestCreate_RejectedRequestsFreeCoverage(t *testing.T) {
	f := newFixture(t)
	order := f.deliveredOrder(t, 1)
	itemID := order.Items[0].ID

	first, err := f.processor.Create(returns.CreateInput{
		OrderID: order.ID,
		Type:    domain.ReturnTypeReturn,
		Lines:   []returns.LineInput{{OrderItemID: itemID, Qty: 1}},
	})
	require.NoError(t, err)

	_, err = f.processor.Process(first.ID, returns.Decision{Approve: false, Note: "outside window"})
	require.NoError(t, err)

	// Отклонённый запрос не блокирует повторную подачу.
	_, err = f.processor.Create(returns.CreateInput{
		OrderID: order.ID,
		Type:    domain.ReturnTypeReturn,
		Lines:   []returns.LineInput{{OrderItemID: itemID, Qty: 1}},
	})
	require.NoError(t, err)
}

func TestProcess_PartialRefundRestocksAndRecordsAmount(t *testing.T) {
	f := newFixture(t)
	order := f.deliveredOrder(t, 2)
	require.EqualValues(t, 8, f.quantity(t))

	req, err := f.processor.Create(returns.CreateInput{
		OrderID: order.ID,
		Type:    domain.ReturnTypeRefund,
		Lines:   []returns.LineInput{{OrderItemID: order.Items[0].ID, Qty: 1}},
	})
	require.NoError(t, err)

	processed, err := f.processor.Process(req.ID, returns.Decision{Approve: true})
	require.NoError(t, err)
	require.Equal(t, domain.ReturnStatusApproved, processed.Status)
	require.EqualValues(t, 250, processed.ApprovedAmountMinor)
	require.NotNil(t, processed.ProcessedAt)

	// Единица вернулась на склад, возмещение зафиксировано в заказе.
	require.EqualValues(t, 9, f.quantity(t))
	updated, err := f.store.Get(order.ID)
	require.NoError(t, err)
	require.EqualValues(t, 250, updated.RefundedMinor)
	require.Equal(t, domain.PaymentStatusPartiallyRefunded, updated.PaymentStatus)
}

func TestProcess_RejectLeavesInventoryUntouched(t *testing.T) {
	f := newFixture(t)
	order := f.deliveredOrder(t, 2)

	req, err := f.processor.Create(returns.CreateInput{
		OrderID: order.ID,
		Type:    domain.ReturnTypeReturn,
		Lines:   []returns.LineInput{{OrderItemID: order.Items[0].ID, Qty: 2}},
	})
	require.NoError(t, err)

	processed, err := f.processor.Process(req.ID, returns.Decision{Approve: false})
	require.NoError(t, err)
	require.Equal(t, domain.ReturnStatusRejected, processed.Status)
	require.EqualValues(t, 0, processed.ApprovedAmountMinor)
	require.EqualValues(t, 8, f.quantity(t))
}

func TestProcess_RepeatedDecisionRejected(t *testing.T) {
	f := newFixture(t)
	order := f.deliveredOrder(t, 1)

	req, err := f.processor.Create(returns.CreateInput{
		OrderID: order.ID,
		Type:    domain.ReturnTypeReturn,
		Lines:   []returns.LineInput{{OrderItemID: order.Items[0].ID, Qty: 1}},
	})
	require.NoError(t, err)

	_, err = f.processor.Process(req.ID, returns.Decision{Approve: true})
	require.NoError(t, err)

	_, err = f.processor.Process(req.ID, returns.Decision{Approve: false})
	require.ErrorIs(t, err, domain.ErrAlreadyProcessed)
}

func TestProcess_OverrideCappedByRequested(t *testing.T) {
	f := newFixture(t)
	order := f.deliveredOrder(t, 2)

	req, err := f.processor.Create(returns.CreateInput{
		OrderID: order.ID,
		Type:    domain.ReturnTypeRefund,
		Lines:   []returns.LineInput{{OrderItemID: order.Items[0].ID, Qty: 1}},
	})
	require.NoError(t, err)

	over := int64(999)
	_, err = f.processor.Process(req.ID, returns.Decision{Approve: true, AmountMinor: &over})
	require.ErrorIs(t, err, domain.ErrAmountExceedsRequested)

	partial := int64(100)
	processed, err := f.processor.Process(req.ID, returns.Decision{Approve: true, AmountMinor: &partial})
	require.NoError(t, err)
	require.EqualValues(t, 100, processed.ApprovedAmountMinor)
}

func TestProcess_ExchangeDoesNotRestock(t *testing.T) {
	f := newFixture(t)
	order := f.deliveredOrder(t, 1)
	require.EqualValues(t, 9, f.quantity(t))

	req, err := f.processor.Create(returns.CreateInput{
		OrderID: order.ID,
		Type:    domain.ReturnTypeExchange,
		Lines:   []returns.LineInput{{OrderItemID: order.Items[0].ID, Qty: 1}},
	})
	require.NoError(t, err)

	_, err = f.processor.Process(req.ID, returns.Decision{Approve: true})
	require.NoError(t, err)
	require.EqualValues(t, 9, f.quantity(t))
}

func TestProcess_ApprovedReturnMarksOrderReturned(t *testing.T) {
	f := newFixture(t)
	order := f.deliveredOrder(t, 1)

	req, err := f.processor.Create(returns.CreateInput{
		OrderID: order.ID,
		Type:    domain.ReturnTypeReturn,
		Lines:   []returns.LineInput{{OrderItemID: order.Items[0].ID, Qty: 1}},
	})
	require.NoError(t, err)

	_, err = f.processor.Process(req.ID, returns.Decision{Approve: true})
	require.NoError(t, err)

	updated, err := f.store.Get(order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusReturned, updated.Status)
	require.EqualValues(t, 10, f.quantity(t))
}

func TestComplete_ForwardOnly(t *testing.T) {
	f := newFixture(t)
	order := f.deliveredOrder(t, 1)

	req, err := f.processor.Create(returns.CreateInput{
		OrderID: order.ID,
		Type:    domain.ReturnTypeReturn,
		Lines:   []returns.LineInput{{OrderItemID: order.Items[0].ID, Qty: 1}},
	})
	require.NoError(t, err)

	// Завершить можно только одобренный запрос.
	_, err = f.processor.Complete(req.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.processor.Process(req.ID, returns.Decision{Approve: true})
	require.NoError(t, err)

	completed, err := f.processor.Complete(req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ReturnStatusCompleted, completed.Status)

	_, err = f.processor.Complete(req.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}
