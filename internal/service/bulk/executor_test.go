package bulk_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/bulk"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/notify"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/orders"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

type fixture struct {
	executor *bulk.Executor
	store    *orders.Store
	ledger   *inventory.Ledger
	repo     domain.InventoryRepository
}

func newFixture(t *testing.T, records ...domain.InventoryRecord) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	entry := logger.WithField("component", "test")

	invRepo := memory.NewInventoryRepository()
	for _, rec := range records {
		require.NoError(t, invRepo.Put(rec))
	}

	ledger := inventory.NewLedger(invRepo, entry)
	store := orders.NewStore(
		memory.NewOrderRepository(),
		memory.NewTimelineRepository(),
		memory.NewOrderNumberSequence(),
		ledger,
		notify.NewMockSink(),
		entry,
	)
	executor := bulk.NewExecutor(
		memory.NewBulkRepository(),
		ledger,
		store,
		notify.NewMockSink(),
		entry,
	)
	return &fixture{executor: executor, store: store, ledger: ledger, repo: invRepo}
}

func int64ptr(v int64) *int64 { return &v }

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name    string
		input   bulk.CreateInput
		wantErr error
	}{
		{
			name:    "unknown type",
			input:   bulk.CreateInput{Type: "recount", TargetIDs: []string{"a"}},
			wantErr: domain.ErrUnknownOperationType,
		},
		{
			name:    "no targets",
			input:   bulk.CreateInput{Type: domain.BulkTypeUpdatePrice, Changes: domain.BulkChanges{PriceMinor: int64ptr(100)}},
			wantErr: domain.ErrTargetsRequired,
		},
		{
			name:    "price missing",
			input:   bulk.CreateInput{Type: domain.BulkTypeUpdatePrice, TargetIDs: []string{"a"}},
			wantErr: domain.ErrItemPriceInvalid,
		},
		{
			name: "both absolute and delta",
			input: bulk.CreateInput{
				Type:      domain.BulkTypeUpdateInventory,
				TargetIDs: []string{"a"},
				Changes:   domain.BulkChanges{Quantity: int64ptr(5), QuantityDelta: int64ptr(1)},
			},
			wantErr: domain.ErrQuantityInvalid,
		},
		{
			name:    "neither absolute nor delta",
			input:   bulk.CreateInput{Type: domain.BulkTypeUpdateInventory, TargetIDs: []string{"a"}},
			wantErr: domain.ErrQuantityInvalid,
		},
		{
			name:    "bad status",
			input:   bulk.CreateInput{Type: domain.BulkTypeUpdateStatus, TargetIDs: []string{"a"}, Changes: domain.BulkChanges{Status: "limbo"}},
			wantErr: domain.ErrInvalidTransition,
		},
		{
			name:    "no tags",
			input:   bulk.CreateInput{Type: domain.BulkTypeAssignTags, TargetIDs: []string{"a"}},
			wantErr: domain.ErrTagsRequired,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.executor.Create(tc.input)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestCreate_DeduplicatesTargets(t *testing.T) {
	f := newFixture(t)

	op, err := f.executor.Create(bulk.CreateInput{
		Type:      domain.BulkTypeUpdatePrice,
		TargetIDs: []string{"a", "b", "a", "c", "b"},
		Changes:   domain.BulkChanges{PriceMinor: int64ptr(100)},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, op.TargetIDs)
	require.Equal(t, 3, op.TotalItems)
	require.Equal(t, domain.BulkStatusPending, op.Status)
}

func TestRun_PartialFailureStillCompletes(t *testing.T) {
	f := newFixture(t,
		domain.InventoryRecord{ProductID: "a", Quantity: 1, Tracked: true},
		domain.InventoryRecord{ProductID: "c", Quantity: 1, Tracked: true},
	)

	// Вторая цель не существует: по ней копится ошибка, остальные обновляются.
	op, err := f.executor.Create(bulk.CreateInput{
		Type:      domain.BulkTypeUpdatePrice,
		TargetIDs: []string{"a", "ghost", "c"},
		Changes:   domain.BulkChanges{PriceMinor: int64ptr(777)},
	})
	require.NoError(t, err)

	done, err := f.executor.Run(context.Background(), op.ID)
	require.NoError(t, err)

	require.Equal(t, domain.BulkStatusCompleted, done.Status)
	require.Equal(t, 3, done.ProcessedItems)
	require.Equal(t, 100, done.Progress)
	require.Len(t, done.Errors, 1)
	require.Equal(t, "ghost", done.Errors[0].TargetID)
	require.False(t, done.Cancelled)

	recA, err := f.repo.Get(domain.InventoryKey{ProductID: "a"})
	require.NoError(t, err)
	require.EqualValues(t, 777, recA.PriceMinor)
	recC, err := f.repo.Get(domain.InventoryKey{ProductID: "c"})
	require.NoError(t, err)
	require.EqualValues(t, 777, recC.PriceMinor)
}

func TestRun_UpdateInventoryAbsoluteAndDelta(t *testing.T) {
	f := newFixture(t,
		domain.InventoryRecord{ProductID: "a", Quantity: 3, Tracked: true},
		domain.InventoryRecord{ProductID: "b", Quantity: 3, Tracked: true},
	)

	abs, err := f.executor.Create(bulk.CreateInput{
		Type:      domain.BulkTypeUpdateInventory,
		TargetIDs: []string{"a"},
		Changes:   domain.BulkChanges{Quantity: int64ptr(10)},
	})
	require.NoError(t, err)
	_, err = f.executor.Run(context.Background(), abs.ID)
	require.NoError(t, err)

	delta, err := f.executor.Create(bulk.CreateInput{
		Type:      domain.BulkTypeUpdateInventory,
		TargetIDs: []string{"b"},
		Changes:   domain.BulkChanges{QuantityDelta: int64ptr(-2)},
	})
	require.NoError(t, err)
	_, err = f.executor.Run(context.Background(), delta.ID)
	require.NoError(t, err)

	recA, err := f.repo.Get(domain.InventoryKey{ProductID: "a"})
	require.NoError(t, err)
	require.EqualValues(t, 10, recA.Quantity)
	recB, err := f.repo.Get(domain.InventoryKey{ProductID: "b"})
	require.NoError(t, err)
	require.EqualValues(t, 1, recB.Quantity)
}

func TestRun_AdjustBelowZeroReportedPerTarget(t *testing.T) {
	f := newFixture(t, domain.InventoryRecord{ProductID: "a", Quantity: 1, Tracked: true})

	op, err := f.executor.Create(bulk.CreateInput{
		Type:      domain.BulkTypeUpdateInventory,
		TargetIDs: []string{"a"},
		Changes:   domain.BulkChanges{QuantityDelta: int64ptr(-5)},
	})
	require.NoError(t, err)

	done, err := f.executor.Run(context.Background(), op.ID)
	require.NoError(t, err)
	require.Equal(t, domain.BulkStatusCompleted, done.Status)
	require.Len(t, done.Errors, 1)

	rec, err := f.repo.Get(domain.InventoryKey{ProductID: "a"})
	require.NoError(t, err)
	require.EqualValues(t, 1, rec.Quantity)
}

func TestRun_AssignTags(t *testing.T) {
	f := newFixture(t, domain.InventoryRecord{ProductID: "a", Quantity: 1, Tracked: true})

	op, err := f.executor.Create(bulk.CreateInput{
		Type:      domain.BulkTypeAssignTags,
		TargetIDs: []string{"a"},
		Changes:   domain.BulkChanges{Tags: []string{"sale", "summer"}},
	})
	require.NoError(t, err)

	_, err = f.executor.Run(context.Background(), op.ID)
	require.NoError(t, err)

	rec, err := f.repo.Get(domain.InventoryKey{ProductID: "a"})
	require.NoError(t, err)
	require.Equal(t, []string{"sale", "summer"}, rec.Tags)
}

func TestRun_UpdateStatusRespectsTransitionGraph(t *testing.T) {
	f := newFixture(t, domain.InventoryRecord{ProductID: "p1", Quantity: 10, Tracked: true, PriceMinor: 100})

	first, err := f.store.CreateOrder(orders.CreateOrderInput{
		Items:         []orders.ItemInput{{ProductID: "p1", Qty: 1}},
		CustomerEmail: "a@example.com",
	})
	require.NoError(t, err)
	second, err := f.store.CreateOrder(orders.CreateOrderInput{
		Items:         []orders.ItemInput{{ProductID: "p1", Qty: 1}},
		CustomerEmail: "b@example.com",
	})
	require.NoError(t, err)
	// Второй заказ уже подтверждён: повторный переход — идемпотентный no-op.
	_, err = f.store.Transition(second.ID, domain.OrderStatusConfirmed)
	require.NoError(t, err)
	_, err = f.store.Transition(second.ID, domain.OrderStatusProcessing)
	require.NoError(t, err)

	op, err := f.executor.Create(bulk.CreateInput{
		Type:      domain.BulkTypeUpdateStatus,
		TargetIDs: []string{first.ID, second.ID},
		Changes:   domain.BulkChanges{Status: domain.OrderStatusConfirmed},
	})
	require.NoError(t, err)

	done, err := f.executor.Run(context.Background(), op.ID)
	require.NoError(t, err)
	require.Equal(t, domain.BulkStatusCompleted, done.Status)
	// processing -> confirmed запрещён графом и попадает в errors.
	require.Len(t, done.Errors, 1)
	require.Equal(t, second.ID, done.Errors[0].TargetID)

	updated, err := f.store.Get(first.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusConfirmed, updated.Status)
}

func TestRun_OnlyPendingRuns(t *testing.T) {
	f := newFixture(t, domain.InventoryRecord{ProductID: "a", Quantity: 1, Tracked: true})

	op, err := f.executor.Create(bulk.CreateInput{
		Type:      domain.BulkTypeUpdatePrice,
		TargetIDs: []string{"a"},
		Changes:   domain.BulkChanges{PriceMinor: int64ptr(100)},
	})
	require.NoError(t, err)

	_, err = f.executor.Run(context.Background(), op.ID)
	require.NoError(t, err)

	_, err = f.executor.Run(context.Background(), op.ID)
	require.ErrorIs(t, err, domain.ErrOperationNotPending)
}

func TestCancel_PendingOperation(t *testing.T) {
	f := newFixture(t)

	op, err := f.executor.Create(bulk.CreateInput{
		Type:      domain.BulkTypeUpdatePrice,
		TargetIDs: []string{"a"},
		Changes:   domain.BulkChanges{PriceMinor: int64ptr(100)},
	})
	require.NoError(t, err)

	require.NoError(t, f.executor.Cancel(op.ID))

	cancelled, err := f.executor.Get(op.ID)
	require.NoError(t, err)
	require.Equal(t, domain.BulkStatusFailed, cancelled.Status)
	require.True(t, cancelled.Cancelled)
	require.Equal(t, 0, cancelled.ProcessedItems)

	require.ErrorIs(t, f.executor.Cancel(op.ID), domain.ErrAlreadyProcessed)
}

func TestRun_CancelledContextKeepsPartialState(t *testing.T) {
	f := newFixture(t, domain.InventoryRecord{ProductID: "a", Quantity: 1, Tracked: true})

	op, err := f.executor.Create(bulk.CreateInput{
		Type:      domain.BulkTypeUpdatePrice,
		TargetIDs: []string{"a", "b", "c"},
		Changes:   domain.BulkChanges{PriceMinor: int64ptr(100)},
	})
	require.NoError(t, err)

	// Контекст отменён до старта: ни одна цель не обрабатывается,
	// операция помечается failed с сохранением состояния.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done, err := f.executor.Run(ctx, op.ID)
	require.NoError(t, err)
	require.Equal(t, domain.BulkStatusFailed, done.Status)
	require.True(t, done.Cancelled)
	require.Equal(t, 0, done.ProcessedItems)
}

func TestRun_ProgressMonotonic(t *testing.T) {
	f := newFixture(t,
		domain.InventoryRecord{ProductID: "a", Quantity: 1, Tracked: true},
		domain.InventoryRecord{ProductID: "b", Quantity: 1, Tracked: true},
		domain.InventoryRecord{ProductID: "c", Quantity: 1, Tracked: true},
		domain.InventoryRecord{ProductID: "d", Quantity: 1, Tracked: true},
	)

	op, err := f.executor.Create(bulk.CreateInput{
		Type:      domain.BulkTypeUpdatePrice,
		TargetIDs: []string{"a", "b", "c", "d"},
		Changes:   domain.BulkChanges{PriceMinor: int64ptr(100)},
	})
	require.NoError(t, err)

	var mu sync.Mutex
	var samples []int
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				current, err := f.executor.Get(op.ID)
				if err == nil {
					mu.Lock()
					samples = append(samples, current.Progress)
					mu.Unlock()
				}
			}
		}
	}()

	done, err := f.executor.Run(context.Background(), op.ID)
	close(stop)
	require.NoError(t, err)
	require.Equal(t, 100, done.Progress)

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(samples); i++ {
		require.GreaterOrEqual(t, samples[i], samples[i-1])
	}
}
