package bulk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/inventory"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/orders"
)

// CreateInput — заявка на пакетную операцию.
type CreateInput struct {
	Type      domain.BulkOperationType
	TargetIDs []string
	Changes   domain.BulkChanges
}

// Executor — единственный писатель BulkOperation. Цели обрабатываются
// последовательно; отказ по одной цели не прерывает операцию.
type Executor struct {
	ops     domain.BulkRepository
	ledger  *inventory.Ledger
	store   *orders.Store
	sink    domain.NotificationSink
	logger  *log.Entry
	metrics *metrics.EngineMetrics

	// Таймаут на всю операцию; ноль отключает ограничение.
	timeout time.Duration

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewExecutor создаёт рабочий экземпляр BulkOperationExecutor.
func NewExecutor(
	ops domain.BulkRepository,
	ledger *inventory.Ledger,
	store *orders.Store,
	sink domain.NotificationSink,
	logger *log.Entry,
) *Executor {
	if logger == nil {
		logger = log.New().WithField("component", "bulk-executor")
	}
	return &Executor{
		ops:     ops,
		ledger:  ledger,
		store:   store,
		sink:    sink,
		logger:  logger,
		running: make(map[string]context.CancelFunc),
	}
}

// NewExecutorWithMetrics создаёт экземпляр, публикующий метрики.
func NewExecutorWithMetrics(
	ops domain.BulkRepository,
	ledger *inventory.Ledger,
	store *orders.Store,
	sink domain.NotificationSink,
	m *metrics.EngineMetrics,
	logger *log.Entry,
) *Executor {
	e := NewExecutor(ops, ledger, store, sink, logger)
	e.metrics = m
	return e
}

// SetTimeout задаёт предельную длительность одной операции.
func (e *Executor) SetTimeout(d time.Duration) {
	e.timeout = d
}

// Create валидирует заявку и сохраняет операцию в статусе pending.
// Дубликаты целей схлопываются с сохранением порядка.
func (e *Executor) Create(input CreateInput) (domain.BulkOperation, error) {
	if !input.Type.Valid() {
		return domain.BulkOperation{}, fmt.Errorf("%w: %q", domain.ErrUnknownOperationType, input.Type)
	}
	if len(input.TargetIDs) == 0 {
		return domain.BulkOperation{}, domain.ErrTargetsRequired
	}
	if err := validateChanges(input.Type, input.Changes); err != nil {
		return domain.BulkOperation{}, err
	}

	targets := dedupe(input.TargetIDs)
	now := time.Now().UTC()
	op := domain.BulkOperation{
		ID:         uuid.NewString(),
		Type:       input.Type,
		TargetIDs:  targets,
		Changes:    input.Changes,
		Status:     domain.BulkStatusPending,
		TotalItems: len(targets),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.ops.Create(op); err != nil {
		return domain.BulkOperation{}, fmt.Errorf("persist bulk operation: %w", err)
	}
	return op, nil
}

// Get возвращает операцию по идентификатору.
func (e *Executor) Get(opID string) (domain.BulkOperation, error) {
	return e.ops.Get(opID)
}

// Cancel запрашивает кооперативную остановку операции. Выполняющаяся
// операция останавливается на ближайшей границе между целями; pending
// операция переводится в failed немедленно. Уже обработанные цели не
// откатываются.
func (e *Executor) Cancel(opID string) error {
	e.mu.Lock()
	cancel, inFlight := e.running[opID]
	e.mu.Unlock()
	if inFlight {
		cancel()
		return nil
	}

	op, err := e.ops.Get(opID)
	if err != nil {
		return err
	}
	if op.Finished() {
		return fmt.Errorf("%w: operation %s is %s", domain.ErrAlreadyProcessed, op.ID, op.Status)
	}

	now := time.Now().UTC()
	op.Status = domain.BulkStatusFailed
	op.Cancelled = true
	op.FinishedAt = &now
	op.UpdatedAt = now
	if err := e.ops.Save(op); err != nil {
		return fmt.Errorf("persist cancellation: %w", err)
	}
	return nil
}

// Run выполняет pending-операцию до конца: цели обрабатываются по одной,
// отказы накапливаются в errors, прогресс растёт монотонно и сохраняется
// после каждой цели. Операция завершается completed даже при отказах по
// отдельным целям; failed означает только отмену или невозможность стартовать.
func (e *Executor) Run(ctx context.Context, opID string) (domain.BulkOperation, error) {
	op, err := e.ops.Get(opID)
	if err != nil {
		return domain.BulkOperation{}, err
	}
	if op.Status != domain.BulkStatusPending {
		return domain.BulkOperation{}, fmt.Errorf("%w: operation %s is %s", domain.ErrOperationNotPending, op.ID, op.Status)
	}

	if e.timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, e.timeout)
		defer cancelTimeout()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.running[op.ID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.running, op.ID)
		e.mu.Unlock()
	}()

	started := time.Now().UTC()
	op.Status = domain.BulkStatusProcessing
	op.StartedAt = &started
	op.UpdatedAt = started
	if err := e.save(&op); err != nil {
		return domain.BulkOperation{}, err
	}
	if e.metrics != nil {
		e.metrics.RecordBulkStarted()
	}
	e.logger.WithFields(log.Fields{
		"op_id":   op.ID,
		"type":    op.Type,
		"targets": op.TotalItems,
	}).Info("bulk operation started")

	for _, target := range op.TargetIDs {
		// Проверка отмены только на границах целей: начатая цель дорабатывается.
		if err := ctx.Err(); err != nil {
			return e.finish(&op, started, true)
		}

		if err := e.applyTarget(op.Type, target, op.Changes); err != nil {
			op.Errors = append(op.Errors, domain.BulkError{TargetID: target, Message: err.Error()})
			if e.metrics != nil {
				e.metrics.RecordBulkItem("failed")
			}
		} else if e.metrics != nil {
			e.metrics.RecordBulkItem("ok")
		}

		op.ProcessedItems++
		op.RecalcProgress()
		op.UpdatedAt = time.Now().UTC()
		if err := e.save(&op); err != nil {
			return domain.BulkOperation{}, err
		}
	}

	return e.finish(&op, started, false)
}

func (e *Executor) finish(op *domain.BulkOperation, started time.Time, cancelled bool) (domain.BulkOperation, error) {
	now := time.Now().UTC()
	if cancelled {
		op.Status = domain.BulkStatusFailed
		op.Cancelled = true
	} else {
		op.Status = domain.BulkStatusCompleted
		op.Progress = 100
	}
	op.FinishedAt = &now
	op.UpdatedAt = now
	if err := e.save(op); err != nil {
		return domain.BulkOperation{}, err
	}

	if e.metrics != nil {
		e.metrics.RecordBulkFinished(op.Status == domain.BulkStatusFailed, now.Sub(started))
	}
	e.logger.WithFields(log.Fields{
		"op_id":     op.ID,
		"status":    op.Status,
		"processed": op.ProcessedItems,
		"errors":    len(op.Errors),
	}).Info("bulk operation finished")
	e.notify(*op)

	return *op, nil
}

// applyTarget применяет изменение к одной цели. Ошибка затрагивает только
// эту цель и превращается в запись errors.
func (e *Executor) applyTarget(opType domain.BulkOperationType, target string, changes domain.BulkChanges) error {
	key := domain.InventoryKey{ProductID: target, VariantID: changes.VariantID}

	switch opType {
	case domain.BulkTypeUpdatePrice:
		return e.ledger.SetPrice(key, *changes.PriceMinor)
	case domain.BulkTypeUpdateInventory:
		if changes.Quantity != nil {
			return e.ledger.SetQuantity(key, *changes.Quantity)
		}
		return e.ledger.Adjust(key, *changes.QuantityDelta)
	case domain.BulkTypeAssignTags:
		return e.ledger.AssignTags(key, changes.Tags)
	case domain.BulkTypeUpdateStatus:
		_, err := e.store.Transition(target, changes.Status)
		return err
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownOperationType, opType)
	}
}

// save фиксирует операцию и синхронизирует локальную версию с хранилищем.
func (e *Executor) save(op *domain.BulkOperation) error {
	if err := e.ops.Save(*op); err != nil {
		return fmt.Errorf("persist bulk operation %s: %w", op.ID, err)
	}
	op.Version++
	return nil
}

func (e *Executor) notify(op domain.BulkOperation) {
	if e.sink == nil {
		return
	}
	event := domain.Event{
		Kind: domain.EventBulkFinished,
		Payload: map[string]interface{}{
			"op_id":     op.ID,
			"type":      string(op.Type),
			"status":    string(op.Status),
			"processed": op.ProcessedItems,
			"errors":    len(op.Errors),
		},
		Timestamp: time.Now().UTC(),
	}
	go func() {
		if err := e.sink.Notify(event); err != nil {
			if e.metrics != nil {
				e.metrics.RecordNotification(true)
			}
			e.logger.WithError(err).WithField("op_id", op.ID).Warn("notification sink rejected event")
			return
		}
		if e.metrics != nil {
			e.metrics.RecordNotification(false)
		}
	}()
}

// validateChanges проверяет, что полезная нагрузка согласована с типом операции.
func validateChanges(opType domain.BulkOperationType, changes domain.BulkChanges) error {
	switch opType {
	case domain.BulkTypeUpdatePrice:
		if changes.PriceMinor == nil || *changes.PriceMinor < 0 {
			return domain.ErrItemPriceInvalid
		}
	case domain.BulkTypeUpdateInventory:
		// Ровно один способ задать остаток: абсолютный или относительный.
		if (changes.Quantity == nil) == (changes.QuantityDelta == nil) {
			return domain.ErrQuantityInvalid
		}
	case domain.BulkTypeUpdateStatus:
		if !changes.Status.Valid() {
			return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, changes.Status)
		}
	case domain.BulkTypeAssignTags:
		if len(changes.Tags) == 0 {
			return domain.ErrTagsRequired
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
