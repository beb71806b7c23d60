package domain

import "time"

// BulkOperationType определяет класс изменения, применяемого ко всем целям.
type BulkOperationType string

const (
	BulkTypeUpdatePrice     BulkOperationType = "update_price"
	BulkTypeUpdateInventory BulkOperationType = "update_inventory"
	BulkTypeUpdateStatus    BulkOperationType = "update_status"
	BulkTypeAssignTags      BulkOperationType = "assign_tags"
)

// Valid проверяет, что тип относится к поддерживаемым значениям.
func (t BulkOperationType) Valid() bool {
	switch t {
	case BulkTypeUpdatePrice, BulkTypeUpdateInventory, BulkTypeUpdateStatus, BulkTypeAssignTags:
		return true
	default:
		return false
	}
}

// BulkStatus описывает жизненный цикл bulk-операции.
type BulkStatus string

const (
	BulkStatusPending    BulkStatus = "pending"
	BulkStatusProcessing BulkStatus = "processing"
	BulkStatusCompleted  BulkStatus = "completed"
	BulkStatusFailed     BulkStatus = "failed"
)

// BulkChanges — полезная нагрузка операции; заполняются только поля,
// относящиеся к её типу.
type BulkChanges struct {
	// PriceMinor — новая цена для update_price.
	PriceMinor *int64
	// Quantity — абсолютный остаток для update_inventory (через SetQuantity).
	Quantity *int64
	// QuantityDelta — относительная корректировка для update_inventory (через Adjust).
	QuantityDelta *int64
	// VariantID уточняет складской ключ целей update_price/update_inventory/assign_tags.
	VariantID string
	// Status — целевой статус заказов для update_status.
	Status OrderStatus
	// Tags — присваиваемые теги/категории для assign_tags.
	Tags []string
}

// BulkError фиксирует отказ по одной цели; список append-only.
type BulkError struct {
	TargetID string
	Message  string
}

// BulkOperation агрегирует состояние пакетного изменения. Создаётся и
// мутируется только BulkOperationExecutor; после completed/failed неизменяема.
type BulkOperation struct {
	ID        string
	Type      BulkOperationType
	TargetIDs []string
	Changes   BulkChanges

	Status         BulkStatus
	Progress       int
	ProcessedItems int
	TotalItems     int
	Errors         []BulkError
	Cancelled      bool

	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// RecalcProgress пересчитывает прогресс; значение никогда не убывает.
func (op *BulkOperation) RecalcProgress() {
	if op.TotalItems <= 0 {
		return
	}
	p := op.ProcessedItems * 100 / op.TotalItems
	if p > op.Progress {
		op.Progress = p
	}
}

// Finished сообщает, достигла ли операция конечного статуса.
func (op *BulkOperation) Finished() bool {
	return op.Status == BulkStatusCompleted || op.Status == BulkStatusFailed
}
