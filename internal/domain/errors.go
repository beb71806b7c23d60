package domain

import "errors"

var (
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка нарушения денежного тождества total = subtotal - discount + shipping + tax.
	ErrTotalMismatch = errors.New("order total does not match subtotal - discount + shipping + tax")
	// Ошибка отсутствующего email клиента.
	ErrCustomerEmailRequired = errors.New("customer_email is required")
	// Ошибка отсутствующего идентификатора товара.
	ErrProductIDRequired = errors.New("product_id is required")
	// Ошибка некорректного количества при операции со складом.
	ErrQuantityInvalid = errors.New("quantity must be greater than zero")
	// Ошибка установки отрицательного остатка для записи без backorder.
	ErrNegativeQuantity = errors.New("quantity must be non-negative unless backorder is allowed")
	// Ошибка отсутствующего номера отправления при добавлении трекинга.
	ErrTrackingRequired = errors.New("tracking number and carrier are required")
	// Ошибка пустого списка целей bulk-операции.
	ErrTargetsRequired = errors.New("bulk operation must have at least one target")
	// Ошибка пустого списка тегов для assign_tags.
	ErrTagsRequired = errors.New("assign_tags operation must carry at least one tag")
	// Ошибка неизвестного типа bulk-операции.
	ErrUnknownOperationType = errors.New("unknown bulk operation type")
	// Ошибка некорректной строки возврата (количество больше доступного).
	ErrReturnQtyExceeded = errors.New("return qty exceeds remaining returnable quantity")
	// Ошибка превышения одобренной суммы над запрошенной.
	ErrAmountExceedsRequested = errors.New("approved amount exceeds requested amount")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderItemNotFound возвращается, если позиция заказа не найдена.
	ErrOrderItemNotFound = errors.New("order item not found")
	// ErrInventoryNotFound возвращается, если складская запись по ключу отсутствует.
	ErrInventoryNotFound = errors.New("inventory record not found")
	// ErrReturnNotFound возвращается, если запрос на возврат не найден.
	ErrReturnNotFound = errors.New("return request not found")
	// ErrOperationNotFound возвращается, если bulk-операция не найдена.
	ErrOperationNotFound = errors.New("bulk operation not found")

	// ErrInvalidTransition — переход не разрешён графом статусов; заказ не изменён.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInsufficientInventory — резерв невозможен: остатка не хватает и backorder запрещён.
	ErrInsufficientInventory = errors.New("insufficient inventory")
	// ErrAlreadyProcessed — повторная обработка уже решённого запроса на возврат.
	ErrAlreadyProcessed = errors.New("return request already processed")
	// ErrOperationCancelled — bulk-операция остановлена по запросу.
	ErrOperationCancelled = errors.New("bulk operation cancelled")
	// ErrOperationNotPending — запуск bulk-операции не из статуса pending.
	ErrOperationNotPending = errors.New("bulk operation is not pending")

	// ErrVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrVersionConflict = errors.New("version conflict")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsNotFound проверяет, относится ли ошибка к классу "не найдено".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrOrderItemNotFound) ||
		errors.Is(err, ErrInventoryNotFound) ||
		errors.Is(err, ErrReturnNotFound) ||
		errors.Is(err, ErrOperationNotFound)
}
