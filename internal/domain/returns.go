package domain

import "time"

// ReturnType определяет, что клиент хочет получить взамен.
type ReturnType string

const (
	ReturnTypeReturn   ReturnType = "return"
	ReturnTypeExchange ReturnType = "exchange"
	ReturnTypeRefund   ReturnType = "refund"
)

// Valid проверяет, что тип относится к поддерживаемым значениям.
func (t ReturnType) Valid() bool {
	switch t {
	case ReturnTypeReturn, ReturnTypeExchange, ReturnTypeRefund:
		return true
	default:
		return false
	}
}

// ReturnStatus описывает жизненный цикл запроса на возврат.
// Переходы только вперёд: pending -> approved|rejected -> processing -> completed.
type ReturnStatus string

const (
	ReturnStatusPending    ReturnStatus = "pending"
	ReturnStatusApproved   ReturnStatus = "approved"
	ReturnStatusRejected   ReturnStatus = "rejected"
	ReturnStatusProcessing ReturnStatus = "processing"
	ReturnStatusCompleted  ReturnStatus = "completed"
)

var returnGraph = map[ReturnStatus]map[ReturnStatus]struct{}{
	ReturnStatusPending:    {ReturnStatusApproved: {}, ReturnStatusRejected: {}},
	ReturnStatusApproved:   {ReturnStatusProcessing: {}, ReturnStatusCompleted: {}},
	ReturnStatusProcessing: {ReturnStatusCompleted: {}},
	ReturnStatusRejected:   {},
	ReturnStatusCompleted:  {},
}

// CanTransitionTo проверяет достижимость next из s: движение только вперёд.
func (s ReturnStatus) CanTransitionTo(next ReturnStatus) bool {
	_, ok := returnGraph[s][next]
	return ok
}

// ReturnLine описывает одну возвращаемую позицию заказа.
type ReturnLine struct {
	OrderItemID string
	Qty         int32
	Reason      string
	Condition   string
}

// ReturnRequest — запрос на возврат/обмен/возмещение по доставленному заказу.
// Все поля пишутся только ReturnRefundProcessor.
type ReturnRequest struct {
	ID      string
	OrderID string
	Type    ReturnType
	Status  ReturnStatus
	Lines   []ReturnLine
	Reason  string

	// RequestedAmountMinor вычисляется сервером из зафиксированных цен заказа;
	// клиентская сумма никогда не принимается на веру.
	RequestedAmountMinor int64
	// ApprovedAmountMinor устанавливается только при одобрении.
	ApprovedAmountMinor int64

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}

// Processed сообщает, что запрос уже был одобрен или отклонён.
func (r *ReturnRequest) Processed() bool {
	return r.Status != ReturnStatusPending
}

// QtyForItem возвращает количество, которое запрос покрывает по данной позиции.
func (r *ReturnRequest) QtyForItem(orderItemID string) int32 {
	var total int32
	for _, line := range r.Lines {
		if line.OrderItemID == orderItemID {
			total += line.Qty
		}
	}
	return total
}
