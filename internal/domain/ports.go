package domain

import "time"

// EventKind классифицирует события жизненного цикла для NotificationSink.
type EventKind string

const (
	EventOrderCreated   EventKind = "order.created"
	EventStatusChanged  EventKind = "order.status_changed"
	EventOrderCancelled EventKind = "order.cancelled"
	EventTrackingAdded  EventKind = "order.tracking_added"
	EventReturnResolved EventKind = "return.resolved"
	EventBulkFinished   EventKind = "bulk.finished"
)

// Event — уведомление о событии жизненного цикла, передаваемое внешнему коллектору.
type Event struct {
	Kind      EventKind
	OrderID   string
	Payload   map[string]interface{}
	Timestamp time.Time
}

// NotificationSink — внешний коллектор уведомлений. Вызывается не более одного
// раза на зафиксированный переход; движок никогда не блокируется на нём и не
// откатывает переход из-за его ошибок.
type NotificationSink interface {
	Notify(event Event) error
}

// TimelineEvent описывает событие в жизненном цикле заказа (аудит переходов).
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
