package notify

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// noopSink логирует события вместо доставки; используется, когда Kafka не настроена.
type noopSink struct {
	logger *log.Entry
}

// NewNoop возвращает sink, который только логирует события.
func NewNoop(logger *log.Entry) domain.NotificationSink {
	if logger == nil {
		logger = log.New().WithField("component", "notify-noop")
	}
	return &noopSink{logger: logger}
}

func (n *noopSink) Notify(event domain.Event) error {
	n.logger.WithFields(log.Fields{
		"kind":     event.Kind,
		"order_id": event.OrderID,
	}).Debug("notification dropped (noop sink)")
	return nil
}

var _ domain.NotificationSink = (*noopSink)(nil)
