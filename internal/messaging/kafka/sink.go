package kafka

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// Topic для событий жизненного цикла заказов.
const TopicLifecycleEvents = "fulfillment.order.events"

// lifecycleMessage — wire-формат события для внешних потребителей.
type lifecycleMessage struct {
	Kind      string                 `json:"kind"`
	OrderID   string                 `json:"order_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// Sink публикует события движка в Kafka. Доставка at-most-once: движок
// вызывает Notify не более одного раза на переход и не повторяет отправку.
type Sink struct {
	producer *Producer
	topic    string
	logger   *log.Entry
}

// NewSink создаёт NotificationSink поверх Kafka producer.
func NewSink(producer *Producer, logger *log.Entry) *Sink {
	if logger == nil {
		logger = log.New().WithField("component", "kafka-sink")
	}
	return &Sink{
		producer: producer,
		topic:    TopicLifecycleEvents,
		logger:   logger,
	}
}

// Notify сериализует событие и публикует его; ключом партиционирования
// служит ID заказа, чтобы события одного заказа сохраняли порядок.
func (s *Sink) Notify(event domain.Event) error {
	msg := lifecycleMessage{
		Kind:      string(event.Kind),
		OrderID:   event.OrderID,
		Payload:   event.Payload,
		Timestamp: event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key := event.OrderID
	if key == "" {
		key = string(event.Kind)
	}
	return s.producer.Publish(s.topic, key, data)
}

var _ domain.NotificationSink = (*Sink)(nil)

// Close закрывает нижележащий producer.
func (s *Sink) Close() error {
	return s.producer.Close()
}
