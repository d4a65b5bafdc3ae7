package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/inklane/artist-match-engine/internal/core/domain"
)

const _eventsExchange = "assignments.direct"

type EventService struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *zap.Logger
}

// NewEventService connects to RabbitMQ with retry and backoff and returns a
// publisher for assignment events.
func NewEventService(url string, log *zap.Logger) (*EventService, error) {
	var conn *amqp.Connection
	var err error

	maxRetries := 10
	for i := 1; i <= maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			var ch *amqp.Channel
			ch, err = conn.Channel()
			if err == nil {
				if err = ch.ExchangeDeclare(
					_eventsExchange, // name
					"direct",        // kind
					true,            // durable
					false,           // auto-delete
					false,           // internal
					false,           // no-wait
					nil,             // args
				); err == nil {
					return &EventService{
						conn: conn,
						ch:   ch,
						log:  log,
					}, nil
				}
			}
			conn.Close()
		}

		log.Warn("Failed to connect to RabbitMQ, retrying...",
			zap.Int("attempt", i),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)

		time.Sleep(time.Duration(i*2) * time.Second)
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
}

// Publish emits one assignment event. Routing key carries the task urgency so
// downstream notifiers can prioritize critical traffic.
func (q *EventService) Publish(ctx context.Context, event domain.AssignmentEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	routingKey := "assignment.standard"
	switch event.Urgency {
	case domain.UrgencyCritical, domain.UrgencyUrgent:
		routingKey = "assignment.high"
	case domain.UrgencyFlexible:
		routingKey = "assignment.low"
	}

	err = q.ch.PublishWithContext(ctx,
		_eventsExchange, // Exchange
		routingKey,      // Routing key
		false,           // Mandatory
		false,           // Immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
	if err != nil {
		q.log.Error("Failed to publish assignment event",
			zap.String("type", string(event.Type)),
			zap.Error(err))
		return err
	}

	q.log.Debug("Published assignment event",
		zap.String("type", string(event.Type)),
		zap.String("task_id", event.TaskID),
		zap.String("key", routingKey))
	return nil
}

// Close shuts the channel and connection down.
func (q *EventService) Close() {
	if q.ch != nil {
		q.ch.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}
