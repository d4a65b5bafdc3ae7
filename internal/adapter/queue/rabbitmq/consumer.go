package rabbitmq

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/inklane/artist-match-engine/internal/core/domain"
)

// ConsumeTasks listens for newly created tasks and hands each to the engine.
// Acks are manual: a task the engine could not admit is nacked back onto the
// queue rather than lost.
func (q *EventService) ConsumeTasks(ctx context.Context, handler func(task *domain.Task) error) error {
	qName := "tasks.created"

	_, err := q.ch.QueueDeclare(
		qName, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return err
	}

	msgs, err := q.ch.Consume(
		qName, // queue
		"",    // consumer
		false, // auto-ack (ack only after the engine admitted the task)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return err
	}

	q.log.Info("Started consuming created tasks", zap.String("queue", qName))

	go func() {
		for d := range msgs {
			var task domain.Task
			if err := json.Unmarshal(d.Body, &task); err != nil {
				q.log.Error("Failed to unmarshal task", zap.Error(err))
				d.Nack(false, false) // discard invalid message
				continue
			}

			q.log.Info("Received task", zap.String("id", task.ID))

			if err := handler(&task); err != nil {
				q.log.Error("Task admission failed, requeueing", zap.Error(err))
				d.Nack(false, true)
			} else {
				d.Ack(false)
			}
		}
	}()

	return nil
}
