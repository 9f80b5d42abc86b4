package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// SyncTrigger is the message that asks a worker to execute one sync job.
type SyncTrigger struct {
	JobID     string `json:"job_id"`
	SourceID  uint   `json:"source_id"`
	ProjectID uint   `json:"project_id"`
}

type SyncPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewSyncPublisher(conn *amqp.Connection, queueName string) *SyncPublisher {
	return &SyncPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *SyncPublisher) PublishTrigger(ctx context.Context, trigger SyncTrigger) error {
	// The durable queue is declared at connection setup.
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	payload, err := json.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("marshal sync trigger failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish sync trigger failed: %w", err)
	}
	return nil
}
