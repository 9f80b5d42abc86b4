package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"markprompt/internal/app"
	"markprompt/internal/platform/rabbitmq"
)

// SyncWorker consumes sync trigger messages and executes the jobs they
// reference. Execution failures nack without requeue: the job row already
// carries the failure, replaying the message would not help.
type SyncWorker struct {
	conn      *amqp.Connection
	syncs     *app.SyncService
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSyncWorker(conn *amqp.Connection, syncs *app.SyncService, queueName string) *SyncWorker {
	return &SyncWorker{
		conn:      conn,
		syncs:     syncs,
		queueName: queueName,
	}
}

func (w *SyncWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	// One sync at a time per worker; a run can be long.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var trigger rabbitmq.SyncTrigger
				if err := json.Unmarshal(d.Body, &trigger); err != nil {
					log.Printf("worker decode sync trigger failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				if err := w.syncs.Run(workerCtx, trigger.JobID); err != nil {
					log.Printf("worker run sync job %s failed: %v", trigger.JobID, err)
					_ = d.Nack(false, false)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *SyncWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
