package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"qingyin-guild/internal/model"
	"qingyin-guild/internal/platform/rabbitmq"
)

type EventStore interface {
	Create(ctx context.Context, event *model.ModerationEvent) error
}

// ModerationEventWorker drains the moderation queue into the event table.
type ModerationEventWorker struct {
	conn      *amqp.Connection
	store     EventStore
	queueName string
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewModerationEventWorker(conn *amqp.Connection, store EventStore, queueName string, logger *zap.Logger) *ModerationEventWorker {
	return &ModerationEventWorker{
		conn:      conn,
		store:     store,
		queueName: queueName,
		logger:    logger.Named("moderation-worker"),
	}
}

func (w *ModerationEventWorker) Start(ctx context.Context) error {
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

	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
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
					w.logger.Warn("delivery channel closed")
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	w.logger.Info("worker started", zap.String("queue", w.queueName))
	return nil
}

func (w *ModerationEventWorker) handle(ctx context.Context, d amqp.Delivery) {
	var event model.ModerationEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		w.logger.Error("decode moderation event failed", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	event.ID = 0

	if err := w.store.Create(ctx, &event); err != nil {
		w.logger.Error("persist moderation event failed",
			zap.Uint("character_id", event.CharacterID),
			zap.Error(err),
		)
		_ = d.Nack(false, false)
		return
	}

	_ = d.Ack(false)
}

func (w *ModerationEventWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
