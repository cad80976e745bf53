package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrUndecodable - тело сообщения нельзя разобрать. Такое сообщение
// отклоняется без возврата в очередь и уходит в DLQ.
var ErrUndecodable = errors.New("undecodable message")

// Handler обрабатывает одну доставку. nil означает, что исход зафиксирован
// (в том числе неуспешный) и сообщение подтверждается.
type Handler func(ctx context.Context, d amqp.Delivery) error

// Consumer читает очередь с ручным подтверждением и переподключается при разрыве.
type Consumer struct {
	conn     *Connection
	queues   Queues
	queue    string
	prefetch int
	handler  Handler
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewConsumer создает консьюмера очереди queue.
func NewConsumer(conn *Connection, queues Queues, queue string, prefetch int, handler Handler, logger *zap.Logger) *Consumer {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Consumer{
		conn:     conn,
		queues:   queues,
		queue:    queue,
		prefetch: prefetch,
		handler:  handler,
		logger:   logger.Named("Consumer").With(zap.String("queue", queue)),
	}
}

// Start запускает цикл чтения в отдельной горутине.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return fmt.Errorf("consumer for '%s' already started", c.queue)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.stopped = make(chan struct{})

	go func() {
		defer close(c.stopped)
		for {
			err := c.consume(loopCtx)
			if loopCtx.Err() != nil {
				c.logger.Info("Consumer stopped")
				return
			}
			c.logger.Error("Consume loop interrupted, reconnecting",
				zap.Duration("delay", reconnectDelay), zap.Error(err))
			select {
			case <-loopCtx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()
	return nil
}

func (c *Consumer) consume(ctx context.Context) error {
	ch, err := c.conn.Channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()
	// Подтверждения идут через этот канал: закрываем его только после обработчиков.
	var inFlight sync.WaitGroup
	defer inFlight.Wait()

	if err := DeclareTopology(ch, c.queues); err != nil {
		return err
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	consumerTag := fmt.Sprintf("%s-%d", c.queue, time.Now().UnixNano())
	msgs, err := ch.Consume(c.queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}
	c.logger.Info("Waiting for messages", zap.Int("prefetch", c.prefetch))

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("channel closed")
			}
			return amqpErr
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			inFlight.Add(1)
			go func() {
				defer inFlight.Done()
				c.handleDelivery(context.WithoutCancel(ctx), d)
			}()
		}
	}
}

// handleDelivery вызывает обработчик и подтверждает или отклоняет сообщение.
// Ошибка обработчика возвращает сообщение в очередь один раз; повторная ошибка
// отправляет его в DLQ.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	log := c.logger.With(zap.Uint64("deliveryTag", d.DeliveryTag), zap.String("messageID", d.MessageId))

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in handler: %v", r)
			}
		}()
		return c.handler(ctx, d)
	}()

	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			log.Error("Failed to ack message", zap.Error(ackErr))
		}
	case errors.Is(err, ErrUndecodable):
		log.Error("Rejecting undecodable message", zap.Error(err), zap.ByteString("body", d.Body))
		if nackErr := d.Nack(false, false); nackErr != nil {
			log.Error("Failed to nack message", zap.Error(nackErr))
		}
	default:
		requeue := !d.Redelivered
		log.Error("Message handling failed", zap.Error(err), zap.Bool("requeue", requeue))
		if nackErr := d.Nack(false, requeue); nackErr != nil {
			log.Error("Failed to nack message", zap.Error(nackErr))
		}
	}
}

// Stop останавливает чтение и ждет обработки уже полученных сообщений.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, stopped := c.cancel, c.stopped
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop consumer '%s': %w", c.queue, ctx.Err())
	}
}
