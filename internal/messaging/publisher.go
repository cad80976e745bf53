package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"novel-vote-server/internal/interfaces"
	"novel-vote-server/internal/metrics"
	"novel-vote-server/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	publishTimeout  = 10 * time.Second
	publishAttempts = 3
)

// Publisher отправляет задачи генерации и иллюстрирования в RabbitMQ.
// Канал открывается лениво и пересоздается после ошибки публикации.
type Publisher struct {
	open   func(ctx context.Context) (amqpChannel, error)
	queues Queues
	appID  string
	mu     sync.Mutex
	ch     amqpChannel
	logger *zap.Logger
}

// NewPublisher создает публикатор поверх соединения.
func NewPublisher(conn *Connection, queues Queues, appID string, logger *zap.Logger) *Publisher {
	return newPublisher(func(ctx context.Context) (amqpChannel, error) {
		ch, err := conn.Channel(ctx)
		if err != nil {
			return nil, err
		}
		return ch, nil
	}, queues, appID, logger)
}

func newPublisher(open func(ctx context.Context) (amqpChannel, error), queues Queues, appID string, logger *zap.Logger) *Publisher {
	return &Publisher{
		open:   open,
		queues: queues,
		appID:  appID,
		logger: logger.Named("Publisher"),
	}
}

// DispatchGeneration публикует задачу генерации.
func (p *Publisher) DispatchGeneration(ctx context.Context, payload models.GenerationTaskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal generation task %s: %w", payload.GenerationID, err)
	}
	if err := p.publish(ctx, p.queues.Generation, payload.GenerationID.String(), body); err != nil {
		return fmt.Errorf("publish generation task %s: %w", payload.GenerationID, err)
	}
	metrics.TasksDispatched.WithLabelValues("generation", transportName).Inc()
	return nil
}

// DispatchIllustration публикует задачу иллюстрирования.
func (p *Publisher) DispatchIllustration(ctx context.Context, payload models.IllustrationTaskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal illustration task %s: %w", payload.TaskID, err)
	}
	if err := p.publish(ctx, p.queues.Illustration, payload.TaskID, body); err != nil {
		return fmt.Errorf("publish illustration task %s: %w", payload.TaskID, err)
	}
	metrics.TasksDispatched.WithLabelValues("illustration", transportName).Inc()
	return nil
}

func (p *Publisher) publish(ctx context.Context, queue, messageID string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		var ch amqpChannel
		ch, err = p.channel(ctx)
		if err == nil {
			err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    messageID,
				Timestamp:    time.Now(),
				AppId:        p.appID,
				Body:         body,
			})
			if err == nil {
				p.logger.Debug("Message published", zap.String("queue", queue), zap.String("messageID", messageID))
				return nil
			}
			p.resetChannel()
		}
		p.logger.Warn("Publish attempt failed",
			zap.String("queue", queue), zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return err
}

// channel возвращает открытый канал с объявленной топологией. Вызывается под p.mu.
func (p *Publisher) channel(ctx context.Context) (amqpChannel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	ch, err := p.open(ctx)
	if err != nil {
		return nil, err
	}
	if err := DeclareTopology(ch, p.queues); err != nil {
		_ = ch.Close()
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

func (p *Publisher) resetChannel() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
}

// Close закрывает канал публикатора.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetChannel()
	return nil
}

var (
	_ interfaces.GenerationDispatcher   = (*Publisher)(nil)
	_ interfaces.IllustrationDispatcher = (*Publisher)(nil)
)
