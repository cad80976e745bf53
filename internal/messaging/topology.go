package messaging

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	dlqRoutingKey = "dlq"
	// transportName - метка транспорта в метрике TasksDispatched.
	transportName = "rabbitmq"
)

// Queues - имена очередей задач. DLX и DLQ выводятся из очереди генерации.
type Queues struct {
	Generation   string
	Illustration string
}

// DeadLetterExchange возвращает имя DLX очереди генерации.
func (q Queues) DeadLetterExchange() string {
	return q.Generation + "_dlx"
}

// DeadLetterQueue возвращает имя DLQ очереди генерации.
func (q Queues) DeadLetterQueue() string {
	return q.Generation + "_dlq"
}

// amqpChannel - часть *amqp.Channel, нужная публикатору и объявлению топологии.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// generationQueueArgs - аргументы очереди генерации. Публикатор и консьюмер
// объявляют ее одинаково, иначе брокер вернет PRECONDITION_FAILED.
func generationQueueArgs(q Queues) amqp.Table {
	return amqp.Table{
		"x-queue-mode":              "lazy",
		"x-dead-letter-exchange":    q.DeadLetterExchange(),
		"x-dead-letter-routing-key": dlqRoutingKey,
	}
}

// DeclareTopology объявляет DLX, DLQ и обе очереди задач. Идемпотентна.
func DeclareTopology(ch amqpChannel, q Queues) error {
	if err := ch.ExchangeDeclare(q.DeadLetterExchange(), amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange '%s': %w", q.DeadLetterExchange(), err)
	}
	if _, err := ch.QueueDeclare(q.DeadLetterQueue(), true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue '%s': %w", q.DeadLetterQueue(), err)
	}
	if err := ch.QueueBind(q.DeadLetterQueue(), dlqRoutingKey, q.DeadLetterExchange(), false, nil); err != nil {
		return fmt.Errorf("bind queue '%s' to '%s': %w", q.DeadLetterQueue(), q.DeadLetterExchange(), err)
	}
	if _, err := ch.QueueDeclare(q.Generation, true, false, false, false, generationQueueArgs(q)); err != nil {
		return fmt.Errorf("declare queue '%s': %w", q.Generation, err)
	}
	if _, err := ch.QueueDeclare(q.Illustration, true, false, false, false, amqp.Table{"x-queue-mode": "lazy"}); err != nil {
		return fmt.Errorf("declare queue '%s': %w", q.Illustration, err)
	}
	return nil
}
