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

const (
	reconnectDelay       = 5 * time.Second
	maxConnectAttempts   = 5
	connectAttemptJitter = 500 * time.Millisecond
)

// ErrConnectionClosed - соединение закрыто через Close и больше не восстанавливается.
var ErrConnectionClosed = errors.New("rabbitmq connection closed")

// Connection держит соединение с RabbitMQ и переоткрывает его при разрыве.
// Каналы открываются по требованию: публикатор и консьюмеры пересоздают их сами.
type Connection struct {
	url    string
	mu     sync.Mutex
	conn   *amqp.Connection
	closed bool
	logger *zap.Logger
}

// Connect устанавливает соединение, делая несколько попыток с паузой.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Connection, error) {
	c := &Connection{url: url, logger: logger.Named("RabbitMQ")}
	if _, err := c.connection(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Channel открывает новый канал, переподключаясь при необходимости.
func (c *Connection) Channel(ctx context.Context) (*amqp.Channel, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	return ch, nil
}

func (c *Connection) connection(ctx context.Context) (*amqp.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConnectionClosed
	}
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn, nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		conn, err := amqp.Dial(c.url)
		if err == nil {
			c.conn = conn
			c.logger.Info("Connected to RabbitMQ", zap.Int("attempt", attempt))
			return conn, nil
		}
		lastErr = err
		c.logger.Warn("Failed to connect to RabbitMQ, retrying",
			zap.Int("attempt", attempt), zap.Duration("delay", reconnectDelay), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(reconnectDelay + time.Duration(attempt)*connectAttemptJitter):
		}
	}
	return nil, fmt.Errorf("connect to rabbitmq after %d attempts: %w", maxConnectAttempts, lastErr)
}

// Close закрывает соединение.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}
