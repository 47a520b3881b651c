package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	applog "finassist/internal/log"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
	requeueDelay   = 2 * time.Second
)

// ErrReject tells a consumer to drop a message instead of requeueing it.
// Handlers wrap permanent failures (bad input) with it.
var ErrReject = errors.New("reject message")

// Client publishes and consumes finassist messages on one direct exchange.
// Publishing goes through a circuit breaker; consumers reconnect with
// exponential backoff when the broker connection drops.
type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu          sync.Mutex
	conn        *amqp091.Connection
	channel     *amqp091.Channel
	lastFailure time.Time

	state        int32
	failureCount int64
}

// NewClient connects to url and declares exchangeName plus the ingest
// queue queueName, bound with its own name as routing key.
func NewClient(url, exchangeName, queueName string) (*Client, error) {
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connectLocked() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := c.setup(channel); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.conn, c.channel = conn, channel
	return nil
}

func (c *Client) setup(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	return c.declareQueue(ch, c.queueName, c.queueName)
}

func (c *Client) declareQueue(ch *amqp091.Channel, queue, routingKey string) error {
	_, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}

	if err := ch.QueueBind(queue, routingKey, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue, routingKey, err)
	}
	return nil
}

// channelFor returns a live channel, reconnecting if the previous one died.
func (c *Client) channelFor() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	c.closeLocked()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c.channel, nil
}

// PublishIngestRequest queues text for ingestion and returns the message id.
func (c *Client) PublishIngestRequest(ctx context.Context, userID int64, text string) (string, error) {
	msg := NewIngestRequest(userID, text)
	if err := msg.Validate(); err != nil {
		return "", err
	}
	if err := c.publish(ctx, c.queueName, msg); err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "Published ingest request",
		applog.FieldMessageID, msg.ID,
		applog.FieldUserID, userID,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return msg.ID, nil
}

// PublishExpenseRecorded announces a new ledger entry.
func (c *Client) PublishExpenseRecorded(ctx context.Context, expenseID, userID int64) error {
	msg := NewExpenseRecorded(expenseID, userID)
	if err := c.publish(ctx, RoutingKeyExpenseRecorded, msg); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Published expense recorded event",
		applog.FieldMessageID, msg.ID,
		applog.FieldExpenseID, expenseID,
		applog.FieldUserID, userID,
		"routing_key", RoutingKeyExpenseRecorded)
	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, msg any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("circuit breaker is open, not publishing to %s", routingKey)
	}

	body, err := marshal(msg)
	if err != nil {
		return err
	}

	ch, err := c.channelFor()
	if err != nil {
		c.recordFailure()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.reset()
		}
		return fmt.Errorf("publish message: %w", err)
	}

	c.recordSuccess()
	return nil
}

// ConsumeIngestRequests delivers ingest requests to handler until ctx is
// cancelled.
func (c *Client) ConsumeIngestRequests(ctx context.Context, handler func(context.Context, *IngestRequest) error) error {
	return c.consume(ctx, c.queueName, c.queueName, func(ctx context.Context, body []byte) (string, error) {
		msg, err := decode[IngestRequest](body)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrReject, err)
		}
		return msg.ID, handler(ctx, msg)
	})
}

// ConsumeExpenseRecorded declares queue, binds it to expense.recorded and
// delivers events to handler until ctx is cancelled.
func (c *Client) ConsumeExpenseRecorded(ctx context.Context, queue string, handler func(context.Context, *ExpenseRecorded) error) error {
	return c.consume(ctx, queue, RoutingKeyExpenseRecorded, func(ctx context.Context, body []byte) (string, error) {
		msg, err := decode[ExpenseRecorded](body)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrReject, err)
		}
		return msg.ID, handler(ctx, msg)
	})
}

// consume runs one consumer on queue and re-establishes it with backoff
// whenever the delivery channel closes.
func (c *Client) consume(ctx context.Context, queue, routingKey string, handle func(context.Context, []byte) (string, error)) error {
	for attempt := 0; ; attempt++ {
		msgs, err := c.startConsumer(queue, routingKey)
		if err == nil {
			slog.InfoContext(ctx, "Started consuming", "queue", queue, "routing_key", routingKey)
			attempt = 0
			if err = c.drain(ctx, queue, msgs, handle); err == nil {
				return ctx.Err()
			}
		}

		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "Consumer interrupted, reconnecting",
			"queue", queue,
			"attempt", attempt+1,
			"backoff", wait.String(),
			applog.FieldError, err)
		c.reset()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) startConsumer(queue, routingKey string) (<-chan amqp091.Delivery, error) {
	ch, err := c.channelFor()
	if err != nil {
		return nil, err
	}
	if queue != c.queueName {
		if err := c.declareQueue(ch, queue, routingKey); err != nil {
			return nil, err
		}
	}
	msgs, err := ch.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack (we want manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("start consuming %s: %w", queue, err)
	}
	return msgs, nil
}

// drain returns nil when ctx is cancelled and an error when the broker
// closed the delivery channel.
func (c *Client) drain(ctx context.Context, queue string, msgs <-chan amqp091.Delivery, handle func(context.Context, []byte) (string, error)) error {
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "queue", queue, "reason", ctx.Err())
			return nil
		case delivery, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", queue)
			}

			id, err := handle(ctx, delivery.Body)
			switch {
			case err == nil:
				delivery.Ack(false)
				slog.InfoContext(ctx, "Message processed", "queue", queue, applog.FieldMessageID, id)
			case errors.Is(err, ErrReject):
				slog.ErrorContext(ctx, "Message rejected", "queue", queue, applog.FieldMessageID, id, applog.FieldError, err)
				delivery.Nack(false, false)
			default:
				slog.ErrorContext(ctx, "Message handling failed, requeueing", "queue", queue, applog.FieldMessageID, id, applog.FieldError, err)
				// a failing dependency would otherwise get the message back immediately
				select {
				case <-ctx.Done():
				case <-time.After(requeueDelay):
				}
				delivery.Nack(false, true)
			}
		}
	}
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()

	if time.Since(last) > openTimeout {
		atomic.StoreInt32(&c.state, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()

	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		if atomic.SwapInt32(&c.state, StateOpen) != StateOpen {
			slog.Warn("AMQP circuit breaker opened", "failures", n)
		}
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		if err != nil && !errors.Is(err, amqp091.ErrClosed) {
			return err
		}
	}
	return nil
}

// exponentialBackoff returns 1s, 2s, 4s... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "closed network"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
