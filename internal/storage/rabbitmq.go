package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"resume-agent-go/internal/config"
	applog "resume-agent-go/internal/logger"
)

// ConsumeResult tells the consumer loop what to do with a delivery.
type ConsumeResult int

const (
	// ConsumeAck acknowledges the message.
	ConsumeAck ConsumeResult = iota
	// ConsumeRetry rejects the message and requeues it.
	ConsumeRetry
	// ConsumeDrop acknowledges the message without processing it. Used for
	// poison messages that would fail forever.
	ConsumeDrop
)

// MessageQueue is the broker surface the upload path and the indexing
// consumer depend on.
type MessageQueue interface {
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error
	PublishJSON(ctx context.Context, exchangeName, routingKey string, data any, persistent bool) error
	EnsureExchange(exchangeName, exchangeType string, durable bool) error
	EnsureQueue(queueName string, durable bool) error
	BindQueue(queueName, exchangeName, routingKey string) error
	Close() error
}

var _ MessageQueue = (*RabbitMQ)(nil)

// RabbitMQ wraps one AMQP connection with a channel pool and declaration
// caching.
type RabbitMQ struct {
	conn         *amqp.Connection
	channelPool  sync.Pool
	exchangeMap  map[string]bool
	queueMap     map[string]bool
	bindingMap   map[string]bool
	declareMutex sync.Mutex
	publishMutex sync.Mutex
	cfg          *config.RabbitMQConfig
}

// NewRabbitMQ dials the broker and prepares the channel pool.
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil {
		return nil, fmt.Errorf("rabbitmq config cannot be nil")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("rabbitmq URL is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	mq := &RabbitMQ{
		conn:        conn,
		exchangeMap: make(map[string]bool),
		queueMap:    make(map[string]bool),
		bindingMap:  make(map[string]bool),
		cfg:         cfg,
	}
	mq.channelPool = sync.Pool{
		New: func() any {
			ch, chErr := conn.Channel()
			if chErr != nil {
				applog.Error().Err(chErr).Msg("failed to open RabbitMQ channel")
				return nil
			}
			return ch
		},
	}

	testCh := mq.getChannel()
	if testCh == nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a RabbitMQ channel")
	}
	mq.putChannel(testCh)

	applog.Info().Msg("connected to RabbitMQ")
	return mq, nil
}

func (r *RabbitMQ) getChannel() *amqp.Channel {
	ch := r.channelPool.Get()
	if ch == nil {
		newCh, err := r.conn.Channel()
		if err != nil {
			applog.Error().Err(err).Msg("failed to open RabbitMQ channel")
			return nil
		}
		return newCh
	}
	return ch.(*amqp.Channel)
}

func (r *RabbitMQ) putChannel(ch *amqp.Channel) {
	if ch != nil {
		r.channelPool.Put(ch)
	}
}

// Close closes the underlying connection.
func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}

// EnsureExchange declares the exchange once per process.
func (r *RabbitMQ) EnsureExchange(exchangeName, exchangeType string, durable bool) error {
	if exchangeName == "" {
		return fmt.Errorf("exchange name must not be empty")
	}

	r.declareMutex.Lock()
	defer r.declareMutex.Unlock()
	if r.exchangeMap[exchangeName] {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("failed to get RabbitMQ channel")
	}
	defer r.putChannel(ch)

	err := ch.ExchangeDeclare(
		exchangeName,
		exchangeType,
		durable,
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchangeName, err)
	}

	r.exchangeMap[exchangeName] = true
	return nil
}

// EnsureQueue declares the queue once per process.
func (r *RabbitMQ) EnsureQueue(queueName string, durable bool) error {
	r.declareMutex.Lock()
	defer r.declareMutex.Unlock()
	if r.queueMap[queueName] {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("failed to get RabbitMQ channel")
	}
	defer r.putChannel(ch)

	_, err := ch.QueueDeclare(
		queueName,
		durable,
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	r.queueMap[queueName] = true
	return nil
}

// BindQueue binds the queue to the exchange once per process.
func (r *RabbitMQ) BindQueue(queueName, exchangeName, routingKey string) error {
	bindingKey := fmt.Sprintf("%s:%s:%s", exchangeName, queueName, routingKey)

	r.declareMutex.Lock()
	defer r.declareMutex.Unlock()
	if r.bindingMap[bindingKey] {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("failed to get RabbitMQ channel")
	}
	defer r.putChannel(ch)

	if err := ch.QueueBind(queueName, routingKey, exchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s to exchange %s: %w", queueName, exchangeName, err)
	}

	r.bindingMap[bindingKey] = true
	return nil
}

// PublishMessage publishes raw bytes to the exchange.
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("failed to get RabbitMQ channel")
	}
	defer r.putChannel(ch)

	var deliveryMode uint8 = amqp.Transient
	if persistent {
		deliveryMode = amqp.Persistent
	}

	return ch.PublishWithContext(
		ctx,
		exchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: deliveryMode,
			ContentType:  "application/json",
			Body:         message,
			Timestamp:    time.Now(),
		},
	)
}

// PublishJSON marshals data and publishes it.
func (r *RabbitMQ) PublishJSON(ctx context.Context, exchangeName, routingKey string, data any, persistent bool) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return r.PublishMessage(ctx, exchangeName, routingKey, jsonData, persistent)
}

// ConsumerOptions tunes one consumer.
type ConsumerOptions struct {
	// Workers is the number of goroutines draining the queue. Zero means 1.
	Workers int
	// RetryBackoff is how long a worker waits before requeueing a delivery
	// the handler asked to retry. Zero requeues immediately.
	RetryBackoff time.Duration
}

// StartConsumer consumes queueName on a dedicated channel until the returned
// channel is closed. The handler decides per delivery whether to ack, retry
// or drop; it must be safe for concurrent calls when Workers > 1.
func (r *RabbitMQ) StartConsumer(queueName string, prefetchCount int, opts ConsumerOptions, handler func([]byte) ConsumeResult) (chan<- struct{}, error) {
	stopCh := make(chan struct{})

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	ch := r.getChannel()
	if ch == nil {
		return nil, fmt.Errorf("failed to get RabbitMQ channel")
	}

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		r.putChannel(ch)
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := ch.Consume(
		queueName,
		"",    // consumer tag, server-generated
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		r.putChannel(ch)
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	applog.Info().
		Str("queue", queueName).
		Int("prefetch", prefetchCount).
		Int("workers", workers).
		Msg("RabbitMQ consumer started")

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.consumeLoop(stopCh, deliveries, opts.RetryBackoff, handler)
		}()
	}
	go func() {
		wg.Wait()
		r.putChannel(ch)
		applog.Info().Str("queue", queueName).Msg("RabbitMQ consumer stopped")
	}()

	return stopCh, nil
}

func (r *RabbitMQ) consumeLoop(stopCh <-chan struct{}, deliveries <-chan amqp.Delivery, retryBackoff time.Duration, handler func([]byte) ConsumeResult) {
	for {
		select {
		case <-stopCh:
			return
		case delivery, ok := <-deliveries:
			if !ok {
				applog.Warn().Msg("RabbitMQ delivery channel closed")
				return
			}

			switch handler(delivery.Body) {
			case ConsumeAck:
				if err := delivery.Ack(false); err != nil {
					applog.Error().Err(err).Msg("failed to ack message")
				}
			case ConsumeRetry:
				// Holding the delivery before the requeue keeps a failing
				// message from spinning through the queue at full speed.
				if retryBackoff > 0 {
					select {
					case <-stopCh:
					case <-time.After(retryBackoff):
					}
				}
				if err := delivery.Nack(false, true); err != nil {
					applog.Error().Err(err).Msg("failed to nack message")
				}
			case ConsumeDrop:
				// Poison message: ack so it never cycles back.
				if err := delivery.Ack(false); err != nil {
					applog.Error().Err(err).Msg("failed to ack dropped message")
				}
			}
		}
	}
}
