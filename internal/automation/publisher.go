package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"engagement-service/internal/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	publishTimeout    = 2 * time.Second
	reconnectDelay    = 5 * time.Second
	maxReconnectDelay = time.Minute
)

// Publisher sends milestone events to a topic exchange, one routing key per
// event name. Delivery is best effort: failures are logged, never returned.
// Fire never dials; a lost connection is restored in the background and
// events fired meanwhile are dropped.
type Publisher struct {
	cfg  config.RabbitConfig
	log  *logrus.Logger
	dial func() (*amqp.Connection, *amqp.Channel, error)
	done chan struct{}

	mu           sync.Mutex
	conn         *amqp.Connection
	channel      *amqp.Channel
	reconnecting bool
	closed       bool
	wg           sync.WaitGroup
}

func NewPublisher(cfg config.RabbitConfig, log *logrus.Logger) (*Publisher, error) {
	p := newPublisher(cfg, log)
	p.dial = p.dialBroker

	conn, ch, err := p.dial()
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	p.conn = conn
	p.channel = ch
	return p, nil
}

func newPublisher(cfg config.RabbitConfig, log *logrus.Logger) *Publisher {
	return &Publisher{
		cfg:  cfg,
		log:  log,
		done: make(chan struct{}),
	}
}

func (p *Publisher) dialBroker() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(p.cfg.URL())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		p.cfg.AutomationExchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"host":     p.cfg.Host,
		"exchange": p.cfg.AutomationExchange,
	}).Info("automation publisher connected")
	return conn, ch, nil
}

// startReconnect must be called with mu held.
func (p *Publisher) startReconnect() {
	if p.reconnecting || p.closed {
		return
	}
	p.reconnecting = true

	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}

	p.wg.Add(1)
	go p.reconnect()
}

func (p *Publisher) reconnect() {
	defer p.wg.Done()

	delay := reconnectDelay
	for attempt := 1; ; attempt++ {
		conn, ch, err := p.dial()
		if err == nil {
			p.mu.Lock()
			p.reconnecting = false
			if p.closed {
				p.mu.Unlock()
				ch.Close()
				conn.Close()
				return
			}
			p.conn = conn
			p.channel = ch
			p.mu.Unlock()
			return
		}

		p.log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Warn("automation publisher reconnect failed, retrying")

		select {
		case <-time.After(delay):
		case <-p.done:
			p.mu.Lock()
			p.reconnecting = false
			p.mu.Unlock()
			return
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

func (p *Publisher) Fire(ctx context.Context, event string, payload map[string]any) {
	body, err := json.Marshal(map[string]any{
		"event":     event,
		"payload":   payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		p.log.WithError(err).WithField("event", event).Error("failed to encode automation event")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil || p.channel.IsClosed() {
		p.startReconnect()
		p.log.WithField("event", event).Warn("automation publisher unavailable, dropping event")
		return
	}

	err = p.channel.PublishWithContext(ctx,
		p.cfg.AutomationExchange,
		event,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		p.log.WithError(err).WithField("event", event).Warn("failed to publish automation event")
		return
	}

	p.log.WithField("event", event).Debug("automation event published")
}

func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}
