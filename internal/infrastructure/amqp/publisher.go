// Package amqp publishes committed ledger events to a RabbitMQ topic
// exchange. The routing key of every message is its event type.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"finledger/internal/domain/ledger"
)

const publishTimeout = 5 * time.Second

// channel is the subset of *amqp091.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher implements ledger.EventPublisher.
type Publisher struct {
	url      string
	exchange string
	log      zerolog.Logger

	mu   sync.Mutex
	conn *amqp091.Connection
	ch   channel
}

var _ ledger.EventPublisher = (*Publisher)(nil)

// NewPublisher dials url, retrying with exponential backoff up to
// maxAttempts times, and declares a durable topic exchange.
func NewPublisher(ctx context.Context, url, exchange string, maxAttempts int, log zerolog.Logger) (*Publisher, error) {
	p := &Publisher{
		url:      url,
		exchange: exchange,
		log:      log.With().Str("component", "amqp").Str("exchange", exchange).Logger(),
	}

	var err error
	for attempt := 0; attempt < max(maxAttempts, 1); attempt++ {
		if attempt > 0 {
			delay := exponentialBackoff(attempt - 1)
			p.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("AMQP connection failed")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		if err = p.connect(); err == nil {
			p.log.Info().Msg("connected to AMQP broker")
			return p, nil
		}
	}
	return nil, err
}

func (p *Publisher) connect() error {
	conn, err := amqp091.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}

	p.conn = conn
	p.ch = ch
	return nil
}

// Publish sends each event as a persistent JSON message. A connection
// failure triggers one reconnect before the event is given up.
func (p *Publisher) Publish(ctx context.Context, events ...ledger.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, e := range events {
		msg, err := newPublishing(e)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		err = p.publish(ctx, string(e.Type), msg)
		if err != nil && isConnectionError(err) && p.url != "" {
			p.log.Warn().Err(err).Msg("AMQP channel lost, reconnecting")
			p.closeLocked()
			if err = p.connect(); err == nil {
				err = p.publish(ctx, string(e.Type), msg)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", e.Type, err))
			continue
		}

		p.log.Debug().
			Str("event", string(e.Type)).
			Int64("company_id", e.CompanyID).
			Int64("entity_id", e.EntityID).
			Msg("published ledger event")
	}
	return errors.Join(errs...)
}

func (p *Publisher) publish(ctx context.Context, key string, msg amqp091.Publishing) error {
	if p.ch == nil {
		return errors.New("channel closed")
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, msg)
}

func newPublishing(e ledger.Event) (amqp091.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    e.OccurredAt,
		Type:         string(e.Type),
		Body:         body,
	}, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *Publisher) closeLocked() error {
	if p.ch != nil {
		p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		if err != nil && !errors.Is(err, amqp091.ErrClosed) {
			return err
		}
	}
	return nil
}

// exponentialBackoff doubles from one second and caps at 30 seconds.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 4 {
		return 30 * time.Second
	}
	return time.Duration(1<<attempt) * time.Second
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection", "channel closed", "EOF", "broken pipe"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
