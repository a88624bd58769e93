package events

import (
	"LiveChat/internal/lib/sl"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

type Publisher interface {
	Publish(ctx context.Context, key string, msg Envelope) error
	Close() error
}

type ConnectionOptions struct {
	URL           string
	Exchange      string
	RetryAttempts int
	Delay         time.Duration
}

const maxDelay = 60 * time.Second

// DialWithRetry connects to RabbitMQ with exponential backoff and gives up
// when ctx is cancelled.
func DialWithRetry(ctx context.Context, opts ConnectionOptions, log *slog.Logger) (*amqp091.Connection, error) {
	attempts := opts.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := amqp091.Dial(opts.URL)
		if err == nil {
			if i > 1 {
				log.Info("rabbit connected", slog.Int("attempt", i))
			}
			return conn, nil
		}
		lastErr = err
		if i == attempts {
			break
		}

		sleep := opts.Delay * time.Duration(math.Pow(2, float64(i-1)))
		if sleep > maxDelay {
			sleep = maxDelay
		}
		log.Warn("rabbit dial failed",
			slog.Int("attempt", i),
			slog.Duration("sleep", sleep),
			sl.Err(err),
		)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.New("dial cancelled: " + ctx.Err().Error())
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, lastErr)
}

type rmqPublisher struct {
	conn     *amqp091.Connection
	exchange string
	log      *slog.Logger
}

// NewRabbit declares the topic exchange and returns a publisher on it.
func NewRabbit(ctx context.Context, opts ConnectionOptions, logger *slog.Logger) (Publisher, error) {
	log := logger.With(sl.Module("events"))

	conn, err := DialWithRetry(ctx, opts, log)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	defer ch.Close()

	if err = ch.ExchangeDeclare(opts.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &rmqPublisher{
		conn:     conn,
		exchange: opts.Exchange,
		log:      log,
	}, nil
}

func (r *rmqPublisher) Publish(ctx context.Context, key string, msg Envelope) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	err = ch.PublishWithContext(
		ctx, r.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    msg.Meta.ID,
			Type:         msg.Meta.Type,
			Timestamp:    msg.Meta.Time,
			AppId:        msg.Meta.Producer,
			Body:         body,
		},
	)
	if err == nil {
		r.log.Debug("published", slog.String("key", key), slog.String("exchange", r.exchange))
	}
	return err
}

func (r *rmqPublisher) Close() error {
	return r.conn.Close()
}

// Fallback is used when no broker is configured; it only logs.
type Fallback struct {
	log *slog.Logger
}

func NewFallback(logger *slog.Logger) *Fallback {
	return &Fallback{log: logger.With(sl.Module("events"))}
}

func (f *Fallback) Publish(_ context.Context, key string, msg Envelope) error {
	f.log.Debug("publish skipped", slog.String("key", key), slog.String("id", msg.Meta.ID))
	return nil
}

func (f *Fallback) Close() error {
	return nil
}
