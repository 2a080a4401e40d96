package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP publishes signals to a topic exchange. Dispatch notices route by
// service id so each runtime adapter binds only the services it manages;
// terminations fan out on a fixed key.
type AMQP struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
}

const terminateRoutingKey = "job.terminate"

// NewAMQP dials the broker and declares the exchange.
func NewAMQP(amqpURL, exchange string, logger *slog.Logger) (*AMQP, error) {
	if strings.TrimSpace(amqpURL) == "" {
		return nil, errors.New("executor: amqp url is required")
	}
	if strings.TrimSpace(exchange) == "" {
		return nil, errors.New("executor: amqp exchange is required")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("executor: dial amqp broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("executor: open amqp channel: %w", err)
	}
	if err := channel.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("executor: declare exchange %s: %w", exchange, err)
	}
	return &AMQP{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// Dispatch publishes the notice with routing key work.{serviceID}.
func (a *AMQP) Dispatch(ctx context.Context, notice Notice) error {
	return a.publish(ctx, "work."+notice.ServiceID, notice)
}

// Terminate publishes the job id on the termination key.
func (a *AMQP) Terminate(ctx context.Context, jobID string) error {
	return a.publish(ctx, terminateRoutingKey, map[string]string{"jobID": jobID})
}

func (a *AMQP) publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("executor: encode amqp payload: %w", err)
	}
	err = a.channel.PublishWithContext(ctx,
		a.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("executor: publish %s: %w", routingKey, err)
	}
	if a.logger != nil {
		a.logger.Debug("published executor signal",
			slog.String("exchange", a.exchange),
			slog.String("routing_key", routingKey),
			slog.Int("body_size", len(body)))
	}
	return nil
}

// Close releases the channel and connection.
func (a *AMQP) Close() error {
	var errs []error
	if a.channel != nil {
		if err := a.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
