// Package notify delivers payment confirmations to the email pipeline.
// Messages go to a RabbitMQ topic exchange; a mailer consumes them.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Shivanand-hulikatti/conference-registration/internal/model"
)

const (
	ExchangeName = "registration_events"
	ExchangeType = "topic"

	RoutingPaymentConfirmation = "email.payment_confirmation"
)

// SetupConn dials RabbitMQ and declares the registration exchange.
func SetupConn(ctx context.Context, url string, logger *slog.Logger) (*amqp.Connection, *amqp.Channel, error) {
	var (
		conn *amqp.Connection
		err  error
	)
	for attempt := 1; attempt <= 5; attempt++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		logger.Warn("rabbitmq connect failed, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName, // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("could not declare exchange: %w", err)
	}
	return conn, ch, nil
}

// channel is the part of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes payment confirmations as persistent JSON messages.
type AMQPNotifier struct {
	ch channel
}

// NewAMQPNotifier wraps an open channel, normally the one SetupConn returns.
func NewAMQPNotifier(ch *amqp.Channel) *AMQPNotifier {
	return &AMQPNotifier{ch: ch}
}

func (n *AMQPNotifier) SendPaymentConfirmation(ctx context.Context, c model.PaymentConfirmation) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("could not marshal confirmation: %w", err)
	}
	err = n.ch.PublishWithContext(ctx,
		ExchangeName,               // exchange
		RoutingPaymentConfirmation, // routing key
		false,                      // mandatory
		false,                      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    c.OrderID,
			Timestamp:    c.PaidAt,
			Type:         RoutingPaymentConfirmation,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish confirmation: %w", err)
	}
	return nil
}

// LogNotifier writes confirmations to the log. Used when no broker is
// configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) SendPaymentConfirmation(_ context.Context, c model.PaymentConfirmation) error {
	n.Logger.Info("payment confirmation",
		"registrant_id", c.RegistrantID,
		"email", c.Email,
		"order_id", c.OrderID,
		"gateway_payment_id", c.GatewayPaymentID,
		"amount", c.Amount,
		"currency", c.Currency)
	return nil
}
