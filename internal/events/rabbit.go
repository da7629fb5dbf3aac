package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"storefront-checkout/internal/domain"
)

const CheckoutEventsQueue = "checkout.lifecycle"

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// envelope is the broker wire format of a checkout event.
type envelope struct {
	EventType string               `json:"eventType"`
	Event     domain.CheckoutEvent `json:"event"`
	Timestamp time.Time            `json:"timestamp"`
}

type RabbitPublisher struct {
	ch    channel
	queue string
}

func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	return conn, nil
}

func NewRabbitPublisher(conn *amqp.Connection) (*RabbitPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(CheckoutEventsQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare %s: %w", CheckoutEventsQueue, err)
	}
	return &RabbitPublisher{ch: ch, queue: CheckoutEventsQueue}, nil
}

func (p *RabbitPublisher) Close() error {
	return p.ch.Close()
}

func (p *RabbitPublisher) Publish(ctx context.Context, ev domain.CheckoutEvent) error {
	body, err := json.Marshal(envelope{
		EventType: "Checkout" + eventSuffix(ev.State),
		Event:     ev,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal checkout event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    fmt.Sprintf("%s:%s", ev.OrderID, ev.State),
			Body:         body,
		},
	)
}

func eventSuffix(s domain.AttemptState) string {
	switch s {
	case domain.AttemptSubmitted:
		return "Submitted"
	case domain.AttemptAwaitingCapture:
		return "AwaitingCapture"
	case domain.AttemptCompleted:
		return "Completed"
	case domain.AttemptFailed:
		return "Failed"
	case domain.AttemptCanceled:
		return "Canceled"
	default:
		return "StateChanged"
	}
}
