package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Circulation event types published to the topic exchange. Routing key equals
// the event type so consumers can bind selectively (e.g. "fine.*").
const (
	EventLoanCreated  = "loan.created"
	EventLoanReturned = "loan.returned"
	EventLoanOverdue  = "loan.overdue"
	EventLoanLost     = "loan.lost"
	EventLoanDamaged  = "loan.damaged"
	EventFineIssued   = "fine.issued"
)

// Event is the wire payload for circulation notifications.
type Event struct {
	Type        string    `json:"type"`
	LoanID      string    `json:"loanId,omitempty"`
	BookID      string    `json:"bookId,omitempty"`
	MemberID    string    `json:"memberId,omitempty"`
	FineID      string    `json:"fineId,omitempty"`
	AmountCents int64     `json:"amountCents,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Publisher sends circulation events to a RabbitMQ topic exchange. A nil
// *Publisher is valid and drops events, so event publishing stays optional.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewPublisher dials RabbitMQ and declares the exchange.
func NewPublisher(url, exchange string) (*Publisher, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("amqp url required")
	}
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = "library.events"
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish sends one event. Safe to call on a nil Publisher.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if p == nil {
		return nil
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.exchange, ev.Type, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   ev.OccurredAt,
		Body:        body,
	})
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		_ = p.conn.Close()
		return err
	}
	return p.conn.Close()
}
