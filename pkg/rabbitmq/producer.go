/**
 * @description
 * This package provides the RabbitMQ-backed implementation of the notification
 * collaborator. Approval and rejection notifications are published as events
 * on a durable topic exchange for the notification service to deliver; the
 * ledger engine never waits on delivery.
 *
 * @dependencies
 * - context, encoding/json, time: Standard Go libraries.
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
)

const (
	routingKeyContributionApproved = "contribution.approved"
	routingKeyContributionRejected = "contribution.rejected"
)

// ContributionDecisionEvent is the payload published when a contribution is
// approved or rejected.
type ContributionDecisionEvent struct {
	ContributionID uuid.UUID       `json:"contribution_id"`
	DonorID        uuid.UUID       `json:"donor_id"`
	Amount         decimal.Decimal `json:"amount"`
	CaseTitle      string          `json:"case_title"`
	Reason         string          `json:"reason,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// EventProducer holds the RabbitMQ connection and channel for publishing messages.
type EventProducer struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
	SendApprovalNotification(ctx context.Context, contributionID, donorID uuid.UUID, amount decimal.Decimal, caseTitle string) error
	SendRejectionNotification(ctx context.Context, contributionID, donorID uuid.UUID, amount decimal.Decimal, caseTitle, reason string) error
	Close()
}

// EventProducerFallback is a minimal no-op publisher used when RabbitMQ is unavailable at startup.
type EventProducerFallback struct{}

func (p *EventProducerFallback) Publish(ctx context.Context, routingKey string, body interface{}) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"publish skipped\" routing_key=%s", routingKey)
	return nil
}

func (p *EventProducerFallback) SendApprovalNotification(ctx context.Context, contributionID, donorID uuid.UUID, amount decimal.Decimal, caseTitle string) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"approval notification skipped\" contribution_id=%s", contributionID)
	return nil
}

func (p *EventProducerFallback) SendRejectionNotification(ctx context.Context, contributionID, donorID uuid.UUID, amount decimal.Decimal, caseTitle, reason string) error {
	log.Printf("level=warn component=rabbitmq_producer mode=fallback msg=\"rejection notification skipped\" contribution_id=%s", contributionID)
	return nil
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	// If any stray characters precede the scheme, slice from first occurrence of amqp
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer creates and returns a new EventProducer publishing to the
// given topic exchange.
func NewEventProducer(amqpURL, exchange string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	// Use a bounded dial timeout so startup does not hang indefinitely
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{conn: conn, channel: ch, exchange: exchange}, nil
}

// Publish sends a message to the producer's exchange with a routing key.
func (p *EventProducer) Publish(ctx context.Context, routingKey string, body interface{}) error {
	// Ensure the exchange exists (durable topic)
	if err := p.channel.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	); err != nil {
		log.Printf("level=warn component=rabbitmq_producer msg=\"exchange declare failed; reopening channel\" exchange=%s err=%v", p.exchange, err)
		// Attempt simple channel reopen once
		if p.conn != nil {
			if ch, chErr := p.conn.Channel(); chErr == nil {
				p.channel = ch
				if err2 := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err2 != nil {
					return err2
				}
			} else {
				return chErr
			}
		} else {
			return err
		}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		log.Printf("level=error component=rabbitmq_producer msg=\"json marshal failed\" routing_key=%s err=%v", routingKey, err)
		return err
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        jsonBody,
		},
	)
	if err != nil {
		log.Printf("level=warn component=rabbitmq_producer msg=\"publish failed; reopening channel\" routing_key=%s err=%v", routingKey, err)
		// One-shot retry: reopen channel and try again
		if p.conn != nil {
			if ch, chErr := p.conn.Channel(); chErr == nil {
				p.channel = ch
				// re-declare exchange and retry
				if exErr := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); exErr == nil {
					err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
						ContentType: "application/json",
						Timestamp:   time.Now(),
						Body:        jsonBody,
					})
					if err == nil {
						return nil
					}
				}
			}
		}
		return err
	}
	return nil
}

// SendApprovalNotification publishes a contribution.approved event.
func (p *EventProducer) SendApprovalNotification(ctx context.Context, contributionID, donorID uuid.UUID, amount decimal.Decimal, caseTitle string) error {
	return p.Publish(ctx, routingKeyContributionApproved, ContributionDecisionEvent{
		ContributionID: contributionID,
		DonorID:        donorID,
		Amount:         amount,
		CaseTitle:      caseTitle,
		Timestamp:      time.Now().UTC(),
	})
}

// SendRejectionNotification publishes a contribution.rejected event.
func (p *EventProducer) SendRejectionNotification(ctx context.Context, contributionID, donorID uuid.UUID, amount decimal.Decimal, caseTitle, reason string) error {
	return p.Publish(ctx, routingKeyContributionRejected, ContributionDecisionEvent{
		ContributionID: contributionID,
		DonorID:        donorID,
		Amount:         amount,
		CaseTitle:      caseTitle,
		Reason:         reason,
		Timestamp:      time.Now().UTC(),
	})
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *EventProducer) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
