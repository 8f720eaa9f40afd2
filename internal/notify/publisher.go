package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// envelope wraps every published message with routing metadata.
type envelope struct {
	MessageID   string    `json:"messageId"`
	MessageType []string  `json:"messageType"`
	Message     any       `json:"message"`
	SentTime    time.Time `json:"sentTime"`
	Host        string    `json:"host"`
}

// Publisher sends watchdog events to RabbitMQ fanout exchanges.
type Publisher struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	host   string
	logger *slog.Logger
}

// NewPublisher creates a Publisher connected to the given AMQP URL.
// If url is empty, returns a no-op publisher that logs events instead of
// sending them.
func NewPublisher(url string, logger *slog.Logger) (*Publisher, error) {
	host, _ := os.Hostname()

	if url == "" {
		logger.Info("RabbitMQ URL not configured, using no-op publisher")
		return &Publisher{host: host, logger: logger}, nil
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	return &Publisher{
		conn:   conn,
		ch:     ch,
		host:   host,
		logger: logger,
	}, nil
}

// Publish sends one event to the exchange derived from its type.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	typeName, exchangeName := eventMeta(event)

	env := envelope{
		MessageID:   generateID(),
		MessageType: []string{typeName},
		Message:     event,
		SentTime:    time.Now().UTC(),
		Host:        p.host,
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// No-op mode: just log.
	if p.ch == nil {
		p.logger.Info("event published (no-op)", "type", typeName, "exchange", exchangeName)
		return nil
	}

	if err := p.ch.ExchangeDeclare(exchangeName, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchangeName, err)
	}

	return p.ch.PublishWithContext(ctx, exchangeName, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// Notify implements Sink by publishing an AlertRaisedEvent.
func (p *Publisher) Notify(ctx context.Context, severity Severity, message string) error {
	return p.Publish(ctx, AlertRaisedEvent{
		EventID:   generateID(),
		Timestamp: time.Now().UTC(),
		Host:      p.host,
		Severity:  severity.String(),
		Message:   message,
	})
}

// Close cleanly shuts down the AMQP connection.
func (p *Publisher) Close() error {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Host returns the hostname stamped on published events.
func (p *Publisher) Host() string { return p.host }

func eventMeta(event any) (typeName, exchangeName string) {
	switch event.(type) {
	case StateChangedEvent:
		return "urn:message:Pulsewatch.Events:WatchdogStateChanged",
			"Pulsewatch.Events:WatchdogStateChanged"
	case AlertRaisedEvent:
		return "urn:message:Pulsewatch.Events:WatchdogAlertRaised",
			"Pulsewatch.Events:WatchdogAlertRaised"
	case RemediationAttemptedEvent:
		return "urn:message:Pulsewatch.Events:RemediationAttempted",
			"Pulsewatch.Events:RemediationAttempted"
	default:
		return "urn:message:Unknown", "Unknown"
	}
}

func generateID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
