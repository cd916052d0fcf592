// Package notification delivers alerts for trading events: order intents,
// risk halts, and engine faults.
package notification

import (
	"context"
	"fmt"
	"log"

	"breakout-systemv1/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts to the process log (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans an alert out to several backends. Delivery failures are
// logged per backend, never propagated: one dead webhook must not block
// the others.
type Multi struct {
	backends []Notifier
}

// NewMulti creates a fan-out notifier.
func NewMulti(backends ...Notifier) *Multi {
	return &Multi{backends: backends}
}

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	for _, b := range m.backends {
		if err := b.Send(ctx, alert); err != nil {
			log.Printf("[notify] backend delivery failed: %v", err)
		}
	}
	return nil
}

// IntentAlert builds the alert for a journaled order intent.
func IntentAlert(intent *model.OrderIntent) Alert {
	return Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("%s %s %s:%s", intent.Strategy, intent.Action, intent.Venue, intent.Symbol),
		Message: fmt.Sprintf("qty=%d price=%.2f reason=%s",
			intent.Qty, model.Dollars(intent.Price), intent.Reason),
	}
}

// FaultAlert builds the alert for an engine fault.
func FaultAlert(component string, err error) Alert {
	return Alert{
		Level:   AlertCritical,
		Title:   fmt.Sprintf("%s fault", component),
		Message: err.Error(),
	}
}
