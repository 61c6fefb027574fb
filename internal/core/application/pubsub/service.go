package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tdex-network/tdex-escrow/internal/core/domain"
	"github.com/tdex-network/tdex-escrow/internal/core/ports"
)

const (
	EventTradeUpdated   = "TRADE_UPDATED"
	EventTradeStalled   = "TRADE_STALLED"
	EventTradeCompleted = "TRADE_COMPLETED"
	EventTradeFailed    = "TRADE_FAILED"
	EventDisputeUpdated = "DISPUTE_UPDATED"
	EventAny            = ports.AnyTopic
)

var events = map[string]struct{}{
	EventTradeUpdated:   {},
	EventTradeStalled:   {},
	EventTradeCompleted: {},
	EventTradeFailed:    {},
	EventDisputeUpdated: {},
	EventAny:            {},
}

// Webhook is the request of an operator to be notified of an event.
type Webhook struct {
	Event    string
	Endpoint string
	Secret   string
}

// WebhookInfo is the public view of a registered webhook, the secret is
// never returned.
type WebhookInfo struct {
	ID        string
	Event     string
	Endpoint  string
	IsSecured bool
}

// Service notifies the registered webhooks of the changes of the trades.
// It implements the event publisher of the trade protocol.
type Service struct {
	pubsub ports.PubSub
}

func NewService(pubsub ports.PubSub) (*Service, error) {
	if pubsub == nil {
		return nil, fmt.Errorf("missing pubsub")
	}
	return &Service{pubsub}, nil
}

func (s *Service) AddWebhook(_ context.Context, webhook Webhook) (string, error) {
	if _, ok := events[webhook.Event]; !ok {
		return "", fmt.Errorf("invalid webhook event type %q", webhook.Event)
	}
	return s.pubsub.Subscribe(webhook.Event, webhook.Endpoint, webhook.Secret)
}

func (s *Service) RemoveWebhook(_ context.Context, id string) error {
	return s.pubsub.Unsubscribe(ports.UnspecifiedTopic, id)
}

// ListWebhooks returns the webhooks notified for the given event, or all of
// them if event is empty.
func (s *Service) ListWebhooks(
	_ context.Context, event string,
) ([]WebhookInfo, error) {
	if _, ok := events[event]; !ok && event != ports.UnspecifiedTopic {
		return nil, fmt.Errorf("invalid webhook event type %q", event)
	}
	subs := s.pubsub.ListSubscriptionsForTopic(event)
	webhooks := make([]WebhookInfo, 0, len(subs))
	for _, sub := range subs {
		webhooks = append(webhooks, WebhookInfo{
			ID:        sub.Id(),
			Event:     sub.Topic(),
			Endpoint:  sub.NotifyAt(),
			IsSecured: sub.IsSecured(),
		})
	}
	return webhooks, nil
}

// PublishTradeUpdate notifies TRADE_UPDATED for every change of a trade,
// plus the more specific events the new state of the trade matches.
func (s *Service) PublishTradeUpdate(trade domain.Trade) error {
	for _, event := range eventsForTrade(trade) {
		payload := getTradePayload(trade)
		payload["event"] = event
		if event == EventTradeStalled {
			payload["advice"] = domain.Advice(&trade)
		}

		message, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if err := s.pubsub.Publish(event, string(message)); err != nil {
			return fmt.Errorf("failed to publish %s: %w", event, err)
		}
	}
	return nil
}

func (s *Service) Close() {
	//nolint
	s.pubsub.Close()
}

func eventsForTrade(trade domain.Trade) []string {
	events := []string{EventTradeUpdated}
	switch {
	case trade.IsCompleted():
		events = append(events, EventTradeCompleted)
	case trade.IsFailed():
		events = append(events, EventTradeFailed)
	case trade.Stall.IsStalled():
		events = append(events, EventTradeStalled)
	}
	if trade.Dispute.Code != domain.DisputeNone {
		events = append(events, EventDisputeUpdated)
	}
	return events
}
