package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ayush/tipfinity/internal/models"
)

// Webhook event types declared by the payment provider.
const (
	EventTipCreated   = "tip.created"
	EventTipConfirmed = "tip.confirmed"
	EventTipFailed    = "tip.failed"
)

// WebhookEvent is one validated variant of a provider tip webhook.
type WebhookEvent interface {
	EventType() string
	Validate() error
}

// TipCreated reports a new tip. Forwarding it is a create-tip mutation.
type TipCreated struct {
	Tip models.CreateTipInput `json:"tip"`
}

func (TipCreated) EventType() string { return EventTipCreated }

func (e TipCreated) Validate() error { return ValidateTip(e.Tip) }

// TipConfirmed reports on-chain finality of a recorded tip.
type TipConfirmed struct {
	TransactionSignature string `json:"transaction_signature"`
	Slot                 uint64 `json:"slot,omitempty"`
}

func (TipConfirmed) EventType() string { return EventTipConfirmed }

func (e TipConfirmed) Validate() error {
	if strings.TrimSpace(e.TransactionSignature) == "" {
		return Invalid("transaction_signature", "is required")
	}
	return nil
}

// TipFailed reports that a tip transaction did not land.
type TipFailed struct {
	TransactionSignature string `json:"transaction_signature"`
	Reason               string `json:"reason,omitempty"`
}

func (TipFailed) EventType() string { return EventTipFailed }

func (e TipFailed) Validate() error {
	if strings.TrimSpace(e.TransactionSignature) == "" {
		return Invalid("transaction_signature", "is required")
	}
	return nil
}

type webhookWire struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ParseWebhook decodes a provider payload into its variant and validates it.
func ParseWebhook(raw []byte) (WebhookEvent, error) {
	var wire struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, Invalid("payload", "malformed JSON")
	}
	if len(wire.Data) == 0 {
		return nil, Invalid("data", "is required")
	}

	var ev WebhookEvent
	switch wire.Type {
	case EventTipCreated:
		var v TipCreated
		if err := decodeData(wire.Data, &v); err != nil {
			return nil, err
		}
		ev = v
	case EventTipConfirmed:
		var v TipConfirmed
		if err := decodeData(wire.Data, &v); err != nil {
			return nil, err
		}
		ev = v
	case EventTipFailed:
		var v TipFailed
		if err := decodeData(wire.Data, &v); err != nil {
			return nil, err
		}
		ev = v
	case "":
		return nil, Invalid("type", "is required")
	default:
		return nil, Invalid("type", fmt.Sprintf("unknown event type %q", wire.Type))
	}

	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// decodeData decodes an event's data. Fields the provider adds beyond the
// known ones are ignored.
func decodeData(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return Invalid("data", err.Error())
	}
	return nil
}

// ValidateTip checks the local preconditions of a tip before it is sent.
func ValidateTip(in models.CreateTipInput) error {
	switch {
	case in.CreatorID <= 0:
		return Invalid("creator_id", "is required")
	case strings.TrimSpace(in.TipperWallet) == "":
		return Invalid("tipper_wallet", "is required")
	case !in.TipAmount.IsPositive():
		return Invalid("tip_amount", "must be greater than zero")
	case strings.TrimSpace(in.TransactionSignature) == "":
		return Invalid("transaction_signature", "is required")
	}
	return nil
}
