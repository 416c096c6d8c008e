package models

import "time"

// Tip is an immutable tipping event. TransactionSignature is unique per tip.
type Tip struct {
	ID                   int64     `json:"id"`
	CreatorID            int64     `json:"creator_id"`
	TipperWallet         string    `json:"tipper_wallet"`
	TipAmount            Amount    `json:"tip_amount"`
	Message              *string   `json:"message,omitempty"`
	TransactionSignature string    `json:"transaction_signature"`
	CreatedAt            time.Time `json:"created_at"`
}

// CreateTipInput is the JSON body for POST /tips.
type CreateTipInput struct {
	CreatorID            int64   `json:"creator_id"`
	TipperWallet         string  `json:"tipper_wallet"`
	TipAmount            Amount  `json:"tip_amount"`
	Message              *string `json:"message,omitempty"`
	TransactionSignature string  `json:"transaction_signature"`
}

// TipTotal is the aggregate of all tips recorded for one creator.
type TipTotal struct {
	CreatorID int64  `json:"creator_id"`
	Count     int    `json:"count"`
	Total     Amount `json:"total"`
}

// SumTips aggregates tips for creatorID. Tips for other creators are ignored.
func SumTips(creatorID int64, tips []Tip) TipTotal {
	out := TipTotal{CreatorID: creatorID}
	for _, t := range tips {
		if t.CreatorID != creatorID {
			continue
		}
		out.Count++
		out.Total = out.Total.Add(t.TipAmount)
	}
	return out
}
