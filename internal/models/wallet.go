package models

// WalletLinkRequest is the JSON body for POST /wallet/link. It is built per
// attempt and never persisted.
type WalletLinkRequest struct {
	PublicKey string `json:"public_key"`
	Message   string `json:"message"`
	Signature string `json:"signature"` // base64
	CreatorID int64  `json:"creator_id"`
}

// WalletLinkResult is the data of POST /wallet/link.
type WalletLinkResult struct {
	Verified      bool   `json:"verified"`
	WalletAddress string `json:"wallet_address"`
}
