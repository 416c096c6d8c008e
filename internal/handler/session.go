package handler

import (
	"net/http"

	"github.com/ayush/tipfinity/internal/middleware"
	"github.com/ayush/tipfinity/internal/models"
	"github.com/ayush/tipfinity/internal/wallet"
	"github.com/ayush/tipfinity/internal/walletlink"
)

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	health, err := h.app.Queries.Health(r.Context())
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

type sessionView struct {
	Authenticated bool            `json:"authenticated"`
	Creator       *models.Creator `json:"creator"`
	Wallet        walletView      `json:"wallet"`
}

type walletView struct {
	Connected bool   `json:"connected"`
	PublicKey string `json:"public_key,omitempty"`
}

func toWalletView(st wallet.Status) walletView {
	return walletView{Connected: st.Connected, PublicKey: st.PublicKey}
}

// Session returns the current creator session and wallet connection.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	c := h.app.Sessions.Current()
	writeJSON(w, http.StatusOK, sessionView{
		Authenticated: c != nil,
		Creator:       c,
		Wallet:        toWalletView(h.app.Wallets.Status()),
	})
}

// Logout clears the session and its durable entry.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Sessions.Clear(r.Context()); err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) WalletStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toWalletView(h.app.Wallets.Status()))
}

func (h *Handler) ConnectWallet(w http.ResponseWriter, r *http.Request) {
	st, err := h.app.ConnectWallet(r.Context())
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toWalletView(st))
}

// DisconnectWallet disconnects the wallet. Depending on the disconnect
// policy this may also end the session.
func (h *Handler) DisconnectWallet(w http.ResponseWriter, r *http.Request) {
	st := h.app.DisconnectWallet(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":        toWalletView(st),
		"authenticated": h.app.Sessions.IsAuthenticated(),
	})
}

type linkView struct {
	State         string `json:"state"`
	WalletAddress string `json:"wallet_address,omitempty"`
	Challenge     string `json:"challenge,omitempty"`
	LastError     string `json:"last_error,omitempty"`
}

func (h *Handler) LinkState(w http.ResponseWriter, r *http.Request) {
	c, _ := middleware.Creator(r.Context())
	v := linkView{State: h.app.Linker.State().String()}
	if c.HasWallet() {
		v.WalletAddress = *c.WalletAddress
	} else {
		v.Challenge = walletlink.ChallengeMessage(h.app.Platform, c.Username)
	}
	if err := h.app.Linker.LastError(); err != nil {
		v.LastError = err.Error()
	}
	writeJSON(w, http.StatusOK, v)
}

// LinkWallet runs one link attempt for the session creator.
func (h *Handler) LinkWallet(w http.ResponseWriter, r *http.Request) {
	out, err := h.app.Linker.Link(r.Context())
	if err != nil {
		writeError(w, h.app.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, linkView{State: out.State.String(), WalletAddress: out.WalletAddress})
}
