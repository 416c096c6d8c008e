// Package walletlink binds a wallet address to the session creator by
// proving control of the wallet's private key.
//
// The proof is a signature over a challenge built from the creator's
// username. The creator record is only updated after the backend reports the
// signature verified. An attempt is never retried on the caller's behalf.
package walletlink

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ayush/tipfinity/internal/api"
	"github.com/ayush/tipfinity/internal/models"
	"github.com/ayush/tipfinity/internal/wallet"
)

type State int

const (
	StateIdle State = iota
	StateReadyToLink
	StateLinking
	StateLinked
	StateLinkFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReadyToLink:
		return "ready_to_link"
	case StateLinking:
		return "linking"
	case StateLinked:
		return "linked"
	case StateLinkFailed:
		return "link_failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ChallengeMessage is the text a wallet signs to prove ownership.
func ChallengeMessage(platform, username string) string {
	return fmt.Sprintf("Link wallet to %s account: %s", platform, username)
}

// LinkAPI submits a signed challenge. Implementations return a
// ProtocolError when the backend answers verified=false.
type LinkAPI interface {
	LinkWallet(ctx context.Context, in models.WalletLinkRequest) (models.WalletLinkResult, error)
}

// Sessions is the part of the session store the protocol reads and writes.
type Sessions interface {
	Current() *models.Creator
	ApplyWalletLink(ctx context.Context, creatorID int64, address string) (bool, error)
}

// Wallets exposes the connected signer.
type Wallets interface {
	Signer() (wallet.Signer, bool)
}

// Linker runs the challenge-response exchange.
type Linker struct {
	api      LinkAPI
	sessions Sessions
	wallets  Wallets
	platform string
	logger   *slog.Logger

	mu      sync.Mutex
	linking bool
	lastErr error
}

func NewLinker(linkAPI LinkAPI, sessions Sessions, wallets Wallets, platform string, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{api: linkAPI, sessions: sessions, wallets: wallets, platform: platform, logger: logger}
}

// State derives the current protocol state. A failed attempt returns the
// protocol to ReadyToLink; LastError keeps the failure for display.
func (l *Linker) State() State {
	l.mu.Lock()
	linking := l.linking
	l.mu.Unlock()
	if linking {
		return StateLinking
	}
	_, connected := l.wallets.Signer()
	cur := l.sessions.Current()
	switch {
	case !connected || cur == nil:
		return StateIdle
	case cur.HasWallet():
		return StateLinked
	default:
		return StateReadyToLink
	}
}

func (l *Linker) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Outcome is the result of one Link call.
type Outcome struct {
	State         State
	WalletAddress string
	// Superseded is set when the backend verified the link but the session
	// changed before it could be applied. State is then derived from the
	// current session.
	Superseded bool
}

// Link performs exactly one attempt.
func (l *Linker) Link(ctx context.Context) (Outcome, error) {
	l.mu.Lock()
	if l.linking {
		l.mu.Unlock()
		return Outcome{State: StateLinking}, api.Invalid("wallet", "a link attempt is already in progress")
	}
	signer, connected := l.wallets.Signer()
	cur := l.sessions.Current()
	switch {
	case !connected:
		l.mu.Unlock()
		return Outcome{State: StateIdle}, api.Invalid("wallet", "no wallet connected")
	case cur == nil:
		l.mu.Unlock()
		return Outcome{State: StateIdle}, api.Invalid("session", "no creator session")
	case cur.HasWallet():
		l.mu.Unlock()
		return Outcome{State: StateLinked, WalletAddress: *cur.WalletAddress}, api.Invalid("wallet", "creator already has a linked wallet")
	}
	l.linking = true
	l.mu.Unlock()

	out, err := l.attempt(ctx, signer, cur)

	l.mu.Lock()
	l.linking = false
	l.lastErr = err
	l.mu.Unlock()

	if err != nil {
		l.logger.Warn("wallet link failed", "creator_id", cur.ID, "error", err)
		return Outcome{State: StateLinkFailed}, err
	}
	if out.Superseded {
		out.State = l.State()
		return out, nil
	}
	l.logger.Info("wallet linked", "creator_id", cur.ID, "wallet", out.WalletAddress)
	return out, nil
}

func (l *Linker) attempt(ctx context.Context, signer wallet.Signer, cur *models.Creator) (Outcome, error) {
	publicKey := signer.PublicKey()
	if publicKey == "" {
		return Outcome{}, api.Invalid("wallet", "wallet has no public key")
	}

	// Built fresh for every attempt so a stale challenge is never signed.
	msg := ChallengeMessage(l.platform, cur.Username)
	sig, err := signer.SignMessage(ctx, []byte(msg))
	switch {
	case errors.Is(err, wallet.ErrNoSigning):
		return Outcome{}, &api.ValidationError{Field: "wallet", Message: "wallet cannot sign messages", Err: err}
	case errors.Is(err, wallet.ErrDeclined):
		return Outcome{}, &api.ValidationError{Field: "signature", Message: "signature request was declined", Err: err}
	case err != nil:
		return Outcome{}, fmt.Errorf("sign challenge: %w", err)
	}

	if ok, verr := wallet.Verify(publicKey, []byte(msg), sig); verr == nil && !ok {
		return Outcome{}, &api.ProtocolError{Message: "wallet produced a signature that does not verify"}
	}

	res, err := l.api.LinkWallet(ctx, models.WalletLinkRequest{
		PublicKey: publicKey,
		Message:   msg,
		Signature: base64.StdEncoding.EncodeToString(sig),
		CreatorID: cur.ID,
	})
	if err != nil {
		return Outcome{}, err
	}
	if !res.Verified {
		return Outcome{}, &api.ProtocolError{Message: "wallet signature was not verified"}
	}

	addr := res.WalletAddress
	if addr == "" {
		addr = publicKey
	}
	applied, err := l.sessions.ApplyWalletLink(ctx, cur.ID, addr)
	if err != nil {
		return Outcome{}, fmt.Errorf("persist linked wallet: %w", err)
	}
	if !applied {
		l.logger.Info("wallet verified but session changed before it was applied", "creator_id", cur.ID)
		return Outcome{WalletAddress: addr, Superseded: true}, nil
	}
	return Outcome{State: StateLinked, WalletAddress: addr}, nil
}
