package walletlink

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/ayush/tipfinity/internal/api"
	"github.com/ayush/tipfinity/internal/models"
	"github.com/ayush/tipfinity/internal/session"
	"github.com/ayush/tipfinity/internal/wallet"
)

type memSlot struct {
	mu   sync.Mutex
	data []byte
}

func (m *memSlot) Load(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data, nil
}

func (m *memSlot) Save(_ context.Context, b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = b
	return nil
}

func (m *memSlot) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}

type fakeLinkAPI struct {
	calls  []models.WalletLinkRequest
	res    models.WalletLinkResult
	err    error
	onLink func()
}

func (f *fakeLinkAPI) LinkWallet(_ context.Context, in models.WalletLinkRequest) (models.WalletLinkResult, error) {
	f.calls = append(f.calls, in)
	if f.onLink != nil {
		f.onLink()
	}
	return f.res, f.err
}

type fixedSigner struct {
	key string
	sig []byte
	err error
}

func (s fixedSigner) PublicKey() string { return s.key }

func (s fixedSigner) SignMessage(context.Context, []byte) ([]byte, error) { return s.sig, s.err }

type fixture struct {
	linker   *Linker
	api      *fakeLinkAPI
	sessions *session.Store
	wallets  *wallet.Connector
	keypair  *wallet.Keypair
}

func newFixture(t *testing.T, sessionCreator *models.Creator) *fixture {
	t.Helper()
	ctx := context.Background()
	sessions := session.NewStore(&memSlot{}, session.PolicyAlways, nil)
	t.Cleanup(sessions.Close)
	if sessionCreator != nil {
		if err := sessions.SetCreator(ctx, sessionCreator); err != nil {
			t.Fatalf("set creator: %v", err)
		}
	}
	kp, err := wallet.FromSeed(bytes.Repeat([]byte{3}, 32))
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	wallets := wallet.NewConnector()
	linkAPI := &fakeLinkAPI{}
	return &fixture{
		linker:   NewLinker(linkAPI, sessions, wallets, "Tipfinity", nil),
		api:      linkAPI,
		sessions: sessions,
		wallets:  wallets,
		keypair:  kp,
	}
}

func ana() *models.Creator {
	return &models.Creator{ID: 1, Username: "ana", DisplayName: "Ana"}
}

func TestLinkVerified(t *testing.T) {
	f := newFixture(t, ana())
	f.wallets.Connect(context.Background(), f.keypair)
	f.api.res = models.WalletLinkResult{Verified: true, WalletAddress: f.keypair.PublicKey()}

	if got := f.linker.State(); got != StateReadyToLink {
		t.Fatalf("expected ready_to_link, got %s", got)
	}
	out, err := f.linker.Link(context.Background())
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if out.State != StateLinked || out.WalletAddress != f.keypair.PublicKey() {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	if len(f.api.calls) != 1 {
		t.Fatalf("expected 1 backend call, got %d", len(f.api.calls))
	}
	req := f.api.calls[0]
	if req.Message != "Link wallet to Tipfinity account: ana" || req.CreatorID != 1 || req.PublicKey != f.keypair.PublicKey() {
		t.Fatalf("unexpected request: %+v", req)
	}
	sig, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		t.Fatalf("signature encoding: %v", err)
	}
	if ok, _ := wallet.Verify(req.PublicKey, []byte(req.Message), sig); !ok {
		t.Fatal("submitted signature does not verify")
	}

	cur := f.sessions.Current()
	if !cur.HasWallet() || *cur.WalletAddress != f.keypair.PublicKey() {
		t.Fatalf("session not updated: %+v", cur)
	}
	if f.linker.State() != StateLinked {
		t.Fatalf("expected linked, got %s", f.linker.State())
	}
}

func TestLinkUnverifiedLeavesSessionUntouched(t *testing.T) {
	f := newFixture(t, ana())
	f.wallets.Connect(context.Background(), f.keypair)
	f.api.err = &api.ProtocolError{Message: "wallet signature was not verified"}

	out, err := f.linker.Link(context.Background())
	if !api.IsProtocol(err) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if out.State != StateLinkFailed {
		t.Fatalf("expected link_failed, got %s", out.State)
	}
	if f.sessions.Current().HasWallet() {
		t.Fatal("unverified link changed the session")
	}
	if len(f.api.calls) != 1 {
		t.Fatalf("expected exactly one attempt, got %d", len(f.api.calls))
	}
	if f.linker.State() != StateReadyToLink || f.linker.LastError() == nil {
		t.Fatalf("expected retry to be possible with the error kept, got %s %v", f.linker.State(), f.linker.LastError())
	}
}

func TestLinkTransportFailureIsNotRetried(t *testing.T) {
	f := newFixture(t, ana())
	f.wallets.Connect(context.Background(), f.keypair)
	f.api.err = &api.TransportError{Op: "link", Err: errors.New("connection reset")}

	if _, err := f.linker.Link(context.Background()); !api.IsTransport(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if len(f.api.calls) != 1 {
		t.Fatalf("expected exactly one attempt, got %d", len(f.api.calls))
	}
}

func TestLinkDeclinedSignature(t *testing.T) {
	f := newFixture(t, ana())
	f.wallets.Connect(context.Background(), fixedSigner{key: f.keypair.PublicKey(), err: wallet.ErrDeclined})

	_, err := f.linker.Link(context.Background())
	if !api.IsValidation(err) || !errors.Is(err, wallet.ErrDeclined) {
		t.Fatalf("expected declined ValidationError, got %v", err)
	}
	if len(f.api.calls) != 0 {
		t.Fatal("declined signature reached the backend")
	}
}

func TestLinkSignerWithoutSigning(t *testing.T) {
	f := newFixture(t, ana())
	f.wallets.Connect(context.Background(), fixedSigner{key: f.keypair.PublicKey(), err: wallet.ErrNoSigning})

	if _, err := f.linker.Link(context.Background()); !errors.Is(err, wallet.ErrNoSigning) {
		t.Fatalf("expected ErrNoSigning, got %v", err)
	}
}

func TestLinkBadLocalSignature(t *testing.T) {
	f := newFixture(t, ana())
	f.wallets.Connect(context.Background(), fixedSigner{key: f.keypair.PublicKey(), sig: make([]byte, 64)})

	if _, err := f.linker.Link(context.Background()); !api.IsProtocol(err) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if len(f.api.calls) != 0 {
		t.Fatal("unverifiable signature reached the backend")
	}
}

func TestLinkPreconditions(t *testing.T) {
	linked := ana()
	linked.WalletAddress = models.StringPtr("Wal1")

	tests := []struct {
		name    string
		creator *models.Creator
		connect bool
		want    State
	}{
		{"no wallet", ana(), false, StateIdle},
		{"no session", nil, true, StateIdle},
		{"already linked", linked, true, StateLinked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.creator)
			if tt.connect {
				f.wallets.Connect(context.Background(), f.keypair)
			}
			out, err := f.linker.Link(context.Background())
			if !api.IsValidation(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if out.State != tt.want || f.linker.State() != tt.want {
				t.Fatalf("expected %s, got outcome %s state %s", tt.want, out.State, f.linker.State())
			}
			if len(f.api.calls) != 0 {
				t.Fatal("precondition failure reached the backend")
			}
		})
	}
}

func TestEmptyAddressFallsBackToPublicKey(t *testing.T) {
	f := newFixture(t, ana())
	f.wallets.Connect(context.Background(), f.keypair)
	f.api.res = models.WalletLinkResult{Verified: true}

	out, err := f.linker.Link(context.Background())
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if out.WalletAddress != f.keypair.PublicKey() {
		t.Fatalf("expected public key fallback, got %q", out.WalletAddress)
	}
}

func TestChallengeMessage(t *testing.T) {
	if got := ChallengeMessage("Tipfinity", "bob"); got != "Link wallet to Tipfinity account: bob" {
		t.Fatalf("unexpected challenge %q", got)
	}
}

func TestLinkOutcomeFollowsSessionWhenSuperseded(t *testing.T) {
	f := newFixture(t, ana())
	ctx := context.Background()
	f.wallets.Connect(ctx, f.keypair)
	f.api.res = models.WalletLinkResult{Verified: true, WalletAddress: f.keypair.PublicKey()}
	f.api.onLink = func() {
		if err := f.sessions.Clear(ctx); err != nil {
			t.Errorf("clear: %v", err)
		}
	}

	out, err := f.linker.Link(ctx)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if !out.Superseded {
		t.Fatalf("expected superseded outcome: %+v", out)
	}
	if out.State != f.linker.State() || out.State != StateIdle {
		t.Fatalf("outcome state %s does not match linker state %s", out.State, f.linker.State())
	}
	if f.sessions.IsAuthenticated() {
		t.Fatal("cleared session was restored by the link")
	}
}
