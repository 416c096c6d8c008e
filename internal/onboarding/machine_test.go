package onboarding

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ayush/tipfinity/internal/api"
)

type fakeEnv struct {
	wallet  bool
	session bool
}

func (e *fakeEnv) WalletConnected() bool { return e.wallet }
func (e *fakeEnv) HasSession() bool      { return e.session }

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestParseStep(t *testing.T) {
	tests := map[string]Step{
		"1":   StepEmail,
		"3":   StepCustomize,
		" 4 ": StepConnectWallet,
		"5":   StepComplete,
		"0":   StepEmail,
		"9":   StepEmail,
		"abc": StepEmail,
		"":    StepEmail,
	}
	for marker, want := range tests {
		if got := ParseStep(marker); got != want {
			t.Fatalf("ParseStep(%q) = %s, want %s", marker, got, want)
		}
	}
}

func TestFullFlow(t *testing.T) {
	env := &fakeEnv{}
	var got Profile
	m := NewMachine(env, func(_ context.Context, p Profile) error {
		got = p
		return nil
	}, nil)

	if err := m.SubmitEmail("  ana@example.com "); err != nil {
		t.Fatalf("email: %v", err)
	}
	if m.Step() != StepCode {
		t.Fatalf("expected code step, got %s", m.Step())
	}
	for i, d := range "123456" {
		if _, err := m.EnterDigit(i, string(d)); err != nil {
			t.Fatalf("digit %d: %v", i, err)
		}
	}
	if err := m.SubmitCode(); err != nil {
		t.Fatalf("code: %v", err)
	}
	if m.Step() != StepConnectWallet {
		t.Fatalf("expected wallet step, got %s", m.Step())
	}
	if err := m.SkipWallet(); err != nil {
		t.Fatalf("skip wallet: %v", err)
	}
	if _, err := m.AttachAvatar(context.Background(), bytes.NewReader(pngHeader), ""); err != nil {
		t.Fatalf("avatar: %v", err)
	}
	if err := m.SubmitProfile(context.Background(), "ana"); err != nil {
		t.Fatalf("profile: %v", err)
	}

	if m.Step() != StepComplete {
		t.Fatalf("expected complete, got %s", m.Step())
	}
	if got.Email != "ana@example.com" || got.Username != "ana" || got.Avatar == nil || got.Avatar.ContentType != "image/png" {
		t.Fatalf("unexpected profile: %+v", got)
	}
	v := m.View()
	if v.Email != "" || v.AvatarURI != "" || v.Code[0] != "" {
		t.Fatalf("machine kept state after completion: %+v", v)
	}
}

func TestGatedTransitions(t *testing.T) {
	m := NewMachine(&fakeEnv{}, nil, nil)

	if err := m.SubmitEmail(" "); !api.IsValidation(err) {
		t.Fatalf("expected validation error for empty email, got %v", err)
	}
	if err := m.SubmitCode(); !api.IsValidation(err) {
		t.Fatalf("expected out-of-order code submission to fail, got %v", err)
	}
	if err := m.SubmitEmail("a@b.c"); err != nil {
		t.Fatalf("email: %v", err)
	}
	m.EnterDigit(0, "1")
	if err := m.SubmitCode(); !api.IsValidation(err) {
		t.Fatalf("expected incomplete code to fail, got %v", err)
	}
	if m.Step() != StepCode {
		t.Fatalf("expected to stay on code, got %s", m.Step())
	}
}

func TestCodeFocus(t *testing.T) {
	m := NewMachine(&fakeEnv{}, nil, nil)

	if focus, _ := m.EnterDigit(0, "4"); focus != 1 {
		t.Fatalf("expected focus 1, got %d", focus)
	}
	if focus, _ := m.EnterDigit(5, "9"); focus != 5 {
		t.Fatalf("last position should keep focus, got %d", focus)
	}
	if focus, _ := m.EnterDigit(2, ""); focus != 2 {
		t.Fatalf("clearing should keep focus, got %d", focus)
	}
	if focus := m.Backspace(2); focus != 1 {
		t.Fatalf("backspace on empty should move back, got %d", focus)
	}
	if focus := m.Backspace(0); focus != 0 {
		t.Fatalf("backspace at first position should stay, got %d", focus)
	}
	if focus := m.Backspace(5); focus != 5 {
		t.Fatalf("backspace on filled position should stay, got %d", focus)
	}

	for _, bad := range []string{"a", "12", "-"} {
		if _, err := m.EnterDigit(1, bad); !api.IsValidation(err) {
			t.Fatalf("expected %q rejected, got %v", bad, err)
		}
	}
	if _, err := m.EnterDigit(CodeLength, "1"); !api.IsValidation(err) {
		t.Fatalf("expected out of range index rejected, got %v", err)
	}
}

func TestResume(t *testing.T) {
	m := NewMachine(&fakeEnv{}, nil, nil)
	if got := m.Resume("3"); got != StepCustomize {
		t.Fatalf("expected customize, got %s", got)
	}
	if err := m.SubmitProfile(context.Background(), "ana"); err != nil {
		t.Fatalf("profile without earlier steps: %v", err)
	}
	if got := m.Resume("bogus"); got != StepEmail {
		t.Fatalf("expected fallback to email, got %s", got)
	}
}

func TestWalletConnectAutoAdvances(t *testing.T) {
	env := &fakeEnv{}
	m := NewMachine(env, nil, nil)
	m.Resume("4")

	env.wallet = true
	if got := m.WalletChanged(); got != StepConnectWallet {
		t.Fatalf("advanced without a session: %s", got)
	}
	env.session = true
	if got := m.WalletChanged(); got != StepCustomize {
		t.Fatalf("expected customize, got %s", got)
	}

	// Resuming straight into the wallet step with both present advances at once.
	if got := NewMachine(env, nil, nil).Resume("4"); got != StepCustomize {
		t.Fatalf("expected resume to advance, got %s", got)
	}
}

func TestSkip(t *testing.T) {
	m := NewMachine(&fakeEnv{}, nil, nil)
	want := []Step{StepCode, StepConnectWallet, StepCustomize, StepComplete, StepComplete}
	for i, w := range want {
		if got := m.Skip(); got != w {
			t.Fatalf("skip %d: expected %s, got %s", i, w, got)
		}
	}
}

func TestAvatarRules(t *testing.T) {
	m := NewMachine(&fakeEnv{}, nil, nil)
	if _, err := m.AttachAvatar(context.Background(), bytes.NewReader(pngHeader), "image/png"); !api.IsValidation(err) {
		t.Fatalf("expected avatar outside customize to fail, got %v", err)
	}

	m.Resume("3")
	if _, err := m.AttachAvatar(context.Background(), strings.NewReader("plain text"), ""); !api.IsValidation(err) {
		t.Fatalf("expected non-image rejected, got %v", err)
	}
	m.maxAvatar = 8
	if _, err := m.AttachAvatar(context.Background(), bytes.NewReader(pngHeader), "image/png"); !api.IsValidation(err) {
		t.Fatalf("expected oversized avatar rejected, got %v", err)
	}
	m.maxAvatar = 1 << 20
	uri, err := m.AttachAvatar(context.Background(), bytes.NewReader(pngHeader), "image/png")
	if err != nil {
		t.Fatalf("avatar: %v", err)
	}
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Fatalf("unexpected preview %q", uri)
	}
}

func TestFailedCompletionStaysOnCustomize(t *testing.T) {
	boom := errors.New("backend down")
	m := NewMachine(&fakeEnv{}, func(context.Context, Profile) error { return boom }, nil)
	m.Resume("3")

	if err := m.SubmitProfile(context.Background(), "ana"); !errors.Is(err, boom) {
		t.Fatalf("expected completion error, got %v", err)
	}
	if m.Step() != StepCustomize {
		t.Fatalf("expected to stay on customize, got %s", m.Step())
	}
	if err := m.SubmitProfile(context.Background(), " "); !api.IsValidation(err) {
		t.Fatalf("expected empty username rejected, got %v", err)
	}
}

func TestConcurrentSubmitProfileCompletesOnce(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	m := NewMachine(&fakeEnv{}, func(context.Context, Profile) error {
		calls.Add(1)
		close(entered)
		<-release
		return nil
	}, nil)
	m.Resume("3")

	first := make(chan error, 1)
	go func() { first <- m.SubmitProfile(context.Background(), "alice") }()
	<-entered

	if err := m.SubmitProfile(context.Background(), "alice"); !api.IsValidation(err) {
		t.Fatalf("expected second submission rejected, got %v", err)
	}
	close(release)
	if err := <-first; err != nil {
		t.Fatalf("first submission: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected completion to run once, got %d", n)
	}
	if m.Step() != StepComplete {
		t.Fatalf("expected complete, got %s", m.Step())
	}
}

func TestSubmitProfileRetriesAfterFailure(t *testing.T) {
	fail := true
	m := NewMachine(&fakeEnv{}, func(context.Context, Profile) error {
		if fail {
			return errors.New("backend down")
		}
		return nil
	}, nil)
	m.Resume("3")

	if err := m.SubmitProfile(context.Background(), "ana"); err == nil {
		t.Fatal("expected first submission to fail")
	}
	fail = false
	if err := m.SubmitProfile(context.Background(), "ana"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if m.Step() != StepComplete {
		t.Fatalf("expected complete, got %s", m.Step())
	}
}
