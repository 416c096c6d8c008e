// Package onboarding drives signup: email, verification code, wallet
// connect and profile customization. Each step is gated on the previous one
// and can be resumed from an integer step marker.
package onboarding

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/ayush/tipfinity/internal/api"
	"github.com/ayush/tipfinity/internal/media"
)

// Step is the externally visible step marker.
type Step int

const (
	StepEmail         Step = 1
	StepCode          Step = 2
	StepCustomize     Step = 3
	StepConnectWallet Step = 4
	StepComplete      Step = 5
)

func (s Step) String() string {
	switch s {
	case StepEmail:
		return "email"
	case StepCode:
		return "code"
	case StepCustomize:
		return "customize"
	case StepConnectWallet:
		return "connect_wallet"
	case StepComplete:
		return "complete"
	}
	return "step(" + strconv.Itoa(int(s)) + ")"
}

// ParseStep reads a resume marker. Unknown or malformed markers start at StepEmail.
func ParseStep(marker string) Step {
	n, err := strconv.Atoi(strings.TrimSpace(marker))
	if err != nil {
		return StepEmail
	}
	s := Step(n)
	if s < StepEmail || s > StepComplete {
		return StepEmail
	}
	return s
}

// CodeLength is the number of one-time-code digits.
const CodeLength = 6

// Profile is what the customization step hands to the completion hook.
type Profile struct {
	Email    string
	Username string
	Avatar   *media.Avatar
}

// CompleteFunc finishes signup, e.g. by registering the creator.
type CompleteFunc func(ctx context.Context, p Profile) error

// Environment reports the facts the wallet-connect step is gated on.
type Environment interface {
	WalletConnected() bool
	HasSession() bool
}

// Machine is one onboarding flow.
type Machine struct {
	mu       sync.Mutex
	step     Step
	email    string
	code     [CodeLength]string
	focus    int
	username string
	avatar   *media.Avatar
	inFlight bool // a profile submission is running onComplete

	env        Environment
	onComplete CompleteFunc
	maxAvatar  int64
	logger     *slog.Logger
}

func NewMachine(env Environment, onComplete CompleteFunc, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		step:       StepEmail,
		env:        env,
		onComplete: onComplete,
		maxAvatar:  media.MaxAvatarBytes,
		logger:     logger,
	}
}

// View is a snapshot of the machine for rendering.
type View struct {
	Step      Step     `json:"step"`
	StepName  string   `json:"step_name"`
	Email     string   `json:"email,omitempty"`
	Code      []string `json:"code"`
	Focus     int      `json:"focus"`
	Username  string   `json:"username,omitempty"`
	AvatarURI string   `json:"avatar_preview,omitempty"`
}

func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := View{
		Step:     m.step,
		StepName: m.step.String(),
		Email:    m.email,
		Code:     append([]string(nil), m.code[:]...),
		Focus:    m.focus,
		Username: m.username,
	}
	if m.avatar != nil {
		v.AvatarURI = m.avatar.DataURI()
	}
	return v
}

func (m *Machine) Step() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// Resume jumps to the step named by marker without requiring earlier steps.
func (m *Machine) Resume(marker string) Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.step = ParseStep(marker)
	m.advanceWalletLocked()
	m.logger.Debug("onboarding resumed", "step", m.step.String())
	return m.step
}

func (m *Machine) requireStep(s Step) error {
	if m.step != s {
		return &api.ValidationError{Field: "step", Message: fmt.Sprintf("expected step %s, at %s", s, m.step)}
	}
	return nil
}

// SubmitEmail advances to the code step when an email is present.
func (m *Machine) SubmitEmail(email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireStep(StepEmail); err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return api.Invalid("email", "is required")
	}
	m.email = email
	m.step = StepCode
	return nil
}

// EnterDigit sets code position i. The value must be empty or one decimal
// digit. It returns the position that should hold focus afterwards.
func (m *Machine) EnterDigit(i int, value string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= CodeLength {
		return m.focus, api.Invalid("index", fmt.Sprintf("must be between 0 and %d", CodeLength-1))
	}
	if len(value) > 1 || (value != "" && (value[0] < '0' || value[0] > '9')) {
		return m.focus, api.Invalid("digit", "must be a single decimal digit")
	}
	m.code[i] = value
	m.focus = i
	if value != "" && i < CodeLength-1 {
		m.focus = i + 1
	}
	return m.focus, nil
}

// Backspace moves focus back when position i is already empty.
func (m *Machine) Backspace(i int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= CodeLength {
		return m.focus
	}
	m.focus = i
	if m.code[i] == "" && i > 0 {
		m.focus = i - 1
	}
	return m.focus
}

// SubmitCode advances to the wallet-connect step once every position is filled.
func (m *Machine) SubmitCode() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireStep(StepCode); err != nil {
		return err
	}
	for i, d := range m.code {
		if d == "" {
			return api.Invalid("code", fmt.Sprintf("digit %d is missing", i+1))
		}
	}
	m.step = StepConnectWallet
	m.advanceWalletLocked()
	return nil
}

// WalletChanged re-evaluates the wallet-connect gate. Call it on every wallet
// or session change.
func (m *Machine) WalletChanged() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advanceWalletLocked()
	return m.step
}

func (m *Machine) advanceWalletLocked() {
	if m.step != StepConnectWallet || m.env == nil {
		return
	}
	if m.env.WalletConnected() && m.env.HasSession() {
		m.step = StepCustomize
		m.logger.Debug("wallet connected; onboarding advanced", "step", m.step.String())
	}
}

// SkipWallet leaves the wallet-connect step without linking.
func (m *Machine) SkipWallet() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireStep(StepConnectWallet); err != nil {
		return err
	}
	m.step = StepCustomize
	return nil
}

// Skip moves to the next step regardless of its completion condition.
func (m *Machine) Skip() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.step {
	case StepEmail:
		m.step = StepCode
	case StepCode:
		m.step = StepConnectWallet
	case StepConnectWallet:
		m.step = StepCustomize
	case StepCustomize:
		m.finishLocked()
	}
	return m.step
}

// AttachAvatar reads a locally selected image into a preview. Nothing is
// uploaded until the profile is submitted.
func (m *Machine) AttachAvatar(ctx context.Context, r io.Reader, contentType string) (string, error) {
	a, err := media.ReadAvatar(ctx, r, contentType, m.maxAvatar)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireStep(StepCustomize); err != nil {
		return "", err
	}
	m.avatar = a
	return a.DataURI(), nil
}

// SubmitProfile completes onboarding once a username is present.
func (m *Machine) SubmitProfile(ctx context.Context, username string) error {
	m.mu.Lock()
	if err := m.requireStep(StepCustomize); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.inFlight {
		m.mu.Unlock()
		return api.Invalid("profile", "a submission is already in progress")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		m.mu.Unlock()
		return api.Invalid("username", "is required")
	}
	m.username = username
	m.inFlight = true
	p := Profile{Email: m.email, Username: username, Avatar: m.avatar}
	m.mu.Unlock()

	var err error
	if m.onComplete != nil {
		err = m.onComplete(ctx, p)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight = false
	if err != nil {
		return err
	}
	m.finishLocked()
	return nil
}

// finishLocked reaches the dashboard. The machine keeps nothing afterwards.
func (m *Machine) finishLocked() {
	m.step = StepComplete
	m.email = ""
	m.code = [CodeLength]string{}
	m.focus = 0
	m.username = ""
	m.avatar = nil
}

// Reset starts a new flow at StepEmail.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finishLocked()
	m.step = StepEmail
}
