// Package session owns the locally held identity: the current creator record
// or its absence.
//
// All writes are events on a single FIFO queue applied by one goroutine, so a
// wallet disconnect and a wallet link that arrive close together are applied
// in arrival order instead of racing.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ayush/tipfinity/internal/models"
)

// DisconnectPolicy decides what a wallet disconnect does to the session.
type DisconnectPolicy string

const (
	// PolicyAlways clears the session on any disconnect, including sessions
	// that never linked a wallet.
	PolicyAlways DisconnectPolicy = "always"
	// PolicyWalletLinked clears only sessions whose creator has a linked wallet.
	PolicyWalletLinked DisconnectPolicy = "wallet-linked"
)

// ParsePolicy maps a config value to a policy, defaulting to PolicyAlways.
func ParsePolicy(s string) (DisconnectPolicy, error) {
	switch DisconnectPolicy(s) {
	case "", PolicyAlways:
		return PolicyAlways, nil
	case PolicyWalletLinked:
		return PolicyWalletLinked, nil
	}
	return "", fmt.Errorf("unknown disconnect policy %q", s)
}

// ErrClosed is returned for events submitted after Close.
var ErrClosed = errors.New("session store closed")

type eventKind int

const (
	evHydrate eventKind = iota + 1
	evSet
	evClear
	evWalletLinked
	evWalletDisconnected
)

func (k eventKind) String() string {
	switch k {
	case evHydrate:
		return "hydrate"
	case evSet:
		return "set"
	case evClear:
		return "clear"
	case evWalletLinked:
		return "wallet linked"
	case evWalletDisconnected:
		return "wallet disconnected"
	}
	return "unknown"
}

type event struct {
	kind      eventKind
	creator   *models.Creator
	creatorID int64
	address   string
	done      chan result
}

type result struct {
	applied bool
	err     error
}

// Change is delivered to subscribers after every applied event.
type Change struct {
	Reason  string
	Creator *models.Creator
}

// Store is the process-wide session. Construct one per process and Close it on exit.
type Store struct {
	slot   Slot
	policy DisconnectPolicy
	logger *slog.Logger

	events  chan event
	quit    chan struct{}
	stopped chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	mu      sync.RWMutex
	current *models.Creator

	subMu sync.Mutex
	subs  map[int]chan Change
	next  int
}

func NewStore(slot Slot, policy DisconnectPolicy, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == "" {
		policy = PolicyAlways
	}
	s := &Store{
		slot:    slot,
		policy:  policy,
		logger:  logger,
		events:  make(chan event, 32),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		subs:    make(map[int]chan Change),
	}
	s.wg.Add(1)
	go s.loop()
	return s
}

// Close stops the event loop. Pending events already queued are applied first.
func (s *Store) Close() {
	s.once.Do(func() {
		close(s.quit)
		s.wg.Wait()
		s.subMu.Lock()
		for id, ch := range s.subs {
			close(ch)
			delete(s.subs, id)
		}
		s.subMu.Unlock()
	})
}

// Current returns a copy of the session creator, or nil.
func (s *Store) Current() *models.Creator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

// Subscribe returns a channel of session changes and a cancel func.
func (s *Store) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 16)
	s.subMu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.subMu.Unlock()
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
}

// Hydrate loads the durable slot. Corrupt data is discarded and logged, never returned.
func (s *Store) Hydrate(ctx context.Context) error {
	_, err := s.submit(ctx, event{kind: evHydrate})
	return err
}

// SetCreator replaces the session creator and persists it.
func (s *Store) SetCreator(ctx context.Context, c *models.Creator) error {
	if c == nil {
		return s.Clear(ctx)
	}
	_, err := s.submit(ctx, event{kind: evSet, creator: c.Clone()})
	return err
}

// Clear logs out and removes the durable entry.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.submit(ctx, event{kind: evClear})
	return err
}

// ApplyWalletLink records a backend-confirmed wallet address on the session
// creator. It reports false when the session no longer holds creatorID.
func (s *Store) ApplyWalletLink(ctx context.Context, creatorID int64, address string) (bool, error) {
	return s.submit(ctx, event{kind: evWalletLinked, creatorID: creatorID, address: address})
}

// WalletDisconnected is the wallet observer's entry point.
func (s *Store) WalletDisconnected(ctx context.Context) (bool, error) {
	return s.submit(ctx, event{kind: evWalletDisconnected})
}

func (s *Store) submit(ctx context.Context, ev event) (bool, error) {
	ev.done = make(chan result, 1)
	select {
	case <-s.quit:
		return false, ErrClosed
	default:
	}
	select {
	case s.events <- ev:
	case <-s.quit:
		return false, ErrClosed
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case r := <-ev.done:
		return r.applied, r.err
	case <-s.stopped:
		select {
		case r := <-ev.done:
			return r.applied, r.err
		default:
			return false, ErrClosed
		}
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (s *Store) loop() {
	defer s.wg.Done()
	defer close(s.stopped)
	for {
		select {
		case ev := <-s.events:
			ev.done <- s.apply(ev)
		case <-s.quit:
			for {
				select {
				case ev := <-s.events:
					ev.done <- s.apply(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) apply(ev event) result {
	ctx := context.Background()
	switch ev.kind {
	case evHydrate:
		c := s.load(ctx)
		s.setCurrent(c)
		s.publish(ev.kind, c)
		return result{applied: true}

	case evSet:
		s.setCurrent(ev.creator)
		s.publish(ev.kind, ev.creator)
		return result{applied: true, err: s.persist(ctx, ev.creator)}

	case evClear:
		s.setCurrent(nil)
		s.publish(ev.kind, nil)
		return result{applied: true, err: s.persist(ctx, nil)}

	case evWalletLinked:
		cur := s.Current()
		if cur == nil || cur.ID != ev.creatorID {
			s.logger.Info("wallet link dropped; session no longer holds creator", "creator_id", ev.creatorID)
			return result{}
		}
		addr := ev.address
		cur.WalletAddress = &addr
		s.setCurrent(cur)
		s.publish(ev.kind, cur)
		return result{applied: true, err: s.persist(ctx, cur)}

	case evWalletDisconnected:
		cur := s.Current()
		if cur == nil {
			return result{}
		}
		if s.policy == PolicyWalletLinked && !cur.HasWallet() {
			s.logger.Debug("wallet disconnect ignored; session has no linked wallet", "creator_id", cur.ID)
			return result{}
		}
		s.setCurrent(nil)
		s.publish(ev.kind, nil)
		return result{applied: true, err: s.persist(ctx, nil)}
	}
	return result{err: fmt.Errorf("unknown session event %d", ev.kind)}
}

func (s *Store) load(ctx context.Context) *models.Creator {
	data, err := s.slot.Load(ctx)
	if err != nil {
		s.logger.Warn("session slot unreadable; starting without session", "error", err)
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	var c models.Creator
	if err := json.Unmarshal(data, &c); err != nil || c.ID <= 0 {
		s.logger.Warn("discarding corrupt session data", "error", err)
		if derr := s.slot.Delete(ctx); derr != nil {
			s.logger.Warn("remove corrupt session data", "error", derr)
		}
		return nil
	}
	return &c
}

func (s *Store) persist(ctx context.Context, c *models.Creator) error {
	if c == nil {
		if err := s.slot.Delete(ctx); err != nil {
			s.logger.Error("delete session slot", "error", err)
			return err
		}
		return nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.slot.Save(ctx, data); err != nil {
		s.logger.Error("save session slot", "error", err)
		return err
	}
	return nil
}

func (s *Store) setCurrent(c *models.Creator) {
	s.mu.Lock()
	s.current = c.Clone()
	s.mu.Unlock()
}

func (s *Store) publish(kind eventKind, c *models.Creator) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- Change{Reason: kind.String(), Creator: c.Clone()}:
		default:
			s.logger.Warn("session subscriber is full; change dropped", "reason", kind.String())
		}
	}
}
