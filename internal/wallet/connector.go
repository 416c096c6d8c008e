package wallet

import (
	"context"
	"sync"
)

// Status is the connection state reported to observers.
type Status struct {
	Connected bool
	PublicKey string
}

// Observer reacts to connection changes. Observers run in registration
// order, one change at a time, and must not call back into the Connector.
type Observer func(ctx context.Context, st Status)

// Connector tracks the currently connected signer.
type Connector struct {
	mu        sync.Mutex // serializes changes and observer delivery
	signer    Signer
	observers []Observer
}

func NewConnector() *Connector {
	return &Connector{}
}

func (c *Connector) Observe(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// Signer returns the connected signer, if any.
func (c *Connector) Signer() (Signer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signer, c.signer != nil
}

func (c *Connector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Connector) statusLocked() Status {
	if c.signer == nil {
		return Status{}
	}
	return Status{Connected: true, PublicKey: c.signer.PublicKey()}
}

func (c *Connector) Connect(ctx context.Context, s Signer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signer = s
	c.notifyLocked(ctx)
}

func (c *Connector) Disconnect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.signer == nil {
		return
	}
	c.signer = nil
	c.notifyLocked(ctx)
}

func (c *Connector) notifyLocked(ctx context.Context) {
	st := c.statusLocked()
	for _, o := range c.observers {
		o(ctx, st)
	}
}
