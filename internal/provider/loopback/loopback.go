// Package loopback is an in-process provider driver. It speaks no network
// protocol: pairing is auto-approved after a short delay and sends are only
// logged. It exists for local development and for exercising the full session
// lifecycle without the production network adapter.
package loopback

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/courier/internal/provider"
)

var errClosed = errors.New("loopback: client closed")

// Dialer implements provider.Dialer.
type Dialer struct {
	// ApproveAfter is how long after the pairing challenge the driver
	// simulates out-of-band approval.
	ApproveAfter time.Duration

	log *zap.Logger
}

func NewDialer(log *zap.Logger) *Dialer {
	return &Dialer{ApproveAfter: 3 * time.Second, log: log}
}

func (d *Dialer) Dial(_ context.Context, p provider.Params) (provider.Client, error) {
	c := &client{
		sessionID: p.SessionID,
		log:       d.log,
		done:      make(chan struct{}),
	}
	go c.run(p, d.ApproveAfter)
	return c, nil
}

type client struct {
	sessionID string
	log       *zap.Logger

	mu     sync.Mutex
	jid    string
	closed bool
	done   chan struct{}
}

func (c *client) run(p provider.Params, approveAfter time.Duration) {
	if p.Creds.Registered() {
		// Resuming a paired session: connect straight away.
		c.setJID(p.Creds.Me)
		if p.Handler.Connected != nil {
			p.Handler.Connected(p.Creds.Me)
		}
		return
	}

	challenge := base64.StdEncoding.EncodeToString(append([]byte(c.sessionID+":"), p.Creds.NoiseKey...))
	if p.Handler.PairingChallenge != nil {
		p.Handler.PairingChallenge([]byte(challenge))
	}

	select {
	case <-time.After(approveAfter):
	case <-c.done:
		return
	}

	jid := fmt.Sprintf("62%08d%s", p.Creds.RegistrationID, "@s.whatsapp.net")
	p.Creds.Me = jid
	if p.Handler.CredsUpdated != nil {
		p.Handler.CredsUpdated(p.Creds)
	}
	c.setJID(jid)
	if p.Handler.Connected != nil {
		p.Handler.Connected(jid)
	}
}

func (c *client) setJID(jid string) {
	c.mu.Lock()
	c.jid = jid
	c.mu.Unlock()
}

func (c *client) SendText(_ context.Context, to, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	c.log.Info("loopback send", zap.String("session_id", c.sessionID), zap.String("to", to), zap.Int("len", len(text)))
	return nil
}

func (c *client) SendPresence(_ context.Context, to string, p provider.Presence) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	c.log.Debug("loopback presence", zap.String("session_id", c.sessionID), zap.String("to", to), zap.String("presence", string(p)))
	return nil
}

func (c *client) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jid
}

func (c *client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}
