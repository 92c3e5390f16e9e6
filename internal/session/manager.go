// Package session owns the per-tenant connection lifecycle: the registry of
// live handles and the state machine driving pairing, reconnect, and logout
// cleanup. Lifecycle errors are absorbed into state transitions and events;
// they are never returned to the caller once a connection is dialed.
package session

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/courier/internal/domain"
	"github.com/you/courier/internal/eventbus"
	"github.com/you/courier/internal/provider"
)

// SessionStore is the durable session state the manager reads and writes.
type SessionStore interface {
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus) error
	UpdateSessionConnected(ctx context.Context, sessionID, jid string) error
	ResetSessionDisconnected(ctx context.Context, sessionID string) error
}

// CredStore is the credential persistence surface the manager wires into each
// connection.
type CredStore interface {
	Load(ctx context.Context, sessionID string) (*provider.Creds, error)
	SaveCreds(ctx context.Context, sessionID string, creds *provider.Creds) error
	DeleteAll(ctx context.Context, sessionID string) error
	SessionKeys(sessionID string) provider.KeyStore
}

// Manager drives the session state machine:
//
//	DISCONNECTED -> SCANNING -> CONNECTED
//	CONNECTED -> RECONNECTING -> CONNECTED   (transient close)
//	any -> DISCONNECTED                      (delete or permanent logout)
type Manager struct {
	dialer   provider.Dialer
	creds    CredStore
	sessions SessionStore
	registry *Registry
	bus      *eventbus.Bus
	log      *zap.Logger
}

func NewManager(dialer provider.Dialer, creds CredStore, sessions SessionStore, registry *Registry, bus *eventbus.Bus, log *zap.Logger) *Manager {
	return &Manager{
		dialer:   dialer,
		creds:    creds,
		sessions: sessions,
		registry: registry,
		bus:      bus,
		log:      log,
	}
}

// Start loads or initializes credentials, opens a provider connection bound
// to them, and registers the handle. Provider events after this point are
// absorbed into state transitions; Start only fails on credential load or
// dial errors.
func (m *Manager) Start(ctx context.Context, sessionID string) error {
	creds, err := m.creds.Load(ctx, sessionID)
	if err != nil {
		return errors.Wrap(err, "start session")
	}

	// The provider may fire events before Dial returns (an already-paired
	// session connects immediately); the slot must exist for those
	// transitions to land.
	m.registry.Reserve(sessionID)

	client, err := m.dialer.Dial(ctx, provider.Params{
		SessionID: sessionID,
		Creds:     creds,
		Keys:      m.creds.SessionKeys(sessionID),
		Handler: provider.Handler{
			PairingChallenge: func(challenge []byte) { m.onPairing(ctx, sessionID, challenge) },
			Connected:        func(jid string) { m.onConnected(ctx, sessionID, jid) },
			CredsUpdated: func(c *provider.Creds) {
				if err := m.creds.SaveCreds(ctx, sessionID, c); err != nil {
					m.log.Error("save creds", zap.String("session_id", sessionID), zap.Error(err))
				}
			},
			Closed: func(reason error) { m.onClosed(ctx, sessionID, reason) },
		},
	})
	if err != nil {
		m.registry.Remove(sessionID)
		return errors.Wrap(err, "dial")
	}

	m.registry.Insert(sessionID, client)
	return nil
}

// GetClient returns the live connection for a session, if any.
func (m *Manager) GetClient(sessionID string) (provider.Client, bool) {
	return m.registry.Lookup(sessionID)
}

// GetState returns the in-memory lifecycle state for a session, if any.
func (m *Manager) GetState(sessionID string) (State, bool) {
	return m.registry.State(sessionID)
}

// DeleteSession terminates any live handle immediately and always runs the
// logout cleanup path, so deletion is idempotent whether or not a connection
// existed.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) {
	if client, ok := m.registry.Lookup(sessionID); ok {
		if err := client.Close(); err != nil {
			m.log.Warn("close client", zap.String("session_id", sessionID), zap.Error(err))
		}
		m.registry.Remove(sessionID)
	}
	m.cleanup(ctx, sessionID)
}

func (m *Manager) onPairing(ctx context.Context, sessionID string, challenge []byte) {
	m.log.Debug("pairing challenge issued", zap.String("session_id", sessionID))
	m.registry.SetState(sessionID, domain.StatusScanning, "")
	if err := m.sessions.UpdateSessionStatus(ctx, sessionID, domain.StatusScanning); err != nil {
		m.log.Error("persist status", zap.String("session_id", sessionID), zap.Error(err))
	}
	m.bus.Publish(eventbus.QR{SessionID: sessionID, Challenge: challenge})
}

func (m *Manager) onConnected(ctx context.Context, sessionID, jid string) {
	m.registry.SetState(sessionID, domain.StatusConnected, jid)
	if err := m.sessions.UpdateSessionConnected(ctx, sessionID, jid); err != nil {
		m.log.Error("persist status", zap.String("session_id", sessionID), zap.Error(err))
	}
	m.log.Info("session connected", zap.String("session_id", sessionID), zap.String("jid", jid))
	m.bus.Publish(eventbus.Ready{SessionID: sessionID, JID: jid})
}

func (m *Manager) onClosed(ctx context.Context, sessionID string, reason error) {
	reconnect := !provider.IsLoggedOut(reason)
	m.bus.Publish(eventbus.Closed{SessionID: sessionID, Reconnect: reconnect})

	if !reconnect {
		m.log.Info("session logged out", zap.String("session_id", sessionID))
		m.cleanup(ctx, sessionID)
		return
	}

	// A deletion may have raced with this disconnect. The durable row is the
	// authority: if it is gone, drop the handle and stop. A delete landing
	// after this check is a known race; the short-lived reconnect is cleaned
	// up on its next close.
	exists, err := m.sessions.SessionExists(ctx, sessionID)
	if err != nil {
		m.log.Error("session existence check", zap.String("session_id", sessionID), zap.Error(err))
		m.registry.Remove(sessionID)
		return
	}
	if !exists {
		m.log.Warn("session row gone, aborting reconnect", zap.String("session_id", sessionID))
		m.registry.Remove(sessionID)
		return
	}

	m.log.Warn("session disconnected, reconnecting", zap.String("session_id", sessionID), zap.Error(reason))
	m.registry.SetState(sessionID, domain.StatusReconnecting, "")
	if err := m.sessions.UpdateSessionStatus(ctx, sessionID, domain.StatusReconnecting); err != nil {
		m.log.Error("persist status", zap.String("session_id", sessionID), zap.Error(err))
	}
	if err := m.Start(ctx, sessionID); err != nil {
		m.log.Error("reconnect", zap.String("session_id", sessionID), zap.Error(err))
		m.registry.Remove(sessionID)
	}
}

// cleanup purges credentials, resets durable status, and drops the handle.
func (m *Manager) cleanup(ctx context.Context, sessionID string) {
	if err := m.creds.DeleteAll(ctx, sessionID); err != nil {
		m.log.Error("purge creds", zap.String("session_id", sessionID), zap.Error(err))
	}
	if err := m.sessions.ResetSessionDisconnected(ctx, sessionID); err != nil {
		m.log.Error("reset session", zap.String("session_id", sessionID), zap.Error(err))
	}
	m.registry.Remove(sessionID)
}
