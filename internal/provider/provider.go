// Package provider defines the boundary to the external messaging network.
// The wire protocol itself lives in a collaborator library; this package only
// fixes the contract the gateway needs: dialing a connection bound to stored
// credentials, lifecycle event callbacks, and send operations.
package provider

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// ErrLoggedOut is the close reason for a permanent logout. A connection closed
// with any other error is treated as a transient failure.
var ErrLoggedOut = errors.New("provider: logged out")

// IsLoggedOut reports whether a close reason indicates a permanent logout.
func IsLoggedOut(err error) bool { return errors.Is(err, ErrLoggedOut) }

// Presence is a transient chat presence signal.
type Presence string

const (
	PresenceComposing Presence = "composing"
	PresencePaused    Presence = "paused"
)

const jidSuffix = "@s.whatsapp.net"

// NormalizeJID appends the network address suffix to bare phone numbers.
func NormalizeJID(to string) string {
	if strings.Contains(to, "@") {
		return to
	}
	return to + jidSuffix
}

// KeyStore is the credential callback surface the protocol layer uses for its
// categorized sub-keys (rotating session keys, pre-keys, sync state). The
// gateway does not interpret categories or values.
type KeyStore interface {
	GetMany(ctx context.Context, category string, ids []string) (map[string][]byte, error)
	SetMany(ctx context.Context, category string, data map[string][]byte) error
}

// Handler receives lifecycle events for one connection. Callbacks are invoked
// from provider-owned goroutines and must not block indefinitely.
type Handler struct {
	// PairingChallenge fires when the network issues an out-of-band pairing
	// code that a human must approve.
	PairingChallenge func(challenge []byte)
	// Connected fires once the connection is open, with the resolved identity.
	Connected func(jid string)
	// CredsUpdated fires whenever the primary credential mutates and must be
	// re-persisted.
	CredsUpdated func(creds *Creds)
	// Closed fires exactly once when the connection terminates on its own.
	// The error classifies the reason; see IsLoggedOut. Client.Close tears a
	// connection down without invoking Closed.
	Closed func(err error)
}

// Params carries everything a dialer needs to bind a connection to a session.
type Params struct {
	SessionID string
	Creds     *Creds
	Keys      KeyStore
	Handler   Handler
}

// Client is a live connection handle. Owned exclusively by the session
// registry while it exists.
type Client interface {
	// SendText transmits a text message to the given address.
	SendText(ctx context.Context, to, text string) error
	// SendPresence emits a transient presence signal to the given address.
	SendPresence(ctx context.Context, to string, p Presence) error
	// Identity returns the resolved network identity, or "" before pairing
	// completes.
	Identity() string
	// Close terminates the connection immediately. It does not trigger the
	// Closed handler and is safe to call more than once.
	Close() error
}

// Dialer opens connections against the messaging network.
type Dialer interface {
	Dial(ctx context.Context, p Params) (Client, error)
}
