package loopback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/you/courier/internal/provider"
)

type recorder struct {
	mu        sync.Mutex
	challenge []byte
	jid       string
	saved     *provider.Creds
	connected chan struct{}
}

func newRecorder() *recorder { return &recorder{connected: make(chan struct{})} }

func (r *recorder) handler() provider.Handler {
	return provider.Handler{
		PairingChallenge: func(c []byte) {
			r.mu.Lock()
			r.challenge = c
			r.mu.Unlock()
		},
		Connected: func(jid string) {
			r.mu.Lock()
			r.jid = jid
			r.mu.Unlock()
			close(r.connected)
		},
		CredsUpdated: func(c *provider.Creds) {
			r.mu.Lock()
			r.saved = c
			r.mu.Unlock()
		},
	}
}

func TestPairingFlowAutoApproves(t *testing.T) {
	d := NewDialer(zap.NewNop())
	d.ApproveAfter = 10 * time.Millisecond
	rec := newRecorder()

	client, err := d.Dial(context.Background(), provider.Params{
		SessionID: "s1",
		Creds:     provider.NewCreds(),
		Handler:   rec.handler(),
	})
	require.NoError(t, err)
	defer client.Close()

	select {
	case <-rec.connected:
	case <-time.After(time.Second):
		t.Fatal("never connected")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.NotEmpty(t, rec.challenge, "pairing challenge precedes connection")
	assert.NotEmpty(t, rec.jid)
	require.NotNil(t, rec.saved, "pairing persists the bound credential")
	assert.Equal(t, rec.jid, rec.saved.Me)
	assert.Equal(t, rec.jid, client.Identity())
}

func TestRegisteredCredsSkipPairing(t *testing.T) {
	d := NewDialer(zap.NewNop())
	d.ApproveAfter = time.Hour // would hang if pairing ran
	rec := newRecorder()

	creds := provider.NewCreds()
	creds.Me = "628777@s.whatsapp.net"

	client, err := d.Dial(context.Background(), provider.Params{
		SessionID: "s1",
		Creds:     creds,
		Handler:   rec.handler(),
	})
	require.NoError(t, err)
	defer client.Close()

	select {
	case <-rec.connected:
	case <-time.After(time.Second):
		t.Fatal("never connected")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.challenge, "resume must not re-pair")
	assert.Equal(t, "628777@s.whatsapp.net", rec.jid)
}

func TestCloseAbortsPendingPairing(t *testing.T) {
	d := NewDialer(zap.NewNop())
	d.ApproveAfter = 50 * time.Millisecond
	rec := newRecorder()

	client, err := d.Dial(context.Background(), provider.Params{
		SessionID: "s1",
		Creds:     provider.NewCreds(),
		Handler:   rec.handler(),
	})
	require.NoError(t, err)

	require.NoError(t, client.Close())

	select {
	case <-rec.connected:
		t.Fatal("connected after close")
	case <-time.After(150 * time.Millisecond):
	}

	assert.Error(t, client.SendText(context.Background(), "628123", "hi"))
}

func TestNormalizeJID(t *testing.T) {
	assert.Equal(t, "628123@s.whatsapp.net", provider.NormalizeJID("628123"))
	assert.Equal(t, "628123@s.whatsapp.net", provider.NormalizeJID("628123@s.whatsapp.net"))
}
