package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/courier/internal/domain"
)

func TestRegistryInsertLookupRemove(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Lookup("s1")
	assert.False(t, ok)

	c := &fakeClient{}
	r.Insert("s1", c)

	got, ok := r.Lookup("s1")
	require.True(t, ok)
	assert.Same(t, c, got.(*fakeClient))

	r.Remove("s1")
	_, ok = r.Lookup("s1")
	assert.False(t, ok)
}

func TestRegistryInsertPreservesStateAcrossReplace(t *testing.T) {
	r := NewRegistry()
	r.Insert("s1", &fakeClient{})
	r.SetState("s1", domain.StatusReconnecting, "")

	// Reconnect replaces the client; RECONNECTING sticks until the provider
	// reports progress.
	r.Insert("s1", &fakeClient{})
	state, ok := r.State("s1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusReconnecting, state.Status)
}

func TestRegistryReservedSlotHoldsStateWithoutClient(t *testing.T) {
	r := NewRegistry()
	r.Reserve("s1")

	// No client yet: not a live connection.
	_, ok := r.Lookup("s1")
	assert.False(t, ok)

	// Transitions land on the reserved slot and survive the client attach.
	r.SetState("s1", domain.StatusConnected, "j")
	r.Insert("s1", &fakeClient{})

	state, ok := r.State("s1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusConnected, state.Status)
	assert.Equal(t, "j", state.JID)

	_, ok = r.Lookup("s1")
	assert.True(t, ok)
}

func TestRegistryReserveKeepsExistingHandle(t *testing.T) {
	r := NewRegistry()
	c := &fakeClient{}
	r.Insert("s1", c)
	r.SetState("s1", domain.StatusConnected, "j")

	r.Reserve("s1")

	got, ok := r.Lookup("s1")
	require.True(t, ok)
	assert.Same(t, c, got.(*fakeClient))
	state, _ := r.State("s1")
	assert.Equal(t, domain.StatusConnected, state.Status)
}

func TestRegistrySetStateOnMissingHandleIsNoop(t *testing.T) {
	r := NewRegistry()
	r.SetState("ghost", domain.StatusConnected, "j")
	_, ok := r.State("ghost")
	assert.False(t, ok)
}
