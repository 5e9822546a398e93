package model

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
)

func TestGenerateLocalProtocol(t *testing.T) {
	p1 := GenerateLocalProtocol()
	p2 := GenerateLocalProtocol()

	assert.True(t, IsLocalProtocol(p1))
	assert.True(t, IsLocalProtocol(p2))
	assert.NotEqual(t, p1, p2)
	assert.Len(t, p1, len(LocalProtocolPrefix)+12)

	assert.False(t, IsLocalProtocol("2024000012345"))
}

func TestUserProtocol(t *testing.T) {
	ticket := &Ticket{
		Protocol:   GenerateLocalProtocol(),
		SyncStatus: StatusPending,
	}
	assert.Equal(t, ticket.Protocol, ticket.UserProtocol())
	assert.False(t, ticket.Synced())

	ticket.SyncStatus = StatusSynced
	ticket.RemoteProtocol = "2024000012345"
	assert.True(t, ticket.Synced())
	assert.Equal(t, "2024000012345", ticket.UserProtocol())
}

func TestSyncedRequiresRemoteProtocol(t *testing.T) {
	ticket := &Ticket{SyncStatus: StatusSynced}
	assert.False(t, ticket.Synced())
}

func TestNewTicketRequestValidate(t *testing.T) {
	req := NewTicketRequest{
		ClientRef:   gofakeit.UUID(),
		Subject:     "Connection drops during matches",
		Description: "Latency spikes to 300ms every evening since Monday.",
	}
	assert.NoError(t, req.Validate())

	req.Subject = ""
	assert.Error(t, req.Validate())

	req.Subject = "ok"
	req.ClientRef = ""
	assert.Error(t, req.Validate())

	req.ClientRef = gofakeit.UUID()
	req.Subject = "no"
	assert.Error(t, req.Validate(), "subject below minimum length")
}

func TestTokenValid(t *testing.T) {
	var nilToken *Token
	assert.False(t, nilToken.Valid(5*time.Minute))

	token := &Token{AccessToken: "abc", ExpiresAt: time.Now().Add(time.Hour)}
	assert.True(t, token.Valid(5*time.Minute))
	assert.False(t, token.Valid(2*time.Hour), "inside the renewal buffer")

	expired := &Token{AccessToken: "abc", ExpiresAt: time.Now().Add(-time.Minute)}
	assert.False(t, expired.Valid(5*time.Minute))
}

func TestHealthStateTransitions(t *testing.T) {
	h := NewHealthState()
	assert.False(t, h.IsOnline())

	now := time.Now()
	transitioned := h.Record(true, now)
	assert.True(t, transitioned)
	assert.True(t, h.IsOnline())

	snap := h.Snapshot()
	assert.Equal(t, now, snap.LastCheckedAt)
	assert.Equal(t, now, snap.LastTransitionAt)

	later := now.Add(time.Minute)
	transitioned = h.Record(true, later)
	assert.False(t, transitioned, "staying online is not a transition")
	snap = h.Snapshot()
	assert.Equal(t, later, snap.LastCheckedAt)
	assert.Equal(t, now, snap.LastTransitionAt)

	transitioned = h.Record(false, later.Add(time.Minute))
	assert.True(t, transitioned)
	assert.False(t, h.IsOnline())
}
