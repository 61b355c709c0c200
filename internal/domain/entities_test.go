package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMessageInstanceID(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name   string
		msg    *Message
		want   uuid.UUID
		wantOK bool
	}{
		{"nil message", nil, uuid.Nil, false},
		{"no metadata", &Message{}, uuid.Nil, false},
		{"string id", &Message{Metadata: map[string]interface{}{MetaInstanceID: id.String()}}, id, true},
		{"uuid value", &Message{Metadata: map[string]interface{}{MetaInstanceID: id}}, id, true},
		{"garbage", &Message{Metadata: map[string]interface{}{MetaInstanceID: "not-a-uuid"}}, uuid.Nil, false},
		{"wrong type", &Message{Metadata: map[string]interface{}{MetaInstanceID: 42.0}}, uuid.Nil, false},
		{"null", &Message{Metadata: map[string]interface{}{MetaInstanceID: nil}}, uuid.Nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.msg.InstanceID()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInvitationIsExpired(t *testing.T) {
	now := time.Now()
	assert.False(t, (&Invitation{Status: InvitationPending, ExpiresAt: now.Add(time.Hour)}).IsExpired(now))
	assert.True(t, (&Invitation{Status: InvitationPending, ExpiresAt: now.Add(-time.Second)}).IsExpired(now))
	assert.True(t, (&Invitation{Status: InvitationExpired, ExpiresAt: now.Add(time.Hour)}).IsExpired(now))
}

func TestCanManageTeam(t *testing.T) {
	assert.True(t, CanManageTeam(RoleOwner))
	assert.True(t, CanManageTeam(RoleAdmin))
	assert.False(t, CanManageTeam(RoleMember))
	assert.False(t, CanManageTeam(""))
}
