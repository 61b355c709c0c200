package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	apperrors "github.com/naperu/embudo/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invitationFixture struct {
	empresa     *domain.Empresa
	ownerID     uuid.UUID
	members     *fakeMembers
	invitations *fakeInvitations
	users       *fakeUsers
	mail        *fakeMailer
	svc         *InvitationService
}

func newInvitationFixture() *invitationFixture {
	f := &invitationFixture{
		empresa:     &domain.Empresa{ID: uuid.New(), Name: "Clínica Sol"},
		ownerID:     uuid.New(),
		members:     newFakeMembers(),
		invitations: newFakeInvitations(),
		mail:        &fakeMailer{},
	}
	f.members.add(f.empresa.ID, f.ownerID, domain.RoleOwner, "owner@sol.pe")
	f.users = &fakeUsers{byID: map[uuid.UUID]*domain.User{
		f.ownerID: {ID: f.ownerID, Email: "owner@sol.pe", DisplayName: "Olga"},
	}}
	f.svc = NewInvitationService(f.invitations, f.members, newFakeEmpresas(f.empresa), f.users, f.mail, nil,
		InvitationConfig{AppURL: "https://app.embudo.pe/", TTL: 48 * time.Hour})
	return f
}

func TestInvite_CreatesAndEmails(t *testing.T) {
	f := newInvitationFixture()

	res, err := f.svc.Invite(context.Background(), f.ownerID, f.empresa.ID, InviteInput{Email: "  Nuevo@Sol.pe ", Role: "admin"})
	require.NoError(t, err)

	assert.True(t, res.EmailSent)
	assert.Empty(t, res.Warning)
	assert.Equal(t, "nuevo@sol.pe", res.Invitation.Email)
	assert.Equal(t, domain.RoleAdmin, res.Invitation.Role)
	assert.Equal(t, domain.InvitationPending, res.Invitation.Status)
	assert.Len(t, res.Invitation.Token, 64)
	assert.WithinDuration(t, time.Now().Add(48*time.Hour), res.Invitation.ExpiresAt, time.Minute)

	require.Len(t, f.mail.sent, 1)
	email := f.mail.sent[0]
	assert.Equal(t, []string{"nuevo@sol.pe"}, email.To)
	assert.Contains(t, email.Subject, "Clínica Sol")
	assert.Contains(t, email.HTML, "https://app.embudo.pe/invitacion?token="+res.Invitation.Token)
}

func TestInvite_DefaultsToMemberRole(t *testing.T) {
	f := newInvitationFixture()

	res, err := f.svc.Invite(context.Background(), f.ownerID, f.empresa.ID, InviteInput{Email: "a@sol.pe"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleMember, res.Invitation.Role)
}

func TestInvite_EmailFailureKeepsInvitation(t *testing.T) {
	f := newInvitationFixture()
	f.mail.err = errors.New("resend: 500")

	res, err := f.svc.Invite(context.Background(), f.ownerID, f.empresa.ID, InviteInput{Email: "a@sol.pe"})
	require.NoError(t, err)
	assert.False(t, res.EmailSent)
	assert.Contains(t, res.Warning, "resend: 500")
	assert.Len(t, f.invitations.created, 1)
}

func TestInvite_LapsedPendingDoesNotBlock(t *testing.T) {
	f := newInvitationFixture()
	f.invitations.lapsed = &domain.Invitation{
		ID:        uuid.New(),
		Email:     "a@sol.pe",
		Status:    domain.InvitationPending,
		ExpiresAt: time.Now().Add(-time.Hour),
	}

	res, err := f.svc.Invite(context.Background(), f.ownerID, f.empresa.ID, InviteInput{Email: "a@sol.pe"})
	require.NoError(t, err)
	assert.Equal(t, domain.InvitationExpired, f.invitations.lapsed.Status)
	assert.Equal(t, domain.InvitationPending, res.Invitation.Status)
	assert.Len(t, f.invitations.created, 1)
}

func TestInvite_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("plain member cannot invite", func(t *testing.T) {
		f := newInvitationFixture()
		memberID := uuid.New()
		f.members.add(f.empresa.ID, memberID, domain.RoleMember, "m@sol.pe")
		_, err := f.svc.Invite(ctx, memberID, f.empresa.ID, InviteInput{Email: "a@sol.pe"})
		assert.Equal(t, http.StatusForbidden, apperrors.StatusCode(err))
	})

	t.Run("already a member", func(t *testing.T) {
		f := newInvitationFixture()
		_, err := f.svc.Invite(ctx, f.ownerID, f.empresa.ID, InviteInput{Email: "OWNER@sol.pe"})
		assert.ErrorIs(t, err, apperrors.ErrMemberExists)
		assert.Equal(t, http.StatusConflict, apperrors.StatusCode(err))
	})

	t.Run("pending invitation exists", func(t *testing.T) {
		f := newInvitationFixture()
		f.invitations.pending = &domain.Invitation{ID: uuid.New(), Status: domain.InvitationPending}
		_, err := f.svc.Invite(ctx, f.ownerID, f.empresa.ID, InviteInput{Email: "a@sol.pe"})
		assert.ErrorIs(t, err, apperrors.ErrPendingInvitationExists)
		assert.Equal(t, http.StatusConflict, apperrors.StatusCode(err))
	})

	t.Run("invalid email", func(t *testing.T) {
		f := newInvitationFixture()
		_, err := f.svc.Invite(ctx, f.ownerID, f.empresa.ID, InviteInput{Email: "not-an-email"})
		assert.Equal(t, http.StatusBadRequest, apperrors.StatusCode(err))
	})

	t.Run("owner role cannot be invited", func(t *testing.T) {
		f := newInvitationFixture()
		_, err := f.svc.Invite(ctx, f.ownerID, f.empresa.ID, InviteInput{Email: "a@sol.pe", Role: "owner"})
		assert.Equal(t, http.StatusBadRequest, apperrors.StatusCode(err))
	})
}

func TestAccept(t *testing.T) {
	ctx := context.Background()
	invite := func(f *invitationFixture) *domain.Invitation {
		res, err := f.svc.Invite(ctx, f.ownerID, f.empresa.ID, InviteInput{Email: "nuevo@sol.pe"})
		require.NoError(t, err)
		return res.Invitation
	}

	t.Run("matching user joins", func(t *testing.T) {
		f := newInvitationFixture()
		inv := invite(f)
		userID := uuid.New()
		f.users.byID[userID] = &domain.User{ID: userID, Email: "Nuevo@sol.pe"}

		got, err := f.svc.Accept(ctx, userID, inv.Token)
		require.NoError(t, err)
		assert.Equal(t, domain.InvitationAccepted, got.Status)
		assert.Equal(t, []uuid.UUID{userID}, f.invitations.accepted)
	})

	t.Run("expired is gone", func(t *testing.T) {
		f := newInvitationFixture()
		inv := invite(f)
		f.svc.now = func() time.Time { return time.Now().Add(72 * time.Hour) }

		_, err := f.svc.Accept(ctx, uuid.New(), inv.Token)
		assert.ErrorIs(t, err, apperrors.ErrInvitationExpired)
		assert.Equal(t, http.StatusGone, apperrors.StatusCode(err))
		assert.Equal(t, domain.InvitationExpired, f.invitations.statuses[inv.ID])
	})

	t.Run("other email is forbidden", func(t *testing.T) {
		f := newInvitationFixture()
		inv := invite(f)
		userID := uuid.New()
		f.users.byID[userID] = &domain.User{ID: userID, Email: "otro@sol.pe"}

		_, err := f.svc.Accept(ctx, userID, inv.Token)
		assert.Equal(t, http.StatusForbidden, apperrors.StatusCode(err))
	})

	t.Run("unknown token", func(t *testing.T) {
		f := newInvitationFixture()
		_, err := f.svc.Accept(ctx, uuid.New(), strings.Repeat("a", 64))
		assert.Equal(t, http.StatusNotFound, apperrors.StatusCode(err))
	})
}
