package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	apperrors "github.com/naperu/embudo/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedInstances_KeepsTokenAcrossCache(t *testing.T) {
	empresaID := uuid.New()
	inst := &domain.Instance{ID: uuid.New(), EmpresaID: empresaID, Channel: "whatsapp", ClientID: "c1", APIToken: "secret", IsActive: true}
	store := newFakeInstances(inst)
	cache := newMemCache()
	cached := NewCachedInstances(store, cache, time.Minute)
	ctx := context.Background()

	got, err := cached.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret", got.APIToken)

	got, err = cached.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret", got.APIToken)
	assert.Equal(t, 1, store.gets, "second read is served from cache")

	list, err := cached.ListActive(ctx, empresaID, "whatsapp")
	require.NoError(t, err)
	require.Len(t, list, 1)
	list, err = cached.ListActive(ctx, empresaID, "whatsapp")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "secret", list[0].APIToken)
}

func TestCachedInstances_WriteInvalidates(t *testing.T) {
	empresaID := uuid.New()
	inst := &domain.Instance{ID: uuid.New(), EmpresaID: empresaID, Channel: "whatsapp", APIToken: "old", IsActive: true}
	store := newFakeInstances(inst)
	cache := newMemCache()
	cached := NewCachedInstances(store, cache, time.Minute)
	ctx := context.Background()

	_, err := cached.Get(ctx, inst.ID)
	require.NoError(t, err)

	updated := *inst
	updated.APIToken = "new"
	require.NoError(t, cached.Update(ctx, &updated))
	assert.Contains(t, cache.dels, instanceKey(inst.ID))
	assert.Contains(t, cache.dels, activeKey(empresaID, "whatsapp"))

	got, err := cached.Get(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.APIToken)
}

func TestNewCachedInstances_NilCacheReturnsStore(t *testing.T) {
	store := newFakeInstances()
	assert.Same(t, store, NewCachedInstances(store, nil, time.Minute))
}

func TestInstanceService_RequiresManager(t *testing.T) {
	empresaID, memberID := uuid.New(), uuid.New()
	members := newFakeMembers()
	members.add(empresaID, memberID, domain.RoleMember, "m@sol.pe")
	svc := NewInstanceService(newFakeInstances(), members)

	_, err := svc.Create(context.Background(), memberID, empresaID, InstanceInput{Name: "Ventas", ClientID: "c1", APIToken: "t"})
	assert.Equal(t, http.StatusForbidden, apperrors.StatusCode(err))
}

func TestInstanceService_UpdateScopesToEmpresa(t *testing.T) {
	empresaID, ownerID := uuid.New(), uuid.New()
	members := newFakeMembers()
	members.add(empresaID, ownerID, domain.RoleOwner, "o@sol.pe")
	foreign := &domain.Instance{ID: uuid.New(), EmpresaID: uuid.New(), Channel: "whatsapp"}
	svc := NewInstanceService(newFakeInstances(foreign), members)

	_, err := svc.Update(context.Background(), ownerID, empresaID, foreign.ID, InstanceInput{Name: "x", ClientID: "c"})
	assert.ErrorIs(t, err, apperrors.ErrInstanceNotFound)
}
