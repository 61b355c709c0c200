package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	apperrors "github.com/naperu/embudo/internal/errors"
	"github.com/naperu/embudo/internal/phone"
	"github.com/naperu/embudo/pkg/logger"
)

// cachedInstance mirrors domain.Instance including the token, which the
// domain type never serializes.
type cachedInstance struct {
	ID          uuid.UUID `json:"id"`
	EmpresaID   uuid.UUID `json:"empresa_id"`
	Name        string    `json:"name"`
	Channel     string    `json:"channel"`
	ClientID    string    `json:"client_id"`
	APIToken    string    `json:"api_token"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toCached(i *domain.Instance) cachedInstance {
	return cachedInstance(*i)
}

func (c cachedInstance) instance() *domain.Instance {
	i := domain.Instance(c)
	return &i
}

// CachedInstances is a read-through cache in front of an InstanceStore for
// the per-message lookups of send-message and webhook-chat. Writes go to the
// store and drop the affected keys.
type CachedInstances struct {
	InstanceStore
	cache JSONCache
	ttl   time.Duration
	log   *logger.Logger
}

func NewCachedInstances(store InstanceStore, cache JSONCache, ttl time.Duration) InstanceStore {
	if cache == nil || ttl <= 0 {
		return store
	}
	return &CachedInstances{InstanceStore: store, cache: cache, ttl: ttl, log: logger.Component("instance-cache")}
}

func instanceKey(id uuid.UUID) string {
	return "instance:" + id.String()
}

func activeKey(empresaID uuid.UUID, channel string) string {
	return fmt.Sprintf("instances:active:%s:%s", empresaID, channel)
}

func (c *CachedInstances) Get(ctx context.Context, id uuid.UUID) (*domain.Instance, error) {
	var hit cachedInstance
	if ok, err := c.cache.GetJSON(ctx, instanceKey(id), &hit); err == nil && ok {
		return hit.instance(), nil
	} else if err != nil {
		c.log.WithError(err).Debug("instance cache read failed")
	}
	inst, err := c.InstanceStore.Get(ctx, id)
	if err != nil || inst == nil {
		return inst, err
	}
	if err := c.cache.SetJSON(ctx, instanceKey(id), toCached(inst), c.ttl); err != nil {
		c.log.WithError(err).Debug("instance cache write failed")
	}
	return inst, nil
}

func (c *CachedInstances) ListActive(ctx context.Context, empresaID uuid.UUID, channel string) ([]*domain.Instance, error) {
	key := activeKey(empresaID, channel)
	var hit []cachedInstance
	if ok, err := c.cache.GetJSON(ctx, key, &hit); err == nil && ok {
		out := make([]*domain.Instance, 0, len(hit))
		for _, h := range hit {
			out = append(out, h.instance())
		}
		return out, nil
	}
	list, err := c.InstanceStore.ListActive(ctx, empresaID, channel)
	if err != nil {
		return nil, err
	}
	cached := make([]cachedInstance, 0, len(list))
	for _, i := range list {
		cached = append(cached, toCached(i))
	}
	if err := c.cache.SetJSON(ctx, key, cached, c.ttl); err != nil {
		c.log.WithError(err).Debug("instance cache write failed")
	}
	return list, nil
}

func (c *CachedInstances) invalidate(ctx context.Context, empresaID, id uuid.UUID) {
	keys := []string{instanceKey(id)}
	for _, ch := range []string{phone.ChannelWhatsApp, phone.ChannelInstagram, phone.ChannelFacebook} {
		keys = append(keys, activeKey(empresaID, ch))
	}
	if err := c.cache.Del(ctx, keys...); err != nil {
		c.log.WithError(err).Warn("instance cache invalidation failed")
	}
}

func (c *CachedInstances) Create(ctx context.Context, i *domain.Instance) error {
	if err := c.InstanceStore.Create(ctx, i); err != nil {
		return err
	}
	c.invalidate(ctx, i.EmpresaID, i.ID)
	return nil
}

func (c *CachedInstances) Update(ctx context.Context, i *domain.Instance) error {
	if err := c.InstanceStore.Update(ctx, i); err != nil {
		return err
	}
	c.invalidate(ctx, i.EmpresaID, i.ID)
	return nil
}

func (c *CachedInstances) Delete(ctx context.Context, empresaID, id uuid.UUID) error {
	if err := c.InstanceStore.Delete(ctx, empresaID, id); err != nil {
		return err
	}
	c.invalidate(ctx, empresaID, id)
	return nil
}

// InstanceService manages the messaging instances of an empresa
type InstanceService struct {
	instances InstanceStore
	members   MemberStore
}

func NewInstanceService(instances InstanceStore, members MemberStore) *InstanceService {
	return &InstanceService{instances: instances, members: members}
}

type InstanceInput struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Channel     string  `json:"channel" validate:"omitempty,oneof=whatsapp instagram facebook"`
	ClientID    string  `json:"client_id" validate:"required,max=255"`
	APIToken    string  `json:"api_token"`
	PhoneNumber *string `json:"phone_number"`
	IsActive    *bool   `json:"is_active"`
}

func (s *InstanceService) List(ctx context.Context, empresaID uuid.UUID) ([]*domain.Instance, error) {
	return s.instances.List(ctx, empresaID)
}

// get scopes the unscoped store lookup to the empresa.
func (s *InstanceService) get(ctx context.Context, empresaID, id uuid.UUID) (*domain.Instance, error) {
	inst, err := s.instances.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inst == nil || inst.EmpresaID != empresaID {
		return nil, apperrors.ErrInstanceNotFound
	}
	return inst, nil
}

func (s *InstanceService) Create(ctx context.Context, callerID, empresaID uuid.UUID, in InstanceInput) (*domain.Instance, error) {
	if _, err := requireManager(ctx, s.members, empresaID, callerID); err != nil {
		return nil, err
	}
	in.Name, in.ClientID = strings.TrimSpace(in.Name), strings.TrimSpace(in.ClientID)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.APIToken == "" {
		return nil, &apperrors.ValidationError{Field: "api_token", Message: "is required"}
	}
	inst := &domain.Instance{
		EmpresaID:   empresaID,
		Name:        in.Name,
		Channel:     in.Channel,
		ClientID:    in.ClientID,
		APIToken:    in.APIToken,
		PhoneNumber: normalizePhone(in.PhoneNumber),
		IsActive:    in.IsActive == nil || *in.IsActive,
	}
	if inst.Channel == "" {
		inst.Channel = phone.ChannelWhatsApp
	}
	if err := s.instances.Create(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// Update keeps the stored token when api_token is empty.
func (s *InstanceService) Update(ctx context.Context, callerID, empresaID, id uuid.UUID, in InstanceInput) (*domain.Instance, error) {
	if _, err := requireManager(ctx, s.members, empresaID, callerID); err != nil {
		return nil, err
	}
	in.Name, in.ClientID = strings.TrimSpace(in.Name), strings.TrimSpace(in.ClientID)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	inst, err := s.get(ctx, empresaID, id)
	if err != nil {
		return nil, err
	}
	inst.Name, inst.ClientID, inst.PhoneNumber = in.Name, in.ClientID, normalizePhone(in.PhoneNumber)
	inst.APIToken = in.APIToken
	if in.Channel != "" {
		inst.Channel = in.Channel
	}
	if in.IsActive != nil {
		inst.IsActive = *in.IsActive
	}
	if err := s.instances.Update(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *InstanceService) Delete(ctx context.Context, callerID, empresaID, id uuid.UUID) error {
	if _, err := requireManager(ctx, s.members, empresaID, callerID); err != nil {
		return err
	}
	if _, err := s.get(ctx, empresaID, id); err != nil {
		return err
	}
	return s.instances.Delete(ctx, empresaID, id)
}
