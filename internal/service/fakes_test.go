package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/naperu/embudo/internal/domain"
	"github.com/naperu/embudo/internal/mailer"
	"github.com/naperu/embudo/internal/repository"
	"github.com/naperu/embudo/internal/superapi"
)

// Fakes embed the store interface and implement only what a test touches;
// an unexpected call panics on the nil embedded value.

type fakeLeads struct {
	LeadStore
	mu        sync.Mutex
	byID      map[uuid.UUID]*domain.Lead
	preferred map[uuid.UUID]uuid.UUID
	touched   map[uuid.UUID]time.Time
	prefErr   error
	searched  []string
}

func newFakeLeads(leads ...*domain.Lead) *fakeLeads {
	f := &fakeLeads{byID: map[uuid.UUID]*domain.Lead{}, preferred: map[uuid.UUID]uuid.UUID{}, touched: map[uuid.UUID]time.Time{}}
	for _, l := range leads {
		f.byID[l.ID] = l
	}
	return f
}

func (f *fakeLeads) Get(_ context.Context, empresaID, id uuid.UUID) (*domain.Lead, error) {
	l, ok := f.byID[id]
	if !ok || l.EmpresaID != empresaID {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLeads) Create(_ context.Context, l *domain.Lead) error {
	l.ID = uuid.New()
	f.byID[l.ID] = l
	return nil
}

func (f *fakeLeads) MoveStage(_ context.Context, id, pipelineID, stageID uuid.UUID) error {
	l := f.byID[id]
	l.PipelineID, l.StageID = &pipelineID, &stageID
	return nil
}

func (f *fakeLeads) SetPreferredInstance(_ context.Context, id, instanceID uuid.UUID) error {
	if f.prefErr != nil {
		return f.prefErr
	}
	f.preferred[id] = instanceID
	return nil
}

func (f *fakeLeads) TouchLastMessage(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[id] = at
	return nil
}

func (f *fakeLeads) FindByPhone(_ context.Context, empresaID *uuid.UUID, digits string) (*domain.Lead, error) {
	f.searched = append(f.searched, digits)
	for _, l := range f.byID {
		if empresaID != nil && l.EmpresaID != *empresaID {
			continue
		}
		if l.Phone != nil && *l.Phone == digits {
			return l, nil
		}
	}
	return nil, nil
}

type fakeMessages struct {
	MessageStore
	byID        map[uuid.UUID]*domain.Message
	lastInbound map[uuid.UUID]*domain.Message
	created     []*domain.Message
	createErr   error
}

func newFakeMessages(msgs ...*domain.Message) *fakeMessages {
	f := &fakeMessages{byID: map[uuid.UUID]*domain.Message{}, lastInbound: map[uuid.UUID]*domain.Message{}}
	for _, m := range msgs {
		f.byID[m.ID] = m
		if m.Sender == domain.SenderLead {
			f.lastInbound[m.LeadID] = m
		}
	}
	return f
}

func (f *fakeMessages) Create(_ context.Context, m *domain.Message) error {
	if f.createErr != nil {
		return f.createErr
	}
	m.ID = uuid.New()
	m.CreatedAt = time.Now()
	f.created = append(f.created, m)
	return nil
}

func (f *fakeMessages) Get(_ context.Context, empresaID, id uuid.UUID) (*domain.Message, error) {
	m, ok := f.byID[id]
	if !ok || m.EmpresaID != empresaID {
		return nil, nil
	}
	return m, nil
}

func (f *fakeMessages) LastInbound(_ context.Context, leadID uuid.UUID) (*domain.Message, error) {
	return f.lastInbound[leadID], nil
}

type fakeInstances struct {
	InstanceStore
	byID map[uuid.UUID]*domain.Instance
	gets int
}

func newFakeInstances(insts ...*domain.Instance) *fakeInstances {
	f := &fakeInstances{byID: map[uuid.UUID]*domain.Instance{}}
	for _, i := range insts {
		f.byID[i.ID] = i
	}
	return f
}

func (f *fakeInstances) Get(_ context.Context, id uuid.UUID) (*domain.Instance, error) {
	f.gets++
	return f.byID[id], nil
}

func (f *fakeInstances) FindByClient(_ context.Context, clientID string) (*domain.Instance, error) {
	for _, i := range f.byID {
		if i.ClientID == clientID {
			return i, nil
		}
	}
	return nil, nil
}

func (f *fakeInstances) ListActive(_ context.Context, empresaID uuid.UUID, channel string) ([]*domain.Instance, error) {
	var out []*domain.Instance
	for _, i := range f.byID {
		if i.EmpresaID == empresaID && i.Channel == channel && i.IsActive {
			out = append(out, i)
		}
	}
	// oldest first, matching the repository
	for a := 0; a < len(out); a++ {
		for b := a + 1; b < len(out); b++ {
			if out[b].CreatedAt.Before(out[a].CreatedAt) {
				out[a], out[b] = out[b], out[a]
			}
		}
	}
	return out, nil
}

func (f *fakeInstances) Update(_ context.Context, i *domain.Instance) error {
	f.byID[i.ID] = i
	return nil
}

type fakeGateway struct {
	calls []superapi.SendRequest
	token string
	err   error
}

func (g *fakeGateway) SendMessage(_ context.Context, token string, req superapi.SendRequest) (*superapi.SendResponse, error) {
	g.calls = append(g.calls, req)
	g.token = token
	if g.err != nil {
		return nil, g.err
	}
	return &superapi.SendResponse{Success: true, MessageID: "ext-1"}, nil
}

type broadcast struct {
	empresaID uuid.UUID
	event     string
	data      interface{}
}

type fakeHub struct {
	mu     sync.Mutex
	events []broadcast
}

func (h *fakeHub) BroadcastToEmpresa(empresaID uuid.UUID, event string, data interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, broadcast{empresaID, event, data})
}

type fakeMembers struct {
	MemberStore
	roles   map[uuid.UUID]string
	byEmail map[string]*domain.Member
	members []*domain.Member
}

func newFakeMembers() *fakeMembers {
	return &fakeMembers{roles: map[uuid.UUID]string{}, byEmail: map[string]*domain.Member{}}
}

func (f *fakeMembers) add(empresaID, userID uuid.UUID, role, email string) *domain.Member {
	m := &domain.Member{ID: uuid.New(), EmpresaID: empresaID, UserID: userID, Role: role, Email: email}
	f.roles[userID] = role
	f.byEmail[email] = m
	f.members = append(f.members, m)
	return m
}

func (f *fakeMembers) GetRole(_ context.Context, _, userID uuid.UUID) (string, error) {
	return f.roles[userID], nil
}

func (f *fakeMembers) GetByEmail(_ context.Context, _ uuid.UUID, email string) (*domain.Member, error) {
	return f.byEmail[email], nil
}

func (f *fakeMembers) Get(_ context.Context, _, id uuid.UUID) (*domain.Member, error) {
	for _, m := range f.members {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, nil
}

func (f *fakeMembers) UpdateRole(_ context.Context, id uuid.UUID, role string) error {
	for _, m := range f.members {
		if m.ID == id {
			m.Role = role
		}
	}
	return nil
}

func (f *fakeMembers) List(context.Context, uuid.UUID) ([]*domain.Member, error) {
	return f.members, nil
}

func (f *fakeMembers) Remove(_ context.Context, id uuid.UUID) error {
	for i, m := range f.members {
		if m.ID == id {
			delete(f.roles, m.UserID)
			delete(f.byEmail, m.Email)
			f.members = append(f.members[:i], f.members[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeMembers) ListByRole(_ context.Context, _ uuid.UUID, roles ...string) ([]*domain.Member, error) {
	var out []*domain.Member
	for _, m := range f.members {
		for _, r := range roles {
			if m.Role == r {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

type fakeEmpresas struct {
	EmpresaStore
	byID map[uuid.UUID]*domain.Empresa
}

func newFakeEmpresas(es ...*domain.Empresa) *fakeEmpresas {
	f := &fakeEmpresas{byID: map[uuid.UUID]*domain.Empresa{}}
	for _, e := range es {
		f.byID[e.ID] = e
	}
	return f
}

func (f *fakeEmpresas) GetByID(_ context.Context, id uuid.UUID) (*domain.Empresa, error) {
	e, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

type fakeUsers struct {
	UserStore
	byID map[uuid.UUID]*domain.User
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	return f.byID[id], nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

type fakeInvitations struct {
	InvitationStore
	pending  *domain.Invitation
	lapsed   *domain.Invitation
	byToken  map[string]*domain.Invitation
	created  []*domain.Invitation
	statuses map[uuid.UUID]string
	accepted []uuid.UUID
}

func newFakeInvitations() *fakeInvitations {
	return &fakeInvitations{byToken: map[string]*domain.Invitation{}, statuses: map[uuid.UUID]string{}}
}

func (f *fakeInvitations) GetPending(context.Context, uuid.UUID, string) (*domain.Invitation, error) {
	return f.pending, nil
}

func (f *fakeInvitations) ExpireStaleFor(_ context.Context, _ uuid.UUID, _ string, now time.Time) error {
	if f.lapsed != nil && !f.lapsed.ExpiresAt.After(now) {
		f.lapsed.Status = domain.InvitationExpired
	}
	return nil
}

// Create mirrors the partial unique index over every pending row.
func (f *fakeInvitations) Create(_ context.Context, inv *domain.Invitation) error {
	if f.lapsed != nil && f.lapsed.Status == domain.InvitationPending {
		return repository.ErrDuplicate
	}
	inv.ID = uuid.New()
	inv.CreatedAt = time.Now()
	f.created = append(f.created, inv)
	f.byToken[inv.Token] = inv
	return nil
}

func (f *fakeInvitations) GetByToken(_ context.Context, token string) (*domain.Invitation, error) {
	return f.byToken[token], nil
}

func (f *fakeInvitations) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	f.statuses[id] = status
	return nil
}

func (f *fakeInvitations) Accept(_ context.Context, inv *domain.Invitation, userID uuid.UUID) error {
	inv.Status = domain.InvitationAccepted
	f.accepted = append(f.accepted, userID)
	return nil
}

type fakeMailer struct {
	sent []mailer.Email
	err  error
}

func (m *fakeMailer) Send(_ context.Context, e mailer.Email) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, e)
	return "email-1", nil
}

type fakeAppointments struct {
	AppointmentStore
	created []*domain.Appointment
}

func (f *fakeAppointments) Create(_ context.Context, a *domain.Appointment) error {
	a.ID = uuid.New()
	f.created = append(f.created, a)
	return nil
}

type fakeTasks struct {
	TaskStore
	byID     map[uuid.UUID]*domain.Task
	statuses []string
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{byID: map[uuid.UUID]*domain.Task{}}
}

func (f *fakeTasks) Get(_ context.Context, empresaID, id uuid.UUID) (*domain.Task, error) {
	t, ok := f.byID[id]
	if !ok || t.EmpresaID != empresaID {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTasks) Create(_ context.Context, t *domain.Task) error {
	t.ID = uuid.New()
	cp := *t
	f.byID[t.ID] = &cp
	return nil
}

func (f *fakeTasks) Update(_ context.Context, t *domain.Task) error {
	cp := *t
	f.byID[t.ID] = &cp
	return nil
}

func (f *fakeTasks) SetStatus(_ context.Context, id uuid.UUID, status string, completedAt *time.Time) error {
	t := f.byID[id]
	t.Status, t.CompletedAt = status, completedAt
	f.statuses = append(f.statuses, status)
	return nil
}

type fakeNotifications struct {
	NotificationStore
	created []*domain.Notification
	err     error
}

func (f *fakeNotifications) Create(_ context.Context, n *domain.Notification) error {
	if f.err != nil {
		return f.err
	}
	n.ID = uuid.New()
	f.created = append(f.created, n)
	return nil
}

type fakePipelines struct {
	PipelineStore
	def    *domain.Pipeline
	stages map[uuid.UUID]*domain.Stage
}

func (f *fakePipelines) GetDefault(context.Context, uuid.UUID) (*domain.Pipeline, error) {
	return f.def, nil
}

func (f *fakePipelines) Get(_ context.Context, _, id uuid.UUID) (*domain.Pipeline, error) {
	if f.def != nil && f.def.ID == id {
		return f.def, nil
	}
	return nil, nil
}

func (f *fakePipelines) GetStage(_ context.Context, _, id uuid.UUID) (*domain.Stage, error) {
	return f.stages[id], nil
}

func (f *fakePipelines) ReorderStages(context.Context, uuid.UUID, []uuid.UUID) error {
	return nil
}

// memCache is an in-memory JSONCache.
type memCache struct {
	data map[string][]byte
	dels []string
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (c *memCache) GetJSON(_ context.Context, key string, dst interface{}) (bool, error) {
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *memCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = b
	return nil
}

func (c *memCache) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.data, k)
		c.dels = append(c.dels, k)
	}
	return nil
}
