package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/naperu/embudo/internal/domain"
)

type Repositories struct {
	db           *pgxpool.Pool
	User         *UserRepository
	Empresa      *EmpresaRepository
	Member       *MemberRepository
	Invitation   *InvitationRepository
	Pipeline     *PipelineRepository
	Lead         *LeadRepository
	Message      *MessageRepository
	Instance     *InstanceRepository
	Task         *TaskRepository
	Appointment  *AppointmentRepository
	Tag          *TagRepository
	Catalog      *CatalogRepository
	Notification *NotificationRepository
	Analytics    *AnalyticsRepository
}

func NewRepositories(db *pgxpool.Pool) *Repositories {
	return &Repositories{
		db:           db,
		User:         &UserRepository{db: db},
		Empresa:      &EmpresaRepository{db: db},
		Member:       &MemberRepository{db: db},
		Invitation:   &InvitationRepository{db: db},
		Pipeline:     &PipelineRepository{db: db},
		Lead:         &LeadRepository{db: db},
		Message:      &MessageRepository{db: db},
		Instance:     &InstanceRepository{db: db},
		Task:         &TaskRepository{db: db},
		Appointment:  &AppointmentRepository{db: db},
		Tag:          &TagRepository{db: db},
		Catalog:      &CatalogRepository{db: db},
		Notification: &NotificationRepository{db: db},
		Analytics:    &AnalyticsRepository{db: db},
	}
}

// DB returns the underlying database pool.
func (r *Repositories) DB() *pgxpool.Pool {
	return r.db
}

// isUniqueViolation reports a 23505 error, optionally for a named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// UserRepository handles user data access
type UserRepository struct {
	db *pgxpool.Pool
}

const userColumns = `id, email, password_hash, display_name, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	u := &domain.User{}
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM usuarios WHERE lower(email) = lower($1)`, strings.TrimSpace(email)))
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM usuarios WHERE id = $1`, id))
}

// Create inserts the user. A duplicate email yields ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO usuarios (email, password_hash, display_name)
		VALUES ($1, $2, $3)
		RETURNING id, is_active, created_at, updated_at
	`, strings.TrimSpace(u.Email), u.PasswordHash, u.DisplayName).Scan(&u.ID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err, "") {
		return ErrDuplicate
	}
	return err
}

// ErrDuplicate is returned when an insert hits a unique index.
var ErrDuplicate = errors.New("duplicate key")

// EmpresaRepository handles tenant data access
type EmpresaRepository struct {
	db *pgxpool.Pool
}

func (r *EmpresaRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Empresa, error) {
	e := &domain.Empresa{}
	err := r.db.QueryRow(ctx, `
		SELECT id, nombre, slug, plan, booking_token, timezone, is_active, created_at, updated_at
		FROM empresa WHERE id = $1
	`, id).Scan(&e.ID, &e.Name, &e.Slug, &e.Plan, &e.BookingToken, &e.Timezone, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListForUser returns every empresa the user belongs to, with the user's role.
func (r *EmpresaRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Empresa, error) {
	rows, err := r.db.Query(ctx, `
		SELECT e.id, e.nombre, e.slug, e.plan, e.timezone, e.is_active, e.created_at, e.updated_at, m.role,
		       (SELECT COUNT(*) FROM empresa_miembros WHERE empresa_id = e.id)
		FROM empresa e
		JOIN empresa_miembros m ON m.empresa_id = e.id
		WHERE m.user_id = $1
		ORDER BY m.created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var empresas []*domain.Empresa
	for rows.Next() {
		e := &domain.Empresa{}
		if err := rows.Scan(&e.ID, &e.Name, &e.Slug, &e.Plan, &e.Timezone, &e.IsActive, &e.CreatedAt, &e.UpdatedAt, &e.Role, &e.MemberCount); err != nil {
			return nil, err
		}
		empresas = append(empresas, e)
	}
	return empresas, rows.Err()
}

func (r *EmpresaRepository) Update(ctx context.Context, e *domain.Empresa) error {
	return r.db.QueryRow(ctx, `
		UPDATE empresa SET nombre = $1, timezone = $2, updated_at = NOW() WHERE id = $3
		RETURNING updated_at
	`, e.Name, e.Timezone, e.ID).Scan(&e.UpdatedAt)
}

func (r *EmpresaRepository) SetBookingToken(ctx context.Context, id uuid.UUID, token string) error {
	_, err := r.db.Exec(ctx, `UPDATE empresa SET booking_token = $1, updated_at = NOW() WHERE id = $2`, token, id)
	return err
}

// CreateWithOwner inserts the empresa, the owner membership and the default
// pipeline with its stages in one transaction.
func (r *EmpresaRepository) CreateWithOwner(ctx context.Context, e *domain.Empresa, ownerID uuid.UUID, pipeline *domain.Pipeline) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO empresa (nombre, slug, plan, booking_token, timezone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_active, created_at, updated_at
	`, e.Name, e.Slug, e.Plan, e.BookingToken, e.Timezone).Scan(&e.ID, &e.IsActive, &e.CreatedAt, &e.UpdatedAt)
	if isUniqueViolation(err, "") {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO empresa_miembros (empresa_id, user_id, role) VALUES ($1, $2, $3)
	`, e.ID, ownerID, domain.RoleOwner); err != nil {
		return err
	}

	if pipeline != nil {
		pipeline.EmpresaID = e.ID
		if err := insertPipeline(ctx, tx, pipeline); err != nil {
			return err
		}
	}

	e.Role = domain.RoleOwner
	return tx.Commit(ctx)
}

// MemberRepository handles empresa membership data access
type MemberRepository struct {
	db *pgxpool.Pool
}

const memberSelect = `
	SELECT m.id, m.empresa_id, m.user_id, m.role, m.created_at, u.email, u.display_name
	FROM empresa_miembros m
	JOIN usuarios u ON u.id = m.user_id`

func scanMember(row pgx.Row) (*domain.Member, error) {
	m := &domain.Member{}
	err := row.Scan(&m.ID, &m.EmpresaID, &m.UserID, &m.Role, &m.CreatedAt, &m.Email, &m.DisplayName)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func collectMembers(rows pgx.Rows) ([]*domain.Member, error) {
	defer rows.Close()
	var members []*domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetRole returns the user's role in the empresa, or "" when not a member.
func (r *MemberRepository) GetRole(ctx context.Context, empresaID, userID uuid.UUID) (string, error) {
	var role string
	err := r.db.QueryRow(ctx, `
		SELECT role FROM empresa_miembros WHERE empresa_id = $1 AND user_id = $2
	`, empresaID, userID).Scan(&role)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	return role, err
}

func (r *MemberRepository) List(ctx context.Context, empresaID uuid.UUID) ([]*domain.Member, error) {
	rows, err := r.db.Query(ctx, memberSelect+` WHERE m.empresa_id = $1 ORDER BY m.created_at`, empresaID)
	if err != nil {
		return nil, err
	}
	return collectMembers(rows)
}

func (r *MemberRepository) ListByRole(ctx context.Context, empresaID uuid.UUID, roles ...string) ([]*domain.Member, error) {
	rows, err := r.db.Query(ctx, memberSelect+` WHERE m.empresa_id = $1 AND m.role = ANY($2) ORDER BY m.created_at`, empresaID, roles)
	if err != nil {
		return nil, err
	}
	return collectMembers(rows)
}

func (r *MemberRepository) Get(ctx context.Context, empresaID, id uuid.UUID) (*domain.Member, error) {
	return scanMember(r.db.QueryRow(ctx, memberSelect+` WHERE m.empresa_id = $1 AND m.id = $2`, empresaID, id))
}

// GetByEmail finds a member of the empresa by login email.
func (r *MemberRepository) GetByEmail(ctx context.Context, empresaID uuid.UUID, email string) (*domain.Member, error) {
	return scanMember(r.db.QueryRow(ctx, memberSelect+` WHERE m.empresa_id = $1 AND lower(u.email) = lower($2)`, empresaID, strings.TrimSpace(email)))
}

func (r *MemberRepository) UpdateRole(ctx context.Context, id uuid.UUID, role string) error {
	_, err := r.db.Exec(ctx, `UPDATE empresa_miembros SET role = $1 WHERE id = $2`, role, id)
	return err
}

func (r *MemberRepository) Remove(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM empresa_miembros WHERE id = $1`, id)
	return err
}
