package database

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/naperu/embudo/internal/domain"
	"github.com/naperu/embudo/pkg/config"
	"github.com/naperu/embudo/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

func Connect(databaseURL string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// migrations are idempotent and run in order on every start.
var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto`,

	`CREATE TABLE IF NOT EXISTS usuarios (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		email VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		display_name VARCHAR(255) NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_usuarios_email ON usuarios (lower(email))`,

	`CREATE TABLE IF NOT EXISTS empresa (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		nombre VARCHAR(255) NOT NULL,
		slug VARCHAR(255) NOT NULL UNIQUE,
		plan VARCHAR(50) NOT NULL DEFAULT 'free',
		booking_token VARCHAR(128) NOT NULL,
		timezone VARCHAR(64) NOT NULL DEFAULT 'America/Lima',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS empresa_miembros (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		empresa_id UUID NOT NULL REFERENCES empresa(id) ON DELETE CASCADE,
		user_id UUID NOT NULL REFERENCES usuarios(id) ON DELETE CASCADE,
		role VARCHAR(20) NOT NULL DEFAULT 'member',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (empresa_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS equipo_invitaciones (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		empresa_id UUID NOT NULL REFERENCES empresa(id) ON DELETE CASCADE,
		email VARCHAR(255) NOT NULL,
		nombre VARCHAR(255),
		role VARCHAR(20) NOT NULL DEFAULT 'member',
		token VARCHAR(128) NOT NULL UNIQUE,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		invited_by UUID REFERENCES usuarios(id) ON DELETE SET NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		accepted_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_invitaciones_pending
		ON equipo_invitaciones (empresa_id, lower(email)) WHERE status = 'pending'`,

	`CREATE TABLE IF NOT EXISTS pipeline (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		empresa_id UUID NOT NULL REFERENCES empresa(id) ON DELETE CASCADE,
		nombre VARCHAR(255) NOT NULL,
		descripcion TEXT,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS etapas (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		pipeline_id UUID NOT NULL REFERENCES pipeline(id) ON DELETE CASCADE,
		nombre VARCHAR(255) NOT NULL,
		color VARCHAR(20) NOT NULL DEFAULT '#6366f1',
		posicion INT NOT NULL DEFAULT 0,
		is_won BOOLEAN NOT NULL DEFAULT FALSE,
		is_lost BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS instancias (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		empresa_id UUID NOT NULL REFERENCES empresa(id) ON DELETE CASCADE,
		nombre VARCHAR(255) NOT NULL,
		channel VARCHAR(20) NOT NULL DEFAULT 'whatsapp',
		client_id VARCHAR(255) NOT NULL,
		api_token TEXT NOT NULL,
		phone_number VARCHAR(50),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_instancias_client ON instancias (client_id)`,

	`CREATE TABLE IF NOT EXISTS lead (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		empresa_id UUID NOT NULL REFERENCES empresa(id) ON DELETE CASCADE,
		pipeline_id UUID REFERENCES pipeline(id) ON DELETE SET NULL,
		etapa_id UUID REFERENCES etapas(id) ON DELETE SET NULL,
		nombre VARCHAR(255) NOT NULL DEFAULT '',
		telefono VARCHAR(50),
		email VARCHAR(255),
		chat_id VARCHAR(255),
		channel VARCHAR(20) NOT NULL DEFAULT 'whatsapp',
		source VARCHAR(100),
		notas TEXT,
		valor NUMERIC(14,2) NOT NULL DEFAULT 0,
		assigned_to UUID REFERENCES usuarios(id) ON DELETE SET NULL,
		instancia_id UUID REFERENCES instancias(id) ON DELETE SET NULL,
		last_message_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lead_empresa ON lead (empresa_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_lead_etapa ON lead (etapa_id)`,

	`CREATE TABLE IF NOT EXISTS mensajes (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		empresa_id UUID NOT NULL REFERENCES empresa(id) ON DELETE CASCADE,
		lead_id UUID NOT NULL REFERENCES lead(id) ON DELETE CASCADE,
		sender VARCHAR(20) NOT NULL,
		contenido TEXT NOT NULL DEFAULT '',
		channel VARCHAR(20) NOT NULL DEFAULT 'whatsapp',
		media_url TEXT,
		media_type VARCHAR(50),
		external_id VARCHAR(255),
		metadata JSONB NOT NULL DEFAULT '{}',
		user_id UUID REFERENCES usuarios(id) ON DELETE SET NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'sent',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_mensajes_lead ON mensajes (lead_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS tareas (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		empresa_id UUID NOT NULL REFERENCES empresa(id) ON DELETE CASCADE,
		lead_id UUID REFERENCES lead(id) ON DELETE CASCADE,
		assigned_to UUID REFERENCES usuarios(id) ON DELETE SET NULL,
		titulo VARCHAR(255) NOT NULL,
		descripcion TEXT,
		due_at TIMESTAMPTZ,
		prioridad VARCHAR(20) NOT NULL DEFAULT 'medium',
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		completed_at TIMESTAMPTZ,
		reminder_sent_at TIMESTAMPTZ,
		created_by UUID REFERENCES usuarios(id) ON DELETE SET NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS citas (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		empresa_id UUID NOT NULL REFERENCES empresa(id) ON DELETE CASCADE,
		lead_id UUID NOT NULL REFERENCES lead(id) ON DELETE CASCADE,
		assigned_to UUID REFERENCES usuarios(id) ON DELETE SET NULL,
		titulo VARCHAR(255) NOT NULL,
		notas TEXT,
		starts_at TIMESTAMPTZ NOT NULL,
		ends_at TIMESTAMPTZ NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'scheduled',
		source VARCHAR(20) NOT NULL DEFAULT 'manual',
		reminder_sent_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS etiquetas (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		empresa_id UUID NOT NULL REFERENCES empresa(id) ON DELETE CASCADE,
		nombre VARCHAR(100) NOT NULL,
		color VARCHAR(20) NOT NULL DEFAULT '#6366f1',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (empresa_id, nombre)
	)`,

	`CREATE TABLE IF NOT EXISTS lead_etiquetas (
		lead_id UUID NOT NULL REFERENCES lead(id) ON DELETE CASCADE,
		etiqueta_id UUID NOT NULL REFERENCES etiquetas(id) ON DELETE CASCADE,
		PRIMARY KEY (lead_id, etiqueta_id)
	)`,

	`CREATE TABLE IF NOT EXISTS catalogo_items (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		empresa_id UUID NOT NULL REFERENCES empresa(id) ON DELETE CASCADE,
		nombre VARCHAR(255) NOT NULL,
		descripcion TEXT,
		sku VARCHAR(100),
		precio NUMERIC(14,2) NOT NULL DEFAULT 0,
		moneda VARCHAR(3) NOT NULL DEFAULT 'PEN',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS notificaciones (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		empresa_id UUID NOT NULL REFERENCES empresa(id) ON DELETE CASCADE,
		user_id UUID REFERENCES usuarios(id) ON DELETE CASCADE,
		tipo VARCHAR(50) NOT NULL,
		titulo VARCHAR(255) NOT NULL,
		cuerpo TEXT NOT NULL DEFAULT '',
		entity_type VARCHAR(50),
		entity_id UUID,
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notificaciones_user ON notificaciones (user_id, is_read, created_at DESC)`,
}

func Migrate(db *pgxpool.Pool) error {
	ctx := context.Background()
	for i, stmt := range migrations {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}

// NewBookingToken returns a random shared secret for book-appointment.
func NewBookingToken() (string, error) {
	var b [24]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

// SeedAdmin creates the first user, its empresa and a default pipeline when
// the database is empty.
func SeedAdmin(db *pgxpool.Pool, cfg *config.Config) error {
	ctx := context.Background()
	log := logger.Component("seed")

	var count int
	if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM usuarios`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	bookingToken, err := NewBookingToken()
	if err != nil {
		return fmt.Errorf("failed to generate booking token: %w", err)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var userID, empresaID, pipelineID string
	if err := tx.QueryRow(ctx, `
		INSERT INTO usuarios (email, password_hash, display_name) VALUES ($1, $2, 'Administrador')
		RETURNING id
	`, cfg.AdminEmail, string(hashedPassword)).Scan(&userID); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	if err := tx.QueryRow(ctx, `
		INSERT INTO empresa (nombre, slug, plan, booking_token) VALUES ($1, 'demo', 'enterprise', $2)
		RETURNING id
	`, cfg.AdminEmpresa, bookingToken).Scan(&empresaID); err != nil {
		return fmt.Errorf("failed to create empresa: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO empresa_miembros (empresa_id, user_id, role) VALUES ($1, $2, $3)
	`, empresaID, userID, domain.RoleOwner); err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	if err := tx.QueryRow(ctx, `
		INSERT INTO pipeline (empresa_id, nombre, descripcion, is_default)
		VALUES ($1, 'Pipeline Principal', 'Pipeline por defecto para leads', TRUE)
		RETURNING id
	`, empresaID).Scan(&pipelineID); err != nil {
		return fmt.Errorf("failed to create default pipeline: %w", err)
	}
	for _, stage := range domain.DefaultStages() {
		if _, err := tx.Exec(ctx, `
			INSERT INTO etapas (pipeline_id, nombre, color, posicion, is_won, is_lost)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, pipelineID, stage.Name, stage.Color, stage.Position, stage.IsWon, stage.IsLost); err != nil {
			return fmt.Errorf("failed to create stage %s: %w", stage.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	log.WithField("email", cfg.AdminEmail).Info("seeded admin user and default empresa")
	return nil
}
