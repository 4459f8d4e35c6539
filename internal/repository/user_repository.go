package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/newsdesk/internal/livequery"
	"github.com/noah-isme/newsdesk/internal/models"
)

// ErrDuplicateEmail is returned when an identity already uses the email.
var ErrDuplicateEmail = errors.New("email already registered")

const uniqueViolation = "23505"

// IdentityRepository stores sign-in credentials.
type IdentityRepository struct {
	db *sqlx.DB
}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository(db *sqlx.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Create inserts an identity.
func (r *IdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	const query = `INSERT INTO identities (id, email, password_hash, created_at) VALUES ($1, $2, $3, NOW()) RETURNING created_at`
	err := r.db.QueryRowxContext(ctx, query, identity.ID, identity.Email, identity.PasswordHash).Scan(&identity.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// FindByEmail returns an identity by email address or sql.ErrNoRows.
func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	const query = `SELECT id, email, password_hash, created_at FROM identities WHERE email = $1 LIMIT 1`
	var identity models.Identity
	if err := r.db.GetContext(ctx, &identity, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find identity by email: %w", err)
	}
	return &identity, nil
}

// Delete removes an identity and, through the foreign key, its profile.
func (r *IdentityRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM identities WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

// ProfileRepository stores the role record of each identity.
type ProfileRepository struct {
	db       *sqlx.DB
	notifier livequery.Notifier
	logger   *zap.Logger
}

// NewProfileRepository creates a new ProfileRepository. notifier may be nil.
func NewProfileRepository(db *sqlx.DB, notifier livequery.Notifier, logger *zap.Logger) *ProfileRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileRepository{db: db, notifier: notifier, logger: logger}
}

// Save upserts a profile.
func (r *ProfileRepository) Save(ctx context.Context, profile *models.Profile) error {
	const query = `INSERT INTO profiles (identity_id, email, role, display_name, created_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (identity_id) DO UPDATE SET email = EXCLUDED.email, role = EXCLUDED.role, display_name = EXCLUDED.display_name
RETURNING created_at`
	err := r.db.QueryRowxContext(ctx, query, profile.IdentityID, profile.Email, profile.Role, profile.DisplayName).Scan(&profile.CreatedAt)
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	notify(ctx, r.notifier, r.logger, livequery.CollectionProfiles)
	return nil
}

// FindByID returns the profile of an identity or sql.ErrNoRows.
func (r *ProfileRepository) FindByID(ctx context.Context, identityID string) (*models.Profile, error) {
	const query = `SELECT identity_id, email, role, display_name, created_at FROM profiles WHERE identity_id = $1`
	var profile models.Profile
	if err := r.db.GetContext(ctx, &profile, query, identityID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return &profile, nil
}
