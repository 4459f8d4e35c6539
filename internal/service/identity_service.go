package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/newsdesk/internal/models"
	"github.com/noah-isme/newsdesk/internal/repository"
	appErrors "github.com/noah-isme/newsdesk/pkg/errors"
)

type identityStore interface {
	Create(ctx context.Context, identity *models.Identity) error
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	Delete(ctx context.Context, id string) error
}

type tokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// IdentityConfig defines configuration for issuing access tokens.
type IdentityConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
	BcryptCost        int
}

// IssuedIdentity is an authenticated identity with its access token.
type IssuedIdentity struct {
	ID        string
	Email     string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IdentityEvent reports a sign-in or a revocation.
type IdentityEvent struct {
	IdentityID string
	Email      string
	SignedIn   bool
}

// IdentityService creates identities, authenticates them and revokes their
// access tokens.
type IdentityService struct {
	store   identityStore
	revoker tokenRevoker
	logger  *zap.Logger
	config  IdentityConfig

	mu        sync.Mutex
	nextID    int
	listeners map[int]func(IdentityEvent)
}

// NewIdentityService constructs an IdentityService instance.
func NewIdentityService(store identityStore, revoker tokenRevoker, logger *zap.Logger, config IdentityConfig) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 24 * time.Hour
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.Issuer == "" {
		config.Issuer = "newsdesk"
	}
	return &IdentityService{
		store:     store,
		revoker:   revoker,
		logger:    logger,
		config:    config,
		listeners: make(map[int]func(IdentityEvent)),
	}
}

// CreateIdentity registers a new email/password identity and signs it in.
func (s *IdentityService) CreateIdentity(ctx context.Context, email, password string) (*IssuedIdentity, error) {
	email = normalizeEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	identity := &models.Identity{ID: uuid.NewString(), Email: email, PasswordHash: string(hash)}
	if err := s.store.Create(ctx, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, appErrors.Backend(err, "failed to create identity")
	}

	issued, err := s.issue(identity)
	if err != nil {
		return nil, err
	}
	s.emit(IdentityEvent{IdentityID: identity.ID, Email: identity.Email, SignedIn: true})
	return issued, nil
}

// Authenticate checks credentials and issues an access token.
func (s *IdentityService) Authenticate(ctx context.Context, email, password string) (*IssuedIdentity, error) {
	identity, err := s.store.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Backend(err, "failed to fetch identity")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.PasswordHash), []byte(password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	issued, err := s.issue(identity)
	if err != nil {
		return nil, err
	}
	s.emit(IdentityEvent{IdentityID: identity.ID, Email: identity.Email, SignedIn: true})
	return issued, nil
}

// DeleteIdentity removes an identity. Sign-up uses it to undo a half-created
// account.
func (s *IdentityService) DeleteIdentity(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return appErrors.Backend(err, "failed to delete identity")
	}
	return nil
}

// Revoke invalidates an access token for the rest of its lifetime.
func (s *IdentityService) Revoke(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		// An expired or malformed token cannot be used anyway.
		return nil
	}

	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl > 0 {
		if err := s.revoker.Revoke(ctx, claims.ID, ttl); err != nil {
			return appErrors.Backend(err, "failed to revoke session")
		}
	}
	s.emit(IdentityEvent{IdentityID: claims.IdentityID, Email: claims.Email})
	return nil
}

// ValidateToken parses an access token and rejects revoked ones.
func (s *IdentityService) ValidateToken(ctx context.Context, token string) (*models.JWTClaims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, appErrors.Backend(err, "failed to check token revocation")
	}
	if revoked {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token revoked")
	}
	return claims, nil
}

// OnIdentityChange registers fn for sign-in and revocation events. The
// returned func removes the listener.
func (s *IdentityService) OnIdentityChange(fn func(IdentityEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
		})
	}
}

func (s *IdentityService) emit(ev IdentityEvent) {
	s.mu.Lock()
	listeners := make([]func(IdentityEvent), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func (s *IdentityService) parse(token string) (*models.JWTClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	}, jwt.WithIssuer(s.config.Issuer))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*models.JWTClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

func (s *IdentityService) issue(identity *models.Identity) (*IssuedIdentity, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		IdentityID: identity.ID,
		Email:      identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   identity.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	return &IssuedIdentity{ID: identity.ID, Email: identity.Email, Token: signed, IssuedAt: issuedAt, ExpiresAt: expiresAt}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
