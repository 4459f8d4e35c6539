package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/newsdesk/internal/models"
	appErrors "github.com/noah-isme/newsdesk/pkg/errors"
)

type profileStore interface {
	Save(ctx context.Context, profile *models.Profile) error
	FindByID(ctx context.Context, identityID string) (*models.Profile, error)
}

type identityProvider interface {
	CreateIdentity(ctx context.Context, email, password string) (*IssuedIdentity, error)
	Authenticate(ctx context.Context, email, password string) (*IssuedIdentity, error)
	DeleteIdentity(ctx context.Context, id string) error
	Revoke(ctx context.Context, token string) error
	ValidateToken(ctx context.Context, token string) (*models.JWTClaims, error)
	OnIdentityChange(fn func(IdentityEvent)) func()
}

// SessionProvider tracks one client's authenticated identity and its role.
// It moves Unauthenticated -> Authenticating -> Authenticated and back to
// Unauthenticated on sign-out. Consumers receive it explicitly; there is no
// package level session.
type SessionProvider struct {
	identity  identityProvider
	profiles  profileStore
	validator *validator.Validate
	logger    *zap.Logger

	mu        sync.Mutex
	session   models.Session
	nextID    int
	listeners map[int]func(models.Session)
	unlisten  func()
}

// NewSessionProvider returns an unauthenticated provider.
func NewSessionProvider(identity identityProvider, profiles profileStore, validate *validator.Validate, logger *zap.Logger) *SessionProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SessionProvider{
		identity:  identity,
		profiles:  profiles,
		validator: validate,
		logger:    logger,
		session:   models.Session{State: models.SessionUnauthenticated},
		listeners: make(map[int]func(models.Session)),
	}
}

// Listen follows identity events so a revocation of this session's identity
// made elsewhere signs it out. Close stops listening.
func (p *SessionProvider) Listen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unlisten != nil {
		return
	}
	p.unlisten = p.identity.OnIdentityChange(func(ev IdentityEvent) {
		if ev.SignedIn {
			return
		}
		p.mu.Lock()
		mine := p.session.IdentityID != "" && p.session.IdentityID == ev.IdentityID
		p.mu.Unlock()
		if mine {
			p.set(models.Session{State: models.SessionUnauthenticated})
		}
	})
}

// Close releases the identity listener and drops every change listener.
func (p *SessionProvider) Close() {
	p.mu.Lock()
	unlisten := p.unlisten
	p.unlisten = nil
	p.listeners = make(map[int]func(models.Session))
	p.mu.Unlock()
	if unlisten != nil {
		unlisten()
	}
}

// Current returns a copy of the session.
func (p *SessionProvider) Current() models.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// OnChange registers fn to receive every session state change. The returned
// func removes the listener.
func (p *SessionProvider) OnChange(fn func(models.Session)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.listeners, id)
		})
	}
}

// SignUp creates the identity and persists its profile before resolving.
// If the profile cannot be stored the new identity is deleted again and the
// session stays unauthenticated.
func (p *SessionProvider) SignUp(ctx context.Context, req models.SignUpRequest) (models.Session, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.Role == "" {
		req.Role = models.RoleReporter
	}
	if err := p.validator.Struct(req); err != nil {
		return p.Current(), appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sign-up payload")
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Email
	}

	p.set(models.Session{State: models.SessionAuthenticating, Email: req.Email})

	issued, err := p.identity.CreateIdentity(ctx, req.Email, req.Password)
	if err != nil {
		p.set(models.Session{State: models.SessionUnauthenticated})
		return p.Current(), err
	}

	profile := &models.Profile{IdentityID: issued.ID, Email: issued.Email, Role: req.Role, DisplayName: req.DisplayName}
	if err := p.profiles.Save(ctx, profile); err != nil {
		p.logger.Error("persist profile after sign-up", zap.String("identity_id", issued.ID), zap.Error(err))
		if delErr := p.identity.DeleteIdentity(ctx, issued.ID); delErr != nil {
			p.logger.Error("roll back identity after failed sign-up", zap.String("identity_id", issued.ID), zap.Error(delErr))
		}
		p.set(models.Session{State: models.SessionUnauthenticated})
		return p.Current(), appErrors.Backend(err, "failed to save profile")
	}

	return p.set(authenticated(issued, profile)), nil
}

// SignIn authenticates and fetches the profile before resolving so callers
// never observe an authenticated session without its role.
func (p *SessionProvider) SignIn(ctx context.Context, req models.SignInRequest) (models.Session, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := p.validator.Struct(req); err != nil {
		return p.Current(), appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sign-in payload")
	}

	p.set(models.Session{State: models.SessionAuthenticating, Email: req.Email})

	issued, err := p.identity.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		p.set(models.Session{State: models.SessionUnauthenticated})
		return p.Current(), err
	}

	profile, err := p.loadProfile(ctx, issued.ID)
	if err != nil {
		if revokeErr := p.identity.Revoke(ctx, issued.Token); revokeErr != nil {
			p.logger.Warn("revoke token of identity without profile", zap.String("identity_id", issued.ID), zap.Error(revokeErr))
		}
		p.set(models.Session{State: models.SessionUnauthenticated})
		return p.Current(), err
	}

	return p.set(authenticated(issued, profile)), nil
}

// SignOut clears the cached role and name, then revokes the identity.
func (p *SessionProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	current := p.session
	p.mu.Unlock()
	if current.State == models.SessionUnauthenticated {
		return nil
	}

	current.Role = ""
	current.DisplayName = ""
	p.set(current)

	err := p.identity.Revoke(ctx, current.Token)
	p.set(models.Session{State: models.SessionUnauthenticated})
	if err != nil {
		p.logger.Warn("revoke session", zap.String("identity_id", current.IdentityID), zap.Error(err))
		return err
	}
	return nil
}

// Restore rebuilds an authenticated session from a bearer token.
func (p *SessionProvider) Restore(ctx context.Context, token string) (models.Session, error) {
	claims, err := p.identity.ValidateToken(ctx, token)
	if err != nil {
		p.set(models.Session{State: models.SessionUnauthenticated})
		return p.Current(), err
	}

	profile, err := p.loadProfile(ctx, claims.IdentityID)
	if err != nil {
		p.set(models.Session{State: models.SessionUnauthenticated})
		if appErrors.HasCode(err, appErrors.ErrNotFound.Code) {
			return p.Current(), appErrors.Clone(appErrors.ErrUnauthorized, "identity has no profile")
		}
		return p.Current(), err
	}

	return p.set(models.Session{
		State:       models.SessionAuthenticated,
		IdentityID:  claims.IdentityID,
		Email:       claims.Email,
		Token:       token,
		Role:        profile.Role,
		DisplayName: profile.DisplayName,
	}), nil
}

func (p *SessionProvider) loadProfile(ctx context.Context, identityID string) (*models.Profile, error) {
	profile, err := p.profiles.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Backend(err, "failed to fetch profile")
	}
	return profile, nil
}

func (p *SessionProvider) set(s models.Session) models.Session {
	p.mu.Lock()
	p.session = s
	listeners := make([]func(models.Session), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
	return s
}

func authenticated(issued *IssuedIdentity, profile *models.Profile) models.Session {
	return models.Session{
		State:       models.SessionAuthenticated,
		IdentityID:  issued.ID,
		Email:       issued.Email,
		Token:       issued.Token,
		Role:        profile.Role,
		DisplayName: profile.DisplayName,
	}
}
