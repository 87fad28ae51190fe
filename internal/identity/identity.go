// Package identity is the admin sign-in gate: password check, signed session
// tokens, and sign-out by revocation.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"comingsoon/internal/model"
	"comingsoon/internal/storage"
)

const issuer = "comingsoon-admin"

// ErrInvalidCredentials is returned for any failed sign-in. It does not say
// whether the email or the password was wrong.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Store persists admin accounts and revoked sessions.
type Store interface {
	GetAdminByEmail(ctx context.Context, email string) (*model.Admin, error)
	UpsertAdmin(ctx context.Context, admin *model.Admin) error
	RevokeSession(ctx context.Context, sessionID string, expiresAt time.Time) error
	IsSessionRevoked(ctx context.Context, sessionID string) (bool, error)
}

// Claims are carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
	AdminID int64  `json:"aid"`
	Email   string `json:"email"`
}

// Session is an issued session token.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Gate signs admins in and out and resolves the current user of a token.
type Gate struct {
	store  Store
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time

	compare   func(hash, password []byte) error
	dummyOnce sync.Once
	dummy     []byte
}

// New creates a Gate signing sessions with secret, valid for ttl.
func New(store Store, secret []byte, ttl time.Duration) *Gate {
	return &Gate{
		store:   store,
		secret:  secret,
		ttl:     ttl,
		cost:    bcrypt.DefaultCost,
		now:     time.Now,
		compare: bcrypt.CompareHashAndPassword,
	}
}

// SetCost overrides the bcrypt cost used for new password hashes.
func (g *Gate) SetCost(cost int) {
	g.cost = cost
}

// EnsureAdmin creates the admin account or sets its password.
func (g *Gate) EnsureAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return fmt.Errorf("admin email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), g.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := g.store.UpsertAdmin(ctx, &model.Admin{Email: email, PasswordHash: string(hash)}); err != nil {
		return fmt.Errorf("save admin: %w", err)
	}
	return nil
}

// SignIn checks the credentials and issues a session.
func (g *Gate) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	admin, err := g.store.GetAdminByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		// Same bcrypt work as a wrong password, so timing does not reveal the email.
		_ = g.compare(g.dummyHash(), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load admin: %w", err)
	}
	if err := g.compare([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := g.now()
	expires := now.Add(g.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   admin.Email,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		AdminID: admin.ID,
		Email:   admin.Email,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}
	return &Session{Token: token, ExpiresAt: expires}, nil
}

// CurrentUser returns the admin a token belongs to, or nil when the token is
// empty, invalid, expired or signed out. Only store failures are errors.
func (g *Gate) CurrentUser(ctx context.Context, token string) (*model.UserIdentity, error) {
	claims, ok := g.parse(token)
	if !ok {
		return nil, nil
	}
	revoked, err := g.store.IsSessionRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check session: %w", err)
	}
	if revoked {
		return nil, nil
	}
	return &model.UserIdentity{ID: claims.AdminID, Email: claims.Email}, nil
}

// SignOut revokes the session of token. Signing out an invalid token is a no-op.
func (g *Gate) SignOut(ctx context.Context, token string) error {
	claims, ok := g.parse(token)
	if !ok {
		return nil
	}
	if err := g.store.RevokeSession(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (g *Gate) dummyHash() []byte {
	g.dummyOnce.Do(func() {
		// Fails only for an invalid cost, which EnsureAdmin reports.
		g.dummy, _ = bcrypt.GenerateFromPassword([]byte(uuid.NewString()), g.cost)
	})
	return g.dummy
}

func (g *Gate) parse(token string) (*Claims, bool) {
	if token == "" {
		return nil, false
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return g.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil || !parsed.Valid || claims.ID == "" {
		return nil, false
	}
	return claims, true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
