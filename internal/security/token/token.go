package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yourorg/qualityhub/internal/apperr"
	"github.com/yourorg/qualityhub/internal/domain"
)

// DefaultTTL is the fixed session lifetime. There is no refresh; expiry
// forces a new login.
const DefaultTTL = 24 * time.Hour

// Claims is the signed payload of a session token.
type Claims struct {
	UserID   int64       `json:"userId"`
	TenantID int64       `json:"tenantId"`
	Role     domain.Role `json:"role"`
	Email    string      `json:"email"`
	jwt.RegisteredClaims
}

// Verified wraps claims that passed signature, expiry, and issuer checks.
// It can only be produced by Manager.Verify, so holding one proves the
// identity came from a valid token rather than from request data.
type Verified struct {
	claims *Claims
}

// Claims returns a copy of the verified claims. The zero Verified returns
// false.
func (v Verified) Claims() (Claims, bool) {
	if v.claims == nil {
		return Claims{}, false
	}
	return *v.claims, true
}

// Options configures a Manager.
type Options struct {
	Secret string
	Issuer string
	TTL    time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Manager issues and verifies HS256 session tokens.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewManager builds a Manager. An empty secret is a configuration error;
// there is no built-in fallback.
func NewManager(opts Options) (*Manager, error) {
	if opts.Secret == "" {
		return nil, errors.New("token signing secret is required")
	}
	if opts.Issuer == "" {
		opts.Issuer = "qualityhub"
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		secret: []byte(opts.Secret),
		issuer: opts.Issuer,
		ttl:    opts.TTL,
		now:    opts.Now,
	}, nil
}

// TTL reports the lifetime of issued tokens.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue mints a signed token for the principal. It returns the token and its
// expiry.
func (m *Manager) Issue(userID, tenantID int64, role domain.Role, email string) (string, time.Time, error) {
	if userID == 0 || tenantID == 0 {
		return "", time.Time{}, errors.New("user id and tenant id are required")
	}
	if !role.Valid() {
		return "", time.Time{}, fmt.Errorf("cannot issue token for role %q", role)
	}
	now := m.now()
	exp := now.Add(m.ttl)
	claims := Claims{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		Email:    email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    m.issuer,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify validates a token string. An empty string is unauthenticated; a bad
// signature, malformed payload, wrong issuer, or expired token is
// invalid_token.
func (m *Manager) Verify(tokenString string) (Verified, error) {
	if tokenString == "" {
		return Verified{}, &apperr.Error{Code: apperr.EUnauthenticated, Op: "token.Verify", Msg: "missing token"}
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Verified{}, &apperr.Error{Code: apperr.EInvalidToken, Op: "token.Verify", Err: err}
	}
	if !tok.Valid {
		return Verified{}, &apperr.Error{Code: apperr.EInvalidToken, Op: "token.Verify", Msg: "token not valid"}
	}
	if claims.UserID == 0 || claims.TenantID == 0 || !claims.Role.Valid() {
		return Verified{}, &apperr.Error{Code: apperr.EInvalidToken, Op: "token.Verify", Msg: "incomplete claims"}
	}
	return Verified{claims: claims}, nil
}

// FromHeader extracts the bearer credential from an Authorization header
// value. Missing or non-Bearer headers are unauthenticated.
func FromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", &apperr.Error{Code: apperr.EUnauthenticated, Op: "token.FromHeader", Msg: "missing authorization header"}
	}
	scheme, cred, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(cred) == "" {
		return "", &apperr.Error{Code: apperr.EUnauthenticated, Op: "token.FromHeader", Msg: "invalid authorization header"}
	}
	return strings.TrimSpace(cred), nil
}
