package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"opsdeck.io/internal/ids"
)

const (
	defaultIssuer     = "opsdeck"
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenKind selects which signing secret and lifetime apply.
type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

// Claims is the signed token payload. Permissions and team ids are a
// snapshot taken at issuance; they stay valid until the token expires even
// if the underlying role changes.
type Claims struct {
	Email       string      `json:"email"`
	Role        RoleSummary `json:"role"`
	Permissions []string    `json:"permissions"`
	TeamIDs     []string    `json:"teamIds"`
	TokenKind   TokenKind   `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair is an access/refresh token pair with expirations.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Issuer mints and verifies HS256-signed token pairs. Access and refresh
// tokens are signed with distinct secrets so one can never stand in for the
// other.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.refreshTTL = ttl
		}
	}
}

// WithIssuerName overrides the iss claim.
func WithIssuerName(name string) IssuerOption {
	return func(i *Issuer) {
		if name = strings.TrimSpace(name); name != "" {
			i.issuer = name
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer constructs an Issuer. Both secrets are required and must differ.
func NewIssuer(accessSecret, refreshSecret string, opts ...IssuerOption) (*Issuer, error) {
	accessSecret = strings.TrimSpace(accessSecret)
	refreshSecret = strings.TrimSpace(refreshSecret)
	if accessSecret == "" || refreshSecret == "" {
		return nil, ErrInvalidInput
	}
	if accessSecret == refreshSecret {
		return nil, ErrInvalidInput
	}
	iss := &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        defaultIssuer,
		accessTTL:     DefaultAccessTTL,
		refreshTTL:    DefaultRefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(iss)
	}
	return iss, nil
}

// AccessTTL reports the configured access token lifetime. It bounds how
// stale a token's permission snapshot can get.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// Issue signs a fresh token pair for the user. The payload is derived from
// the user's current role and memberships, so callers must reload the user
// from storage first.
func (i *Issuer) Issue(user *User) (TokenPair, error) {
	if user == nil || user.ID == "" {
		return TokenPair{}, ErrInvalidInput
	}
	now := i.now().UTC()

	access, accessExp, err := i.sign(user, now, AccessToken)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := i.sign(user, now, RefreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (i *Issuer) sign(user *User, now time.Time, kind TokenKind) (string, time.Time, error) {
	secret := i.accessSecret
	ttl := i.accessTTL
	if kind == RefreshToken {
		secret = i.refreshSecret
		ttl = i.refreshTTL
	}
	exp := now.Add(ttl)

	teamIDs := user.TeamIDs()
	if teamIDs == nil {
		teamIDs = []string{}
	}
	perms := user.Role.PermissionStrings()
	if perms == nil {
		perms = []string{}
	}

	claims := Claims{
		Email: user.Email,
		Role: RoleSummary{
			ID:    user.Role.ID,
			Name:  user.Role.Name,
			Scope: user.Role.Scope,
		},
		Permissions: perms,
		TeamIDs:     teamIDs,
		TokenKind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        ids.New(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify checks signature and expiry of a token of the given kind. Any
// failure collapses to ErrInvalidToken so callers cannot tell an expired
// token from a tampered one.
func (i *Issuer) Verify(token string, kind TokenKind) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	secret := i.accessSecret
	if kind == RefreshToken {
		secret = i.refreshSecret
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithIssuer(i.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenKind != kind {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
