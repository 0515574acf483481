package auth

import (
	"context"
	"fmt"
	"strings"
)

// Login failure modes. Unknown email and wrong password share one message so
// the error text never discloses whether an account exists; the deactivated
// branch keeps its own message, matching the upstream behavior.
var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrAccountDeactivated = fmt.Errorf("%w: account is deactivated", ErrUnauthorized)
)

// Session is the payload returned by login, refresh and me. The token pair
// carries the permission snapshot; Permissions repeats it for client gating.
type Session struct {
	User        SanitizedUser `json:"user"`
	Permissions []string      `json:"permissions"`
	TokenPair
}

// Service implements the authentication flow: credential login, refresh and
// whoami. Every path reloads the user from storage before issuing tokens so
// a pair always snapshots the current role and memberships.
type Service struct {
	users  UserStore
	issuer *Issuer
}

// NewService constructs the authentication service.
func NewService(users UserStore, issuer *Issuer) (*Service, error) {
	if users == nil || issuer == nil {
		return nil, ErrInvalidInput
	}
	return &Service{users: users, issuer: issuer}, nil
}

// Issuer exposes the token issuer for the transport-layer guard.
func (s *Service) Issuer() *Issuer { return s.issuer }

// Login validates credentials and issues a token pair. The checks run in a
// fixed order: existence, active flag, password. Each failure is a distinct
// branch even where the messages coincide.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return Session{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return Session{}, ErrAccountDeactivated
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return s.issue(user)
}

// Refresh verifies a refresh token and issues a brand-new pair for the
// current state of the user. Refresh tokens are not rotated or tracked
// server-side; a presented token stays valid until its own expiry.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	claims, err := s.issuer.Verify(refreshToken, RefreshToken)
	if err != nil {
		return Session{}, ErrInvalidToken
	}
	user, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return Session{}, ErrUnauthorized
	}
	if !user.IsActive {
		return Session{}, ErrUnauthorized
	}
	return s.issue(user)
}

// Me reloads the user and reissues a fresh token pair. Clients call this
// periodically and on tab refocus; it is how permission changes reach a
// logged-in client without re-login.
func (s *Service) Me(ctx context.Context, userID string) (Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Session{}, ErrNotFound
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return Session{}, ErrNotFound
	}
	return s.issue(user)
}

func (s *Service) issue(user *User) (Session, error) {
	pair, err := s.issuer.Issue(user)
	if err != nil {
		return Session{}, err
	}
	perms := user.Role.PermissionStrings()
	if perms == nil {
		perms = []string{}
	}
	return Session{
		User:        user.Sanitize(),
		Permissions: perms,
		TokenPair:   pair,
	}, nil
}
