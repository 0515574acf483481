package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"
)

// UserQuery filters and paginates user listings.
type UserQuery struct {
	RoleID    string
	IsActive  *bool
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

var userSortColumns = map[string]string{
	"createdAt": "created_at",
	"name":      "name",
	"email":     "email",
}

// Normalize clamps pagination and maps the sort field onto an allow-listed
// column. Unknown sort fields fall back to created_at.
func (q *UserQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if col, ok := userSortColumns[q.SortBy]; ok {
		q.SortBy = col
	}
	switch q.SortBy {
	case "created_at", "name", "email":
	default:
		q.SortBy = "created_at"
	}
	if strings.EqualFold(q.SortOrder, "asc") {
		q.SortOrder = "asc"
	} else {
		q.SortOrder = "desc"
	}
}

// Offset returns the row offset for the normalized page.
func (q UserQuery) Offset() int { return (q.Page - 1) * q.Limit }

// CreateUser is the input for UserService.Create.
type CreateUser struct {
	Email    string
	Password string
	Name     string
	RoleID   string
	IsActive *bool
}

// UserUpdate is a partial user patch. Nil fields are left untouched.
type UserUpdate struct {
	Email    *string
	Password *string
	Name     *string
	RoleID   *string
	IsActive *bool
}

// UserService administers user accounts: listing, creation, role
// assignment, activation and removal. Password material never leaves the
// service; every response is sanitized.
type UserService struct {
	users UserAdminStore
	audit AuditRecorder
}

// NewUserService constructs the user administration service.
func NewUserService(users UserAdminStore, audit AuditRecorder) (*UserService, error) {
	if users == nil || audit == nil {
		return nil, errors.New("auth: user store and audit recorder are required")
	}
	return &UserService{users: users, audit: audit}, nil
}

// List returns sanitized users matching the query plus the total count.
func (s *UserService) List(ctx context.Context, q UserQuery) ([]SanitizedUser, int, error) {
	q.Normalize()
	users, total, err := s.users.List(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	out := make([]SanitizedUser, 0, len(users))
	for i := range users {
		out = append(out, users[i].Sanitize())
	}
	return out, total, nil
}

// Get returns a single sanitized user.
func (s *UserService) Get(ctx context.Context, id string) (*SanitizedUser, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sanitized := user.Sanitize()
	return &sanitized, nil
}

// Create adds a user account. Fails with ErrConflict when the email is
// already in use.
func (s *UserService) Create(ctx context.Context, actor Identity, in CreateUser, clientIP string) (*SanitizedUser, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.RoleID = strings.TrimSpace(in.RoleID)
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	if len(in.Name) < 2 {
		return nil, fmt.Errorf("%w: name must be at least 2 characters", ErrInvalidInput)
	}
	if in.RoleID == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	if existing, err := s.users.FindByEmail(ctx, in.Email); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: email already in use", ErrConflict)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &User{
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: hash,
		RoleID:       in.RoleID,
		IsActive:     true,
	}
	if in.IsActive != nil {
		user.IsActive = *in.IsActive
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	// Reload so the response carries the resolved role and memberships.
	full, err := s.users.FindByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	sanitized := full.Sanitize()

	if err := s.audit.Record(ctx, AuditEvent{
		ActorID:      actor.UserID,
		ActorEmail:   actor.Email,
		Action:       "CREATE",
		ResourceType: "users",
		ResourceID:   full.ID,
		NewValues:    userAuditValues(full),
		IP:           clientIP,
	}); err != nil {
		return nil, err
	}
	return &sanitized, nil
}

// Update patches a user account. Email collisions fail with ErrConflict; a
// new password goes through the same policy as creation. Role and
// activation changes take effect on the holder's next issuance.
func (s *UserService) Update(ctx context.Context, actor Identity, id string, upd UserUpdate, clientIP string) (*SanitizedUser, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldValues := userAuditValues(user)

	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		if !strings.EqualFold(email, user.Email) {
			if existing, err := s.users.FindByEmail(ctx, email); err == nil && existing != nil {
				return nil, fmt.Errorf("%w: email already in use", ErrConflict)
			} else if err != nil && !errors.Is(err, ErrNotFound) {
				return nil, err
			}
		}
		user.Email = email
	}
	if upd.Password != nil {
		if err := validatePassword(*upd.Password); err != nil {
			return nil, err
		}
		hash, err := HashPassword(*upd.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if len(name) < 2 {
			return nil, fmt.Errorf("%w: name must be at least 2 characters", ErrInvalidInput)
		}
		user.Name = name
	}
	if upd.RoleID != nil {
		roleID := strings.TrimSpace(*upd.RoleID)
		if roleID == "" {
			return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
		}
		user.RoleID = roleID
	}
	if upd.IsActive != nil {
		user.IsActive = *upd.IsActive
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	full, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sanitized := full.Sanitize()

	if err := s.audit.Record(ctx, AuditEvent{
		ActorID:      actor.UserID,
		ActorEmail:   actor.Email,
		Action:       "UPDATE",
		ResourceType: "users",
		ResourceID:   id,
		OldValues:    oldValues,
		NewValues:    userAuditValues(full),
		IP:           clientIP,
	}); err != nil {
		return nil, err
	}
	return &sanitized, nil
}

// Delete removes a user account.
func (s *UserService) Delete(ctx context.Context, actor Identity, id, clientIP string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return err
	}
	return s.audit.Record(ctx, AuditEvent{
		ActorID:      actor.UserID,
		ActorEmail:   actor.Email,
		Action:       "DELETE",
		ResourceType: "users",
		ResourceID:   user.ID,
		OldValues:    userAuditValues(user),
		IP:           clientIP,
	})
}

func userAuditValues(u *User) map[string]any {
	return map[string]any{
		"email":    u.Email,
		"name":     u.Name,
		"roleId":   u.RoleID,
		"isActive": u.IsActive,
	}
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	var hasUpper, hasDigit bool
	for _, r := range password {
		if unicode.IsUpper(r) {
			hasUpper = true
		}
		if unicode.IsDigit(r) {
			hasDigit = true
		}
	}
	if !hasUpper {
		return fmt.Errorf("%w: password must contain at least one uppercase letter", ErrInvalidInput)
	}
	if !hasDigit {
		return fmt.Errorf("%w: password must contain at least one number", ErrInvalidInput)
	}
	return nil
}
