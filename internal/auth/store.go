package auth

import "context"

// UserStore loads users with their role, permission set and team memberships
// resolved. Both lookups must include the password hash; sanitization happens
// at the service boundary.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
}

// UserAdminStore extends UserStore with the administrative operations.
// List hydrates role and team memberships for each row; permission sets are
// not needed there.
type UserAdminStore interface {
	UserStore
	List(ctx context.Context, q UserQuery) ([]User, int, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error
}

// RoleStore persists roles and their permission assignments.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Get(ctx context.Context, id string) (*Role, error)
	GetByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]Role, error)
	Update(ctx context.Context, role *Role) error
	Delete(ctx context.Context, id string) error
	// SetPermissions replaces the role's permission set wholesale with the
	// catalog entries resolved from ids. Unknown ids are dropped, not errored.
	SetPermissions(ctx context.Context, roleID string, permissionIDs []string) ([]Permission, error)
}

// PermissionStore manages the immutable permission catalog.
type PermissionStore interface {
	Ensure(ctx context.Context, perms []Permission) error
	List(ctx context.Context) ([]Permission, error)
}
