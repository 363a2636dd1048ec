// Package access maps roles to permission sets and decides whether a
// requesting user may act on a resource owned by someone else.
package access

import (
	"context"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type Permission string

const (
	VaultsCreate      Permission = "vaults:create"
	VaultsRetrieve    Permission = "vaults:retrieve"
	VaultsUpdate      Permission = "vaults:update"
	VaultsDelete      Permission = "vaults:delete"
	VaultsCreateAll   Permission = "vaults:create:all"
	VaultsRetrieveAll Permission = "vaults:retrieve:all"
	VaultsUpdateAll   Permission = "vaults:update:all"
	VaultsDeleteAll   Permission = "vaults:delete:all"

	VersionsCreate      Permission = "versions:create"
	VersionsRetrieve    Permission = "versions:retrieve"
	VersionsDelete      Permission = "versions:delete"
	VersionsCreateAll   Permission = "versions:create:all"
	VersionsRetrieveAll Permission = "versions:retrieve:all"
	VersionsDeleteAll   Permission = "versions:delete:all"

	UsersRetrieve    Permission = "users:retrieve"
	UsersUpdate      Permission = "users:update"
	UsersDelete      Permission = "users:delete"
	UsersRetrieveAll Permission = "users:retrieve:all"
	UsersUpdateAll   Permission = "users:update:all"
	UsersDeleteAll   Permission = "users:delete:all"

	SettingsManage Permission = "settings:manage"

	ChunksUpload      Permission = "chunks:upload"
	ChunksDownload    Permission = "chunks:download"
	ChunksUploadAll   Permission = "chunks:upload:all"
	ChunksDownloadAll Permission = "chunks:download:all"
)

// PermissionSet is an unordered set of permissions.
type PermissionSet map[Permission]struct{}

func newSet(perms ...Permission) PermissionSet {
	s := make(PermissionSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// HasAll reports whether every permission in perms is in s. An empty perms
// list is vacuously satisfied.
func (s PermissionSet) HasAll(perms []Permission) bool {
	for _, p := range perms {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

var userPermissions = []Permission{
	VaultsCreate, VaultsRetrieve, VaultsUpdate, VaultsDelete,
	VersionsCreate, VersionsRetrieve, VersionsDelete,
	ChunksUpload, ChunksDownload,
	UsersRetrieve, UsersUpdate, UsersDelete,
}

var adminPermissions = append(append([]Permission{}, userPermissions...),
	VaultsCreateAll, VaultsRetrieveAll, VaultsUpdateAll, VaultsDeleteAll,
	VersionsCreateAll, VersionsRetrieveAll, VersionsDeleteAll,
	ChunksUploadAll, ChunksDownloadAll,
	UsersRetrieveAll, UsersUpdateAll, UsersDeleteAll,
	SettingsManage,
)

// ResolveRolePermissions returns the static permission set of role.
// Unknown roles get no permissions.
func ResolveRolePermissions(role Role) PermissionSet {
	switch role {
	case RoleAdmin:
		return newSet(adminPermissions...)
	case RoleUser:
		return newSet(userPermissions...)
	default:
		return PermissionSet{}
	}
}

// RequestingUser is the authenticated caller of a request.
type RequestingUser struct {
	ID         string
	SessionID  string
	Role       Role
	VerifiedAt *time.Time
}

func (u RequestingUser) Verified() bool {
	return u.VerifiedAt != nil
}

// Rules describes one access decision.
type Rules struct {
	User          RequestingUser
	TargetOwnerID string
	// UserScoped must all be held when User owns the target.
	UserScoped []Permission
	// Unscoped grant access regardless of ownership. Empty means no override.
	Unscoped []Permission
}

// Validate returns nil when rules allow the request. Verification is checked
// first, so an unverified caller always gets ErrNotVerified.
func Validate(r Rules) error {
	if !r.User.Verified() {
		return common.ErrNotVerified
	}

	perms := ResolveRolePermissions(r.User.Role)

	if r.User.ID != "" && r.User.ID == r.TargetOwnerID && perms.HasAll(r.UserScoped) {
		return nil
	}
	if len(r.Unscoped) > 0 && perms.HasAll(r.Unscoped) {
		return nil
	}
	return common.ErrAccessForbidden
}

type ctxKey struct{}

// WithUser stores u in ctx.
func WithUser(ctx context.Context, u RequestingUser) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the user stored by WithUser.
func UserFromContext(ctx context.Context) (RequestingUser, bool) {
	u, ok := ctx.Value(ctxKey{}).(RequestingUser)
	return u, ok
}
