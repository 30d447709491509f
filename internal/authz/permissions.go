// Package authz holds the static role to permission table that gates every
// sensitive operation. Evaluation is pure: no I/O, no side effects.
package authz

import (
	"strings"

	"github.com/cinestream/server/internal/models"
)

type Action string

const (
	ActionView   Action = "can:view"
	ActionCreate Action = "can:create"
	ActionUpdate Action = "can:update"
	ActionDelete Action = "can:delete"
)

type Resource string

const (
	ResourceMovie           Resource = "movie"
	ResourceGenre           Resource = "genre"
	ResourceDirector        Resource = "director"
	ResourceFavorite        Resource = "favorite"
	ResourceUser            Resource = "user"
	ResourceAuthorizedEmail Resource = "authorized_email"
	ResourceAnalytics       Resource = "analytics"
	ResourceUpload          Resource = "upload"
	ResourceAPIToken        Resource = "api_token"
)

type Permission struct {
	Action   Action
	Resource Resource
}

func (p Permission) String() string {
	return string(p.Action) + ":" + string(p.Resource)
}

var (
	PermViewMovie   = Permission{ActionView, ResourceMovie}
	PermCreateMovie = Permission{ActionCreate, ResourceMovie}
	PermUpdateMovie = Permission{ActionUpdate, ResourceMovie}
	PermDeleteMovie = Permission{ActionDelete, ResourceMovie}

	PermViewGenre   = Permission{ActionView, ResourceGenre}
	PermCreateGenre = Permission{ActionCreate, ResourceGenre}
	PermUpdateGenre = Permission{ActionUpdate, ResourceGenre}
	PermDeleteGenre = Permission{ActionDelete, ResourceGenre}

	PermViewDirector   = Permission{ActionView, ResourceDirector}
	PermCreateDirector = Permission{ActionCreate, ResourceDirector}
	PermUpdateDirector = Permission{ActionUpdate, ResourceDirector}
	PermDeleteDirector = Permission{ActionDelete, ResourceDirector}

	PermViewFavorite   = Permission{ActionView, ResourceFavorite}
	PermCreateFavorite = Permission{ActionCreate, ResourceFavorite}
	PermDeleteFavorite = Permission{ActionDelete, ResourceFavorite}

	PermViewUser   = Permission{ActionView, ResourceUser}
	PermDeleteUser = Permission{ActionDelete, ResourceUser}

	PermViewAuthorizedEmail   = Permission{ActionView, ResourceAuthorizedEmail}
	PermCreateAuthorizedEmail = Permission{ActionCreate, ResourceAuthorizedEmail}
	PermDeleteAuthorizedEmail = Permission{ActionDelete, ResourceAuthorizedEmail}

	PermViewAnalytics = Permission{ActionView, ResourceAnalytics}

	PermCreateUpload = Permission{ActionCreate, ResourceUpload}

	PermViewAPIToken   = Permission{ActionView, ResourceAPIToken}
	PermCreateAPIToken = Permission{ActionCreate, ResourceAPIToken}
	PermDeleteAPIToken = Permission{ActionDelete, ResourceAPIToken}
)

// Declared returns every permission referenced by a call site.
func Declared() []Permission {
	return []Permission{
		PermViewMovie, PermCreateMovie, PermUpdateMovie, PermDeleteMovie,
		PermViewGenre, PermCreateGenre, PermUpdateGenre, PermDeleteGenre,
		PermViewDirector, PermCreateDirector, PermUpdateDirector, PermDeleteDirector,
		PermViewFavorite, PermCreateFavorite, PermDeleteFavorite,
		PermViewUser, PermDeleteUser,
		PermViewAuthorizedEmail, PermCreateAuthorizedEmail, PermDeleteAuthorizedEmail,
		PermViewAnalytics,
		PermCreateUpload,
		PermViewAPIToken, PermCreateAPIToken, PermDeleteAPIToken,
	}
}

var userPermissions = []Permission{
	PermViewMovie,
	PermViewGenre,
	PermViewDirector,
	PermViewFavorite, PermCreateFavorite, PermDeleteFavorite,
	PermViewAPIToken, PermCreateAPIToken, PermDeleteAPIToken,
}

var adminPermissions = append(append([]Permission{}, userPermissions...),
	PermCreateMovie, PermUpdateMovie, PermDeleteMovie,
	PermCreateGenre, PermUpdateGenre, PermDeleteGenre,
	PermCreateDirector, PermUpdateDirector, PermDeleteDirector,
	PermViewUser, PermDeleteUser,
	PermViewAuthorizedEmail, PermCreateAuthorizedEmail, PermDeleteAuthorizedEmail,
	PermViewAnalytics,
	PermCreateUpload,
)

type permissionSet map[Permission]struct{}

func newSet(perms []Permission) permissionSet {
	set := make(permissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

var rolePermissions = map[models.Role]permissionSet{
	models.RoleUser:  newSet(userPermissions),
	models.RoleAdmin: newSet(adminPermissions),
}

// HasPermission reports whether role is granted perm. Unknown roles get nothing.
func HasPermission(role models.Role, perm Permission) bool {
	set, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, granted := set[perm]
	return granted
}

// CheckPermissions decides whether user may perform action on resource.
// A nil user is treated as unauthenticated and denied.
func CheckPermissions(user *models.User, action Action, resource Resource) bool {
	if user == nil {
		return false
	}
	return HasPermission(user.Role, Permission{Action: action, Resource: resource})
}

// CheckPermissionString evaluates the "can:<verb>:<resource>" form.
func CheckPermissionString(role models.Role, permission string) bool {
	perm, ok := ParsePermission(permission)
	if !ok {
		return false
	}
	return HasPermission(role, perm)
}

// ParsePermission splits "can:delete:movie" into its action and resource.
func ParsePermission(value string) (Permission, bool) {
	idx := strings.LastIndex(value, ":")
	if idx <= 0 || idx == len(value)-1 {
		return Permission{}, false
	}
	return Permission{Action: Action(value[:idx]), Resource: Resource(value[idx+1:])}, true
}

// PermissionsFor lists the permissions granted to role as strings, for the /auth/me payload.
func PermissionsFor(role models.Role) []string {
	var perms []string
	for _, p := range Declared() {
		if HasPermission(role, p) {
			perms = append(perms, p.String())
		}
	}
	return perms
}
