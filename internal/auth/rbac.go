package auth

import (
	"net/http"
)

type Permission string

const (
	PermDocumentsRead  Permission = "documents:read"
	PermDocumentsWrite Permission = "documents:write"
	PermWildcard       Permission = "*"
)

// Roles maps a token role to its permissions.
var Roles = map[string][]Permission{
	"admin":    {PermWildcard},
	"uploader": {PermDocumentsRead, PermDocumentsWrite},
	"viewer":   {PermDocumentsRead},
}

type RBAC struct {
	roles map[string][]Permission
}

func NewRBAC(roles map[string][]Permission) *RBAC {
	return &RBAC{roles: roles}
}

// RequirePermission expects Authenticate to have run first.
func (r *RBAC) RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			claims := ClaimsFromContext(req.Context())
			if claims == nil {
				writeError(w, http.StatusForbidden, "no claims in context")
				return
			}
			if claims.Role == "" {
				writeError(w, http.StatusForbidden, "no role assigned")
				return
			}
			if !r.Allows(claims.Role, perm) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func (r *RBAC) Allows(role string, perm Permission) bool {
	for _, p := range r.roles[role] {
		if p == PermWildcard || p == perm {
			return true
		}
	}
	return false
}
