// Package auth defines the platform's role model. Concrete credential
// validation lives in the apikey subpackage.
package auth

// Role is a caller's authorization level.
type Role string

const (
	// RoleAdmin may manage API keys, view all jobs, and cancel jobs.
	RoleAdmin Role = "admin"
	// RoleEditor may operate on any document's jobs but has no
	// administrative powers.
	RoleEditor Role = "editor"
	// RoleViewer may only see jobs for documents they own.
	RoleViewer Role = "viewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// BypassesOwnership reports whether the role may access resources it does
// not own.
func (r Role) BypassesOwnership() bool {
	return r == RoleAdmin || r == RoleEditor
}
