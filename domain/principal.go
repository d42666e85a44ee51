package domain

// RolePrefix is prepended to every group name translated into an authority.
const RolePrefix = "ROLE_"

// Role is a string capability tag granted to an authenticated principal.
type Role string

// NewRole builds a role from an external group name.
func NewRole(groupName string) Role {
	return Role(RolePrefix + groupName)
}

// Principal is the authenticated caller of an API request. It is immutable
// once constructed; enrichment builds a new Principal with an extended
// authority set rather than mutating an existing one.
type Principal struct {
	Subject     string
	RawToken    string
	Claims      map[string]any
	Authorities []Role
}

// HasAuthority reports whether the principal carries the given role.
func (p *Principal) HasAuthority(role Role) bool {
	for _, r := range p.Authorities {
		if r == role {
			return true
		}
	}
	return false
}

// WithAuthorities returns a copy of the principal whose authority set is
// extended with the given roles. The base authorities are always retained.
func (p *Principal) WithAuthorities(roles []Role) *Principal {
	authorities := make([]Role, 0, len(p.Authorities)+len(roles))
	authorities = append(authorities, p.Authorities...)
	authorities = append(authorities, roles...)

	return &Principal{
		Subject:     p.Subject,
		RawToken:    p.RawToken,
		Claims:      p.Claims,
		Authorities: authorities,
	}
}
