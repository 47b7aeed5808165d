// Package access decides what a principal may see: schemas, properties and rows.
package access

import (
	"slices"

	"GistAPI/internal/apperr"
	"GistAPI/internal/model"
)

// Principal is the caller of a request.
type Principal struct {
	UID         string
	Username    string
	Superuser   bool
	Anonymous   bool
	Groups      []string // uids of the caller's user groups
	Authorities []string
	Locale      string
}

// Guest returns the principal of unauthenticated requests.
func Guest() Principal {
	return Principal{Username: "guest", Anonymous: true}
}

// System is used when authentication is disabled and by the CLI.
func System() Principal {
	return Principal{UID: "system", Username: "system", Superuser: true, Authorities: []string{"ALL"}}
}

func (p Principal) HasAuthority(a string) bool {
	return slices.Contains(p.Authorities, a)
}

func (p Principal) InGroup(uid string) bool {
	return slices.Contains(p.Groups, uid)
}

// CanReadSchema reports whether p may query m at all.
func CanReadSchema(p Principal, m *model.Model) error {
	if p.Superuser || !p.Anonymous {
		return nil
	}
	if !m.HasPublicPreset() {
		return apperr.ErrAccessDenied("Access denied: schema `%s` is not public.", m.Name)
	}
	return nil
}

// IsReadable reports whether p may read prop of m.
func IsReadable(p Principal, m *model.Model, prop *model.Property) bool {
	switch {
	case prop.Secret:
		return false
	case p.Superuser:
		return true
	case !prop.IsReadableByDefault():
		return false
	case p.Anonymous:
		return m.InPublicPreset(prop.Name)
	}
	return true
}

// CanSeeStatements reports whether describe may reveal generated SQL to p.
func CanSeeStatements(p Principal) bool {
	return p.Superuser
}
