package access

import (
	"encoding/json"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"GistAPI/internal/model"
)

// Sharing is the ACL document stored in a schema's sharing column.
// Access strings follow the `rwrw----` layout: metadata read/write, then data read/write.
type Sharing struct {
	Owner      string                 `json:"owner"`
	Public     string                 `json:"public"`
	External   bool                   `json:"external"`
	Users      map[string]SharingItem `json:"users"`
	UserGroups map[string]SharingItem `json:"userGroups"`
}

type SharingItem struct {
	ID     string `json:"id"`
	Access string `json:"access"`
}

// Access is the set of rights of one principal on one object.
type Access struct {
	Manage      bool `json:"manage"`
	Externalize bool `json:"externalize"`
	Write       bool `json:"write"`
	Read        bool `json:"read"`
	Update      bool `json:"update"`
	Delete      bool `json:"delete"`
}

// ParseSharing decodes a sharing column value as scanned from the database.
func ParseSharing(raw any) (*Sharing, error) {
	var data []byte
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		data = b
	default:
		return nil, fmt.Errorf("unsupported sharing value %T", raw)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var s Sharing
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("sharing: %w", err)
	}
	return &s, nil
}

// readGrant is the prefix of an access string that grants read. Evaluate and
// RowPredicate must agree on it: a row is visible exactly when access.read is true.
const readGrant = "r"

func canRead(access string) bool  { return strings.HasPrefix(access, readGrant) }
func canWrite(access string) bool { return len(access) > 1 && access[1] == 'w' }

// Evaluate computes the rights of p on an object. A nil sharing means the
// schema is not shareable: everyone reads, superusers do everything.
func Evaluate(p Principal, s *Sharing) Access {
	if p.Superuser {
		return Access{Manage: true, Externalize: true, Write: true, Read: true, Update: true, Delete: true}
	}
	if s == nil {
		return Access{Read: true}
	}

	read, write := canRead(s.Public), canWrite(s.Public)
	if !p.Anonymous {
		if p.UID != "" && s.Owner == p.UID {
			read, write = true, true
		}
		if item, ok := s.Users[p.UID]; ok {
			read = read || canRead(item.Access)
			write = write || canWrite(item.Access)
		}
		for _, g := range p.Groups {
			if item, ok := s.UserGroups[g]; ok {
				read = read || canRead(item.Access)
				write = write || canWrite(item.Access)
			}
		}
	} else {
		write = false
	}
	return Access{
		Manage:      write,
		Externalize: write && s.External,
		Write:       write,
		Read:        read,
		Update:      write,
		Delete:      write,
	}
}

// RowPredicate restricts the rows of m visible to p. It returns nil when no
// restriction applies.
func RowPredicate(p Principal, m *model.Model, alias string) sq.Sqlizer {
	if p.Superuser || !m.Shareable() {
		return nil
	}
	col := alias + "." + m.Sharing

	like := " LIKE '" + readGrant + "%'"
	publicRead := sq.Expr(col + "->>'public'" + like)
	if p.Anonymous {
		return publicRead
	}

	or := sq.Or{
		sq.Expr(col+"->>'owner' = ?", p.UID),
		publicRead,
		sq.Expr(col+"->'users'->?::text->>'access'"+like, p.UID),
	}
	for _, g := range p.Groups {
		or = append(or, sq.Expr(col+"->'userGroups'->?::text->>'access'"+like, g))
	}
	return or
}
