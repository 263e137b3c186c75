package auth

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleAnalista   Role = "ANALISTA"
	RoleTesouraria Role = "TESOURARIA"
	RoleAgente     Role = "AGENTE"
	RoleAssociado  Role = "ASSOCIADO"

	DefaultRole = RoleAgente
)

// User is the signed-in back-office user. Perfil is the primary role.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	IsActive  bool      `json:"is_active"`
	Roles     []Role    `json:"roles"`
	Perfil    Role      `json:"perfil"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u User) HasRole(role Role) bool {
	for _, candidate := range u.Roles {
		if candidate == role {
			return true
		}
	}
	return u.Perfil == role
}

// MapUser builds a User from a loosely shaped payload. The first role wins as
// perfil; a payload perfil is used when no roles are listed, then
// defaultRole.
func MapUser(raw json.RawMessage, defaultRole Role, now time.Time) User {
	payload := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &payload)
	}

	names := readStringSlice(payload, "roles")
	roles := make([]Role, 0, len(names))
	for _, name := range names {
		roles = append(roles, Role(name))
	}

	perfil := Role(firstNonEmpty(readString(payload, "perfil"), string(defaultRole)))
	if len(roles) > 0 {
		perfil = roles[0]
	}

	return User{
		ID:        readString(payload, "id"),
		Email:     readString(payload, "email"),
		FullName:  readString(payload, "full_name", "name"),
		IsActive:  readBool(payload, true, "is_active"),
		Roles:     roles,
		Perfil:    perfil,
		CreatedAt: readTime(payload, now, "created_at"),
		UpdatedAt: readTime(payload, now, "updated_at"),
	}
}
