package trace

import (
	"bytes"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Role is the part a product plays in an actor's transactions.
type Role string

const (
	RoleIncoming  Role = "incoming"
	RoleOutgoing  Role = "outgoing"
	RoleProcessed Role = "processed"
)

var roleOrder = []Role{RoleIncoming, RoleOutgoing, RoleProcessed}

// ProductRef is a product as seen from one actor. Type holds the joined
// roles, e.g. "outgoing and processed".
type ProductRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Type string    `json:"type"`
}

// CombineProducts merges product lists so every product appears once, its
// roles joined in natural language. Inputs may themselves carry joined types.
func CombineProducts(lists ...[]ProductRef) []ProductRef {
	names := make(map[uuid.UUID]string)
	roles := make(map[uuid.UUID]map[Role]struct{})
	for _, list := range lists {
		for _, p := range list {
			if _, ok := roles[p.ID]; !ok {
				roles[p.ID] = make(map[Role]struct{})
				names[p.ID] = p.Name
			}
			for _, r := range splitRoles(p.Type) {
				roles[p.ID][r] = struct{}{}
			}
		}
	}

	out := make([]ProductRef, 0, len(roles))
	for id, set := range roles {
		out = append(out, ProductRef{ID: id, Name: names[id], Type: joinRoles(set)})
	}
	sortProducts(out)
	return out
}

func hasRole(p ProductRef, want ...Role) bool {
	for _, r := range splitRoles(p.Type) {
		if slices.Contains(want, r) {
			return true
		}
	}
	return false
}

func splitRoles(s string) []Role {
	s = strings.ReplaceAll(s, ", ", " and ")
	var out []Role
	for _, part := range strings.Split(s, " and ") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, Role(part))
		}
	}
	return out
}

func joinRoles(set map[Role]struct{}) string {
	var parts []string
	for _, r := range roleOrder {
		if _, ok := set[r]; ok {
			parts = append(parts, string(r))
		}
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}

func sortProducts(s []ProductRef) {
	slices.SortFunc(s, func(a, b ProductRef) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
}
