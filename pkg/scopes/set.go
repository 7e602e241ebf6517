package scopes

import "math/bits"

// Set is a deduplicated collection of permissions stored as a bitmask
type Set uint32

// NewSet builds a set from the given permissions
func NewSet(perms ...Permission) Set {
	var s Set
	for _, p := range perms {
		s = s.Add(p)
	}
	return s
}

// Add returns s with p included
func (s Set) Add(p Permission) Set {
	return s | Set(p)
}

// Has reports whether p is in the set
func (s Set) Has(p Permission) bool {
	return s&Set(p) != 0
}

// IsEmpty reports whether the set holds no permissions
func (s Set) IsEmpty() bool {
	return s == 0
}

// Len returns the number of permissions in the set
func (s Set) Len() int {
	return bits.OnesCount32(uint32(s))
}

// ContainsAll reports whether every permission in other is also in s
func (s Set) ContainsAll(other Set) bool {
	return other&^s == 0
}

// Missing returns the permissions of required that s lacks
func (s Set) Missing(required Set) Set {
	return required &^ s
}

// Slice returns the permissions in bit order
func (s Set) Slice() []Permission {
	out := make([]Permission, 0, s.Len())
	for _, p := range AllPermissions {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Scopes returns the canonical scope names of the set, in bit order
func (s Set) Scopes() ([]Scope, error) {
	out := make([]Scope, 0, s.Len())
	for _, p := range s.Slice() {
		name, err := PermissionToScope(p)
		if err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, nil
}

// ScopeStrings is Scopes flattened to strings, for messages and logs.
func (s Set) ScopeStrings() []string {
	names, err := s.Scopes()
	if err != nil {
		panic(err)
	}
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}
