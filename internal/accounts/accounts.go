// Package accounts maps owner and group names recorded in a package header
// to numeric ids on the running system.
//
// Resolution never fails: a name that cannot be looked up resolves to id 0.
// The Found flag on the result tells callers whether the id came from the
// account database or from that fallback.
package accounts

import (
	"os/user"
	"strconv"
)

// Kind selects the account database to consult.
type Kind int

const (
	User Kind = iota
	Group
)

func (k Kind) String() string {
	if k == Group {
		return "group"
	}
	return "user"
}

// Resolution is the outcome of resolving one name.
type Resolution struct {
	ID    int
	Found bool
}

// Resolver provides an abstraction over the system account database.
type Resolver interface {
	// Resolve returns the numeric id for name, or id 0 with Found unset.
	Resolve(kind Kind, name string) Resolution
}

// SystemResolver implements Resolver using os/user.
type SystemResolver struct{}

// NewSystemResolver creates a new SystemResolver.
func NewSystemResolver() *SystemResolver {
	return &SystemResolver{}
}

// Resolve looks name up in the passwd or group database.
func (r *SystemResolver) Resolve(kind Kind, name string) Resolution {
	var raw string
	switch kind {
	case Group:
		g, err := user.LookupGroup(name)
		if err != nil {
			return Resolution{}
		}
		raw = g.Gid
	default:
		u, err := user.Lookup(name)
		if err != nil {
			return Resolution{}
		}
		raw = u.Uid
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return Resolution{}
	}
	return Resolution{ID: id, Found: true}
}

// StaticResolver implements Resolver from fixed tables for testing.
type StaticResolver struct {
	Users  map[string]int
	Groups map[string]int

	// Calls counts Resolve invocations.
	Calls int
}

// NewStaticResolver creates a StaticResolver with empty tables.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{
		Users:  make(map[string]int),
		Groups: make(map[string]int),
	}
}

// Resolve returns the table entry for name.
func (r *StaticResolver) Resolve(kind Kind, name string) Resolution {
	r.Calls++
	table := r.Users
	if kind == Group {
		table = r.Groups
	}
	id, ok := table[name]
	if !ok {
		return Resolution{}
	}
	return Resolution{ID: id, Found: true}
}
