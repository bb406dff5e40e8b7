// Package auth implements per-KG access control: a Permission bitmask,
// an ACL mapping principals to the permissions they hold, and a small
// family of Auth implementations that authenticate a principal before
// the ACL is consulted.
package auth

import (
	"sync"

	"github.com/inputlayer/inputlayer/errs"
)

// Permission is a bitmask of the operations a principal may perform
// against a KG.
type Permission uint8

const (
	PermRead Permission = 1 << iota
	PermWrite
	PermAdmin // create/drop KG, manage ACL, index create/drop
)

func (p Permission) String() string {
	var out string
	if p&PermRead != 0 {
		out += "R"
	}
	if p&PermWrite != 0 {
		out += "W"
	}
	if p&PermAdmin != 0 {
		out += "A"
	}
	if out == "" {
		return "-"
	}
	return out
}

// Has reports whether p grants all bits in want.
func (p Permission) Has(want Permission) bool { return p&want == want }

// Auth authenticates a principal and reports its granted permission.
// Authorization against a specific permission is then a Permission.Has
// check against the returned bitmask.
type Auth interface {
	Authenticate(principal, credential string) (Permission, error)
}

// ACL is the per-KG principal -> permission table. Safe for concurrent use.
type ACL struct {
	mu      sync.RWMutex
	grants  map[string]Permission
}

// NewACL returns an empty ACL.
func NewACL() *ACL {
	return &ACL{grants: map[string]Permission{}}
}

// Grant sets (overwriting) a principal's permission bitmask.
func (a *ACL) Grant(principal string, perm Permission) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.grants[principal] = perm
}

// Revoke removes a principal from the ACL entirely.
func (a *ACL) Revoke(principal string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.grants, principal)
}

// Allowed reports whether principal holds every bit of want.
func (a *ACL) Allowed(principal string, want Permission) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.grants[principal].Has(want)
}

// Require returns ErrAuth if principal does not hold want.
func (a *ACL) Require(principal string, want Permission) error {
	if !a.Allowed(principal, want) {
		return errs.ErrAuth.New()
	}
	return nil
}

// Principals returns a copy of every principal's grant in the ACL, for `.status`.
func (a *ACL) Principals() map[string]Permission {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]Permission, len(a.grants))
	for k, v := range a.grants {
		out[k] = v
	}
	return out
}
