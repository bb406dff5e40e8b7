package inputlayer

import (
	"fmt"
	"sync"

	uuid "github.com/satori/go.uuid"

	"github.com/inputlayer/inputlayer/auth"
	"github.com/inputlayer/inputlayer/errs"
)

// Session is a single authenticated client's handle onto one KG. It
// tracks every rule the client has added for the lifetime of the
// session (as opposed to a permanent rule, added directly to the KG's
// catalog with no session attached) so Close can tear them down
// without disturbing the KG's own rules or another session's.
type Session struct {
	id        uuid.UUID
	engine    *Engine
	kg        *KG
	principal string
	perm      auth.Permission

	mu    sync.Mutex
	rules []sessionRule
}

type sessionRule struct {
	predicate string
	source    string
}

// OpenSession authenticates principal/credential against kgName's ACL
// and returns a fresh session handle. NoSuchKG if kgName has never
// been created; whatever Auth returns (typically ErrAuth) otherwise.
func (e *Engine) OpenSession(kgName, principal, credential string) (*Session, error) {
	kg, err := e.UseKG(kgName)
	if err != nil {
		return nil, err
	}
	perm, err := kg.auth.Authenticate(principal, credential)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, errs.ErrInternal.New(err.Error())
	}
	return &Session{id: id, engine: e, kg: kg, principal: principal, perm: perm}, nil
}

// ID returns the session's unique handle.
func (s *Session) ID() uuid.UUID { return s.id }

// Principal returns the authenticated principal this session acts as.
func (s *Session) Principal() string { return s.principal }

// Permission returns the permission bitmask the session authenticated with.
func (s *Session) Permission() auth.Permission { return s.perm }

// KG returns the knowledge graph this session is attached to.
func (s *Session) KG() *KG { return s.kg }

// taggedSource wraps a rule's original text with this session's handle,
// so two sessions adding textually identical session-scoped rules to
// the same predicate don't collide as duplicates, and so Close can
// remove exactly this session's contribution.
func (s *Session) taggedSource(source string) string {
	return fmt.Sprintf("session:%s:%s", s.id, source)
}

func (s *Session) trackRule(predicate, taggedSource string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, sessionRule{predicate: predicate, source: taggedSource})
}

// Close tears down every session-scoped rule this session contributed
// to its KG's shared catalog. The KG's own permanent rules, and any
// other session's, are left untouched — a session-scoped rule is tagged
// uniquely to this session's handle on the way in precisely so this
// removal can be selective (catalog.RemoveRuleEntry).
func (s *Session) Close() {
	s.mu.Lock()
	rules := s.rules
	s.rules = nil
	s.mu.Unlock()

	for _, r := range rules {
		s.kg.cat.RemoveRuleEntry(r.predicate, r.source)
	}
}
