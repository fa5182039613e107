// Package entitlement answers whether an owner may keep any number of
// pending reminders.
package entitlement

import "strings"

// Static grants unlimited reminders to a fixed set of owners.
type Static struct {
	owners map[string]struct{}
}

// NewStatic builds a Static from owner IDs. Blank entries are ignored.
func NewStatic(owners []string) *Static {
	s := &Static{owners: make(map[string]struct{}, len(owners))}
	for _, o := range owners {
		if o = strings.TrimSpace(o); o != "" {
			s.owners[o] = struct{}{}
		}
	}
	return s
}

// Unlimited reports whether owner is exempt from the free reminder limit.
func (s *Static) Unlimited(owner string) bool {
	if s == nil {
		return false
	}
	_, ok := s.owners[owner]
	return ok
}
