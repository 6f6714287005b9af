// Package filter implements the ordered allow/deny name lists described in
// spec.md section 4.2, and the policy that composes them (section 4.3).
package filter

import (
	"fmt"
	"sort"

	"github.com/mdns-bridge/bridge/internal/dnsname"
	"github.com/mdns-bridge/bridge/internal/matcher"
)

// Mode selects whether a List's configured names are the only names that
// are allowed (Allow) or the only names that are denied (Deny).
type Mode int

const (
	// Allow permits only names that match one of the list's entries.
	Allow Mode = iota
	// Deny permits every name except those that match one of the list's
	// entries.
	Deny
)

func (m Mode) String() string {
	if m == Deny {
		return "deny"
	}
	return "allow"
}

// List is an ordered, deduplicated set of match names tagged with a mode.
// A nil *List has no effect on filtering decisions; an empty, non-nil List
// is deny-all (mode Allow) or allow-all (mode Deny).
type List struct {
	Mode  Mode
	Names []*matcher.Name
}

// New builds a filter list from a set of dotted DNS name suffixes. The
// names are sorted and deduplicated by their wire form so that two
// configurations listing the same suffixes in different orders produce
// structurally equal Lists.
func New(mode Mode, names []string) (*List, error) {
	built := make([]*matcher.Name, 0, len(names))
	for _, s := range names {
		m, err := matcher.Build(s)
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		built = append(built, m)
	}

	sort.Slice(built, func(i, j int) bool {
		return matcher.Compare(built[i], built[j]) < 0
	})

	deduped := built[:0]
	for i, m := range built {
		if i > 0 && matcher.Compare(deduped[len(deduped)-1], m) == 0 {
			continue
		}
		deduped = append(deduped, m)
	}

	return &List{Mode: mode, Names: deduped}, nil
}

// Evaluate reports whether name is allowed by the list, per spec.md
// section 4.2's decision rule: a name "matches" the list iff some member is
// a substring of the decoded label sequence; it is "allowed" iff
// (matches && mode==Allow) || (!matches && mode==Deny).
//
// Evaluate short-circuits on the first match found.
func (l *List) Evaluate(name *dnsname.Name) bool {
	matches := false
	for _, m := range l.Names {
		if matcher.Contains(name, m) {
			matches = true
			break
		}
	}

	if l.Mode == Allow {
		return matches
	}
	return !matches
}

// Equal reports whether two filter lists are structurally equal: same
// mode, same names, in the same order. Two lists built from the same set
// of dotted names (regardless of input order) are always Equal, because
// New sorts its input.
func Equal(a, b *List) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.Mode != b.Mode || len(a.Names) != len(b.Names) {
		return false
	}
	for i := range a.Names {
		if matcher.Compare(a.Names[i], b.Names[i]) != 0 {
			return false
		}
	}
	return true
}
