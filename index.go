// Package filterindex implements the index of filtering rules by the domains
// they apply to.  Both exact domains and wildcard domain patterns are
// supported.
package filterindex

import (
	"maps"

	"github.com/AdguardTeam/filterindex/domainmap"
	"github.com/AdguardTeam/filterindex/wildcard"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Matcher is the domain wildcard matching primitive used by an [Index].
type Matcher interface {
	// IsWildcard returns true if pattern contains wildcards and must be
	// matched with Match instead of being compared directly.
	IsWildcard(pattern string) (ok bool)

	// Match returns true if domain matches pattern.
	Match(domain, pattern string) (ok bool)
}

// type check
var (
	_ Matcher = wildcard.LabelMatcher{}
	_ Matcher = (*wildcard.PublicSuffixMatcher)(nil)
)

// Config is the configuration structure for an [Index].
type Config struct {
	// Matcher is used to detect and match wildcard domains.  If nil,
	// [wildcard.LabelMatcher] is used.
	Matcher Matcher
}

// Index is a bidirectional index between domains and filters of type F.
// Filters are compared by equality, so F is usually a pointer type.
//
// Index is not safe for concurrent use.
type Index[F comparable] struct {
	matcher Matcher

	// exact contains the entries for domains without wildcards.
	exact map[string]*entry[F]

	// wildcards contains the entries for wildcard patterns in the order of
	// their addition, which makes the merging of the results deterministic.
	wildcards *orderedmap.OrderedMap[string, *entry[F]]
}

// New returns a new properly initialized *Index.  c may be nil.
func New[F comparable](c *Config) (idx *Index[F]) {
	var m Matcher = wildcard.LabelMatcher{}
	if c != nil && c.Matcher != nil {
		m = c.Matcher
	}

	return &Index[F]{
		matcher:   m,
		exact:     map[string]*entry[F]{},
		wildcards: orderedmap.New[string, *entry[F]](),
	}
}

// Add adds f to the index for every domain in domains.  Exclusions of the
// empty domain are skipped, since there is nothing to exclude f from.
func (idx *Index[F]) Add(f F, domains domainmap.Map) {
	for domain, include := range domains {
		if domain == "" && !include {
			continue
		}

		if idx.matcher.IsWildcard(domain) {
			e, ok := idx.wildcards.Get(domain)
			if !ok {
				idx.wildcards.Set(domain, newEntry(f, include))
			} else {
				e.add(f, include)
			}
		} else if e, ok := idx.exact[domain]; !ok {
			idx.exact[domain] = newEntry(f, include)
		} else {
			e.add(f, include)
		}
	}
}

// Remove removes f from the index for every domain in domains.  domains should
// be the same as the one f has been added with.  Domains which f hasn't been
// added for are ignored.
func (idx *Index[F]) Remove(f F, domains domainmap.Map) {
	for domain, include := range domains {
		if domain == "" && !include {
			continue
		}

		if idx.matcher.IsWildcard(domain) {
			e, ok := idx.wildcards.Get(domain)
			if ok && e.remove(f) {
				idx.wildcards.Delete(domain)
			}
		} else if e, ok := idx.exact[domain]; ok && e.remove(f) {
			delete(idx.exact, domain)
		}
	}
}

// Has returns true if there are filters for domain, either through an exact
// key or through a matching wildcard pattern.
func (idx *Index[F]) Has(domain string) (ok bool) {
	if _, ok = idx.exact[domain]; ok {
		return true
	}

	for p := idx.wildcards.Oldest(); p != nil; p = p.Next() {
		if idx.matcher.Match(domain, p.Key) {
			return true
		}
	}

	return false
}

// Get returns the filters for domain.  The entries of matching wildcard
// patterns are merged in the order the patterns were added, and the exact
// entry for domain is merged last, so that when the same filter is present
// under several keys, the latest of them determines its inclusion flag.
func (idx *Index[F]) Get(domain string) (r Result[F]) {
	var first *entry[F]
	var merged FilterMap[F]

	mergeEntry := func(e *entry[F]) {
		switch {
		case first == nil:
			first = e
		case merged == nil:
			merged = make(FilterMap[F], first.len()+e.len())
			first.copyTo(merged)
			e.copyTo(merged)
		default:
			e.copyTo(merged)
		}
	}

	for p := idx.wildcards.Oldest(); p != nil; p = p.Next() {
		if idx.matcher.Match(domain, p.Key) {
			mergeEntry(p.Value)
		}
	}

	if e, ok := idx.exact[domain]; ok {
		mergeEntry(e)
	}

	switch {
	case merged != nil:
		return newMapResult(merged)
	case first != nil:
		return first.result()
	default:
		return Result[F]{}
	}
}

// Len returns the number of domains and wildcard patterns in the index.
func (idx *Index[F]) Len() (n int) {
	return len(idx.exact) + idx.wildcards.Len()
}

// Clear removes all entries from the index.
func (idx *Index[F]) Clear() {
	clear(idx.exact)
	idx.wildcards = orderedmap.New[string, *entry[F]]()
}

// entry contains the filters for a single domain key.  An entry with only one
// included filter is collapsed: filters is nil and the filter is kept in
// single.
type entry[F comparable] struct {
	filters FilterMap[F]
	single  F
}

// newEntry returns a new entry with the single filter f.
func newEntry[F comparable](f F, include bool) (e *entry[F]) {
	if include {
		return &entry[F]{single: f}
	}

	return &entry[F]{filters: FilterMap[F]{f: false}}
}

// isCollapsed returns true if e keeps its only filter in e.single.
func (e *entry[F]) isCollapsed() (ok bool) {
	return e.filters == nil
}

// add sets the inclusion flag of f in e, expanding e if necessary.
func (e *entry[F]) add(f F, include bool) {
	if e.isCollapsed() {
		if e.single == f && include {
			return
		}

		e.filters = FilterMap[F]{e.single: true}

		var zero F
		e.single = zero
	}

	e.filters[f] = include
}

// remove removes f from e and collapses e if possible.  empty is true if
// there are no filters left in e.
func (e *entry[F]) remove(f F) (empty bool) {
	if e.isCollapsed() {
		return e.single == f
	}

	delete(e.filters, f)
	switch len(e.filters) {
	case 0:
		return true
	case 1:
		for last, include := range e.filters {
			if include {
				e.single = last
				e.filters = nil
			}
		}
	default:
		// Go on.
	}

	return false
}

// len returns the number of filters in e.
func (e *entry[F]) len() (n int) {
	if e.isCollapsed() {
		return 1
	}

	return len(e.filters)
}

// copyTo sets the filters of e in fm.
func (e *entry[F]) copyTo(fm FilterMap[F]) {
	if e.isCollapsed() {
		fm[e.single] = true

		return
	}

	for f, include := range e.filters {
		fm[f] = include
	}
}

// result returns the lookup result containing the filters of e.  The result
// doesn't share memory with e.
func (e *entry[F]) result() (r Result[F]) {
	if e.isCollapsed() {
		return newSingleResult(e.single, true)
	}

	return newMapResult(maps.Clone(e.filters))
}
