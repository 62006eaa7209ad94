// Package domainmap contains the DomainMap type, which describes which domains
// a filtering rule applies to, and the parser of the domain sources of rules.
package domainmap

import (
	"fmt"
	"strings"

	"github.com/AdguardTeam/filterindex/internal/ufnet"
	"github.com/AdguardTeam/golibs/errors"
)

// Map maps a domain or a wildcard domain pattern to its inclusion flag.  The
// empty key stands for all domains.  A rule without domain restrictions is
// represented by [Default].
type Map map[string]bool

// Default returns a new Map that matches all domains.
func Default() (m Map) {
	return Map{"": true}
}

// IsGeneric returns true if m applies to all domains not explicitly excluded
// from it.  A nil or empty m is generic as well.
func (m Map) IsGeneric() (ok bool) {
	if len(m) == 0 {
		return true
	}

	return m[""]
}

// Separators for domain sources.
const (
	// SepNetwork separates domains in the $domain option of network rules.
	SepNetwork byte = '|'

	// SepCosmetic separates domains before the marker of cosmetic rules.
	SepCosmetic byte = ','
)

// exclusionPrefix marks an excluded domain in a domain source.
const exclusionPrefix = "~"

// ErrEmptyDomain is returned by [Parse] when the source has an empty domain
// between two separators.
const ErrEmptyDomain errors.Error = "empty domain"

// Parse parses a domain source, such as "example.com|~sub.example.com", into a
// Map.  Domains are lowercased.  The empty key is set to true if there are no
// included domains and to false otherwise.  An empty source results in
// [Default].
func Parse(source string, sep byte) (m Map, err error) {
	if source == "" {
		return Default(), nil
	}

	parts := strings.Split(source, string(sep))
	m = make(Map, len(parts)+1)

	hasIncludes := false
	for i, d := range parts {
		d = strings.ToLower(strings.TrimSpace(d))

		include := true
		if excl, ok := strings.CutPrefix(d, exclusionPrefix); ok {
			include = false
			d = excl
		}

		if d == "" {
			return nil, fmt.Errorf("domain at index %d: %w", i, ErrEmptyDomain)
		}

		err = ufnet.ValidateDomain(d)
		if err != nil {
			return nil, fmt.Errorf("domain at index %d: %w", i, err)
		}

		m[d] = include
		hasIncludes = hasIncludes || include
	}

	m[""] = !hasIncludes

	return m, nil
}
