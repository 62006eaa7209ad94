// Package wildcard contains the matching primitive for domain patterns with
// wildcard labels, such as "*.example.com" or "example.*".
package wildcard

import (
	"net/http/cookiejar"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/net/publicsuffix"
)

// Label is the wildcard label.  It matches exactly one label of a domain name
// at the same position.
const Label = "*"

// Contains returns true if pattern contains at least one wildcard label.
// Asterisks inside of a label, as in "ex*ample.com", are not wildcards.
func Contains(pattern string) (ok bool) {
	for label := range strings.SplitSeq(pattern, ".") {
		if label == Label {
			return true
		}
	}

	return false
}

// Match returns true if domain matches pattern label by label.  Both must be
// lowercased and must not be FQDNs.  A wildcard label in pattern matches
// exactly one label of domain, so "*.example.com" matches "foo.example.com"
// but neither "example.com" nor "a.b.example.com".
func Match(domain, pattern string) (ok bool) {
	if domain == "" || pattern == "" {
		return false
	} else if dns.CountLabel(domain) != dns.CountLabel(pattern) {
		return false
	}

	for {
		var dl, pl string
		var more bool
		dl, domain, more = strings.Cut(domain, ".")
		pl, pattern, _ = strings.Cut(pattern, ".")
		if pl != Label && pl != dl {
			return false
		}

		if !more {
			return true
		}
	}
}

// LabelMatcher matches patterns using [Match].  Its zero value is ready to
// use.
type LabelMatcher struct{}

// IsWildcard returns true if pattern contains a wildcard label.
func (LabelMatcher) IsWildcard(pattern string) (ok bool) {
	return Contains(pattern)
}

// Match returns true if domain matches pattern.  See [Match].
func (LabelMatcher) Match(domain, pattern string) (ok bool) {
	return Match(domain, pattern)
}

// PublicSuffixMatcher is like [LabelMatcher], but a trailing wildcard label
// matches the whole public suffix of the domain, so "example.*" matches both
// "example.com" and "example.co.uk".
type PublicSuffixMatcher struct {
	list cookiejar.PublicSuffixList
}

// NewPublicSuffixMatcher returns a new *PublicSuffixMatcher.  If list is nil,
// [publicsuffix.List] is used.
func NewPublicSuffixMatcher(list cookiejar.PublicSuffixList) (m *PublicSuffixMatcher) {
	if list == nil {
		list = publicsuffix.List
	}

	return &PublicSuffixMatcher{
		list: list,
	}
}

// IsWildcard returns true if pattern contains a wildcard label.
func (m *PublicSuffixMatcher) IsWildcard(pattern string) (ok bool) {
	return Contains(pattern)
}

// Match returns true if domain matches pattern.
func (m *PublicSuffixMatcher) Match(domain, pattern string) (ok bool) {
	prefix, found := strings.CutSuffix(pattern, "."+Label)
	if !found {
		return Match(domain, pattern)
	}

	suffix := m.list.PublicSuffix(domain)
	if len(suffix) >= len(domain) {
		return false
	}

	rest := domain[:len(domain)-len(suffix)]
	rest, found = strings.CutSuffix(rest, ".")
	if !found {
		// The list returned something that isn't a label-aligned suffix.
		return false
	}

	return Match(rest, prefix)
}
