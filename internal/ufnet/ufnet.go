// Package ufnet contains utilities for domain and hostname parsing and
// validation.
package ufnet

import (
	"fmt"
	"strings"

	"github.com/AdguardTeam/filterindex/wildcard"
	"github.com/AdguardTeam/golibs/netutil"
)

// ExtractHostname quickly retrieves hostname from the given URL.  If url has
// no scheme separator, it is returned as is, so that plain domain names can be
// passed as well.
//
// NOTE: ExtractHostname is a best-effort function.  The result is not
// guaranteed to be correct for some edge cases, which include non-hierarchical
// URLs and IPv6 hostnames.
func ExtractHostname(url string) (hostname string) {
	firstIdx := strings.Index(url, "//")
	if firstIdx == -1 {
		if strings.ContainsAny(url, "/:?") {
			return ""
		}

		return url
	}

	firstIdx += 2
	nextIdx := strings.IndexAny(url[firstIdx:], "/:?")
	if nextIdx == -1 {
		return url[firstIdx:]
	}

	return url[firstIdx : firstIdx+nextIdx]
}

// wildcardSubstitute replaces wildcard labels during validation.
const wildcardSubstitute = "wildcard"

// ValidateDomain returns an error if domain is neither a valid hostname nor a
// valid wildcard pattern, in which every wildcard label occupies a whole label.
func ValidateDomain(domain string) (err error) {
	if wildcard.Contains(domain) {
		labels := strings.Split(domain, ".")
		for i, l := range labels {
			if l == wildcard.Label {
				labels[i] = wildcardSubstitute
			}
		}

		domain = strings.Join(labels, ".")
	} else if strings.Contains(domain, wildcard.Label) {
		return fmt.Errorf("bad wildcard in domain %q", domain)
	}

	return netutil.ValidateHostname(domain)
}

// Subdomains returns host and all of its parent domains, the most specific
// first.  For "a.b.example.com" it returns "a.b.example.com", "b.example.com",
// "example.com", and "com".
func Subdomains(host string) (subs []string) {
	if host == "" {
		return nil
	}

	subs = append(subs, host)
	for {
		_, host, _ = strings.Cut(host, ".")
		if host == "" {
			return subs
		}

		subs = append(subs, host)
	}
}
