// Package filterlist contains the scanner of filter lists and the storage of
// the scanned rules, which keeps them indexed by domain.
package filterlist

import (
	"fmt"
	"strings"

	"github.com/AdguardTeam/filterindex/domainmap"
)

// Rule is a filtering rule from a filter list.  Rules are compared by their
// addresses, so the same text in two lists results in two different rules.
type Rule struct {
	// Domains are the domains the rule applies to.
	Domains domainmap.Map

	// Text is the normalized text of the rule.
	Text string

	// ListID is the ID of the list the rule comes from.
	ListID int

	// Line is the one-based number of the line of the rule in its list.
	Line int
}

// cosmeticMarkers are the markers that separate the domains of cosmetic rules
// from their bodies.  Longer markers go first.
var cosmeticMarkers = []string{
	"#@$?#",
	"#@?#",
	"#@$#",
	"#$?#",
	"#@#",
	"#?#",
	"#$#",
	"##",
}

// domainOption is the prefix of the network rule option with its domains.
const domainOption = "domain="

// isComment returns true if line is a comment or a list header.
func isComment(line string) (ok bool) {
	switch {
	case strings.HasPrefix(line, "!"), strings.HasPrefix(line, "[Adblock"):
		return true
	case strings.HasPrefix(line, "#"):
		_, _, ok = findCosmeticMarker(line)

		return !ok
	default:
		return false
	}
}

// findCosmeticMarker returns the position and the marker of a cosmetic rule.
// ok is false if line isn't a cosmetic rule.
func findCosmeticMarker(line string) (idx int, marker string, ok bool) {
	for i := strings.IndexByte(line, '#'); i >= 0 && i < len(line); {
		for _, m := range cosmeticMarkers {
			if strings.HasPrefix(line[i:], m) {
				return i, m, true
			}
		}

		next := strings.IndexByte(line[i+1:], '#')
		if next < 0 {
			break
		}

		i += next + 1
	}

	return -1, "", false
}

// domainSource returns the domain source of the rule and its separator.  An
// empty source means that the rule has no domain restrictions, unless isOpt is
// true, which means that the source comes from an empty $domain option.
func domainSource(text string) (source string, sep byte, isOpt bool) {
	if idx, _, ok := findCosmeticMarker(text); ok {
		return text[:idx], domainmap.SepCosmetic, false
	}

	optIdx := strings.LastIndexByte(text, '$')
	if optIdx < 0 {
		return "", domainmap.SepNetwork, false
	}

	for opt := range strings.SplitSeq(text[optIdx+1:], ",") {
		if src, ok := strings.CutPrefix(opt, domainOption); ok {
			return src, domainmap.SepNetwork, true
		}
	}

	return "", domainmap.SepNetwork, false
}

// ParseRule parses text into a rule.  text must be trimmed and must not be a
// comment.
func ParseRule(text string, listID, line int) (r *Rule, err error) {
	src, sep, isOpt := domainSource(text)
	if isOpt && src == "" {
		return nil, fmt.Errorf("%s option: %w", domainOption, domainmap.ErrEmptyDomain)
	}

	domains, err := domainmap.Parse(src, sep)
	if err != nil {
		return nil, err
	}

	return &Rule{
		Domains: domains,
		Text:    text,
		ListID:  listID,
		Line:    line,
	}, nil
}
