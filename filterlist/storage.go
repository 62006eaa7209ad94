package filterlist

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/AdguardTeam/filterindex"
	"github.com/AdguardTeam/filterindex/internal/ufnet"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// StorageConfig is the configuration structure for a [Storage].
type StorageConfig struct {
	// Logger is used to log the skipped rules.  If nil,
	// [slogutil.NewDiscardLogger] is used.
	Logger *slog.Logger

	// Matcher is used to match wildcard domains.  If nil, the default matcher
	// of [filterindex.New] is used.
	Matcher filterindex.Matcher
}

// Storage combines several filter lists and keeps their rules indexed by
// domain.  Lists can be added and removed at any time.
//
// Storage is safe for concurrent use.
type Storage struct {
	logger *slog.Logger

	// mu protects index and lists.
	mu    *sync.RWMutex
	index *filterindex.Index[*Rule]
	lists map[int][]*Rule
}

// NewStorage returns a new empty *Storage.  c must not be nil.
func NewStorage(c *StorageConfig) (s *Storage) {
	logger := c.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}

	return &Storage{
		logger: logger,
		mu:     &sync.RWMutex{},
		index: filterindex.New[*Rule](&filterindex.Config{
			Matcher: c.Matcher,
		}),
		lists: map[int][]*Rule{},
	}
}

// AddList scans the filter list from r and adds its rules to s.  Rules with
// invalid domains are logged and skipped.  n is the number of added rules.
func (s *Storage) AddList(ctx context.Context, id int, r io.Reader) (n int, err error) {
	defer func() { err = errors.Annotate(err, "adding list %d: %w", id) }()

	var rules []*Rule
	sc := NewScanner(r, id)
	for sc.Scan() {
		rule, ruleErr := sc.Rule()
		if ruleErr != nil {
			s.logger.DebugContext(ctx, "skipping rule", slogutil.KeyError, ruleErr)

			continue
		}

		rules = append(rules, rule)
	}

	err = sc.Err()
	if err != nil {
		return 0, fmt.Errorf("scanning: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lists[id]; ok {
		return 0, fmt.Errorf("list id: %w: %d", errors.ErrDuplicated, id)
	}

	for _, rule := range rules {
		s.index.Add(rule, rule.Domains)
	}

	s.lists[id] = rules

	return len(rules), nil
}

// RemoveList removes the rules of the list with the given ID from s.  ok is
// false if there is no such list.
func (s *Storage) RemoveList(id int) (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, ok := s.lists[id]
	if !ok {
		return false
	}

	for _, rule := range rules {
		s.index.Remove(rule, rule.Domains)
	}

	delete(s.lists, id)

	return true
}

// Match returns the rules that apply to host.  The domains are checked from
// the most specific one to the generic rules, and the first domain that
// mentions a rule decides whether it applies.  The rules are sorted by their
// lists and lines.
func (s *Storage) Match(host string) (rules []*Rule) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[*Rule]struct{}{}
	for _, domain := range append(ufnet.Subdomains(host), "") {
		s.index.Get(domain).Range(func(r *Rule, include bool) (cont bool) {
			if _, ok := seen[r]; ok {
				return true
			}

			seen[r] = struct{}{}
			if include {
				rules = append(rules, r)
			}

			return true
		})
	}

	slices.SortFunc(rules, compareRules)

	return rules
}

// compareRules compares rules by their list IDs and lines.
func compareRules(a, b *Rule) (res int) {
	return cmp.Or(cmp.Compare(a.ListID, b.ListID), cmp.Compare(a.Line, b.Line))
}

// Len returns the number of lists and the number of domain keys in s.
func (s *Storage) Len() (lists, domains int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.lists), s.index.Len()
}

// Close removes all lists from s.
func (s *Storage) Close() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.index.Clear()
	clear(s.lists)

	return nil
}
