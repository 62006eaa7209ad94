package filterlist

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/c2h5oh/datasize"
)

// Scanner scans the rules of a filter list line by line.  Empty lines and
// comments are skipped.
type Scanner struct {
	scanner *bufio.Scanner
	rule    *Rule
	ruleErr error
	listID  int
	line    int
}

// MaxLineSize is the maximum size of a line in a filter list, including the
// line terminator.  Longer lines make scanning fail.
const MaxLineSize = 1 * datasize.MB

// NewScanner returns a new scanner of the filter list with the given ID read
// from r.
func NewScanner(r io.Reader, listID int) (s *Scanner) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), int(MaxLineSize.Bytes()))

	return &Scanner{
		scanner: sc,
		listID:  listID,
	}
}

// Scan advances the scanner to the next rule.  It returns false when there are
// no more rules or when reading fails; see [Scanner.Err].
func (s *Scanner) Scan() (ok bool) {
	for s.scanner.Scan() {
		s.line++

		text := strings.TrimSpace(s.scanner.Text())
		if text == "" || isComment(text) {
			continue
		}

		s.rule, s.ruleErr = ParseRule(text, s.listID, s.line)
		if s.ruleErr != nil {
			s.ruleErr = fmt.Errorf("list %d: line %d: %w", s.listID, s.line, s.ruleErr)
		}

		return true
	}

	s.rule, s.ruleErr = nil, nil

	return false
}

// Rule returns the current rule.  err is not nil if the rule has an invalid
// domain source, in which case r is nil.
func (s *Scanner) Rule() (r *Rule, err error) {
	return s.rule, s.ruleErr
}

// Err returns the first reading error, if any.
func (s *Scanner) Err() (err error) {
	return s.scanner.Err()
}
