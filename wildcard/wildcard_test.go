package wildcard_test

import (
	"testing"

	"github.com/AdguardTeam/filterindex/wildcard"
	"github.com/stretchr/testify/assert"
)

func TestContains(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		want    assert.BoolAssertionFunc
		name    string
		pattern string
	}{{
		want:    assert.False,
		name:    "empty",
		pattern: "",
	}, {
		want:    assert.False,
		name:    "domain",
		pattern: "example.com",
	}, {
		want:    assert.True,
		name:    "leading",
		pattern: "*.example.com",
	}, {
		want:    assert.True,
		name:    "trailing",
		pattern: "example.*",
	}, {
		want:    assert.True,
		name:    "middle",
		pattern: "a.*.example.com",
	}, {
		want:    assert.False,
		name:    "inside_label",
		pattern: "ex*ample.com",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tc.want(t, wildcard.Contains(tc.pattern))
		})
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		want    assert.BoolAssertionFunc
		name    string
		domain  string
		pattern string
	}{{
		want:    assert.True,
		name:    "subdomain",
		domain:  "foo.example.com",
		pattern: "*.example.com",
	}, {
		want:    assert.False,
		name:    "no_subdomain",
		domain:  "example.com",
		pattern: "*.example.com",
	}, {
		want:    assert.False,
		name:    "two_labels",
		domain:  "a.b.example.com",
		pattern: "*.example.com",
	}, {
		want:    assert.True,
		name:    "tld",
		domain:  "example.org",
		pattern: "example.*",
	}, {
		want:    assert.False,
		name:    "other_domain",
		domain:  "foo.example.org",
		pattern: "*.example.com",
	}, {
		want:    assert.True,
		name:    "middle",
		domain:  "a.b.example.com",
		pattern: "a.*.example.com",
	}, {
		want:    assert.True,
		name:    "exact",
		domain:  "example.com",
		pattern: "example.com",
	}, {
		want:    assert.False,
		name:    "empty_domain",
		domain:  "",
		pattern: "*",
	}, {
		want:    assert.True,
		name:    "single_label",
		domain:  "localhost",
		pattern: "*",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tc.want(t, wildcard.Match(tc.domain, tc.pattern))
			tc.want(t, wildcard.LabelMatcher{}.Match(tc.domain, tc.pattern))
		})
	}
}

func TestPublicSuffixMatcher_Match(t *testing.T) {
	t.Parallel()

	m := wildcard.NewPublicSuffixMatcher(nil)

	testCases := []struct {
		want    assert.BoolAssertionFunc
		name    string
		domain  string
		pattern string
	}{{
		want:    assert.True,
		name:    "single_label_suffix",
		domain:  "example.com",
		pattern: "example.*",
	}, {
		want:    assert.True,
		name:    "multi_label_suffix",
		domain:  "example.co.uk",
		pattern: "example.*",
	}, {
		want:    assert.False,
		name:    "subdomain",
		domain:  "sub.example.co.uk",
		pattern: "example.*",
	}, {
		want:    assert.False,
		name:    "suffix_only",
		domain:  "co.uk",
		pattern: "example.*",
	}, {
		want:    assert.True,
		name:    "leading_wildcard",
		domain:  "foo.example.com",
		pattern: "*.example.com",
	}, {
		want:    assert.True,
		name:    "both",
		domain:  "foo.example.co.uk",
		pattern: "*.example.*",
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			tc.want(t, m.Match(tc.domain, tc.pattern))
		})
	}

	assert.True(t, m.IsWildcard("example.*"))
	assert.False(t, m.IsWildcard("example.com"))
}

func BenchmarkMatch(b *testing.B) {
	var ok bool

	b.ReportAllocs()
	for b.Loop() {
		ok = wildcard.Match("foo.bar.example.com", "foo.*.example.com")
	}

	assert.True(b, ok)
}
