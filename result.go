package filterindex

// FilterMap maps filters to their inclusion flags for one domain.
type FilterMap[F comparable] map[F]bool

// ResultKind is the kind of a [Result].
type ResultKind uint8

// ResultKind values.
const (
	// ResultNone means that no filters matched.
	ResultNone ResultKind = iota

	// ResultSingle means that exactly one filter matched.
	ResultSingle

	// ResultMany means that two or more filters matched.
	ResultMany
)

// Result is the result of a lookup in an [Index].  The zero value is a result
// of kind [ResultNone].
type Result[F comparable] struct {
	// filters is set for results of kind ResultMany.  It's owned by the
	// result and never shared with the index.
	filters FilterMap[F]

	// single is set for results of kind ResultSingle.
	single F

	// kind is the kind of this result.
	kind ResultKind

	// include is the inclusion flag of single.
	include bool
}

// newSingleResult returns a result of kind [ResultSingle].
func newSingleResult[F comparable](f F, include bool) (r Result[F]) {
	return Result[F]{
		single:  f,
		kind:    ResultSingle,
		include: include,
	}
}

// newMapResult returns a result for fm, which must not be empty.  fm is
// retained in results of kind [ResultMany].
func newMapResult[F comparable](fm FilterMap[F]) (r Result[F]) {
	if len(fm) == 1 {
		for f, include := range fm {
			return newSingleResult(f, include)
		}
	}

	return Result[F]{
		filters: fm,
		kind:    ResultMany,
	}
}

// Kind returns the kind of r.
func (r Result[F]) Kind() (k ResultKind) {
	return r.kind
}

// Single returns the filter and its inclusion flag if r is of kind
// [ResultSingle].  Otherwise, ok is false.
func (r Result[F]) Single() (f F, include, ok bool) {
	if r.kind != ResultSingle {
		return f, false, false
	}

	return r.single, r.include, true
}

// Map returns the filters of r if it is of kind [ResultMany].  Otherwise, it
// returns nil.  fm is shared with r, but not with the index r came from, so
// later changes of the index don't affect it.
func (r Result[F]) Map() (fm FilterMap[F]) {
	return r.filters
}

// Len returns the number of filters in r.
func (r Result[F]) Len() (n int) {
	switch r.kind {
	case ResultSingle:
		return 1
	case ResultMany:
		return len(r.filters)
	default:
		return 0
	}
}

// Include returns the inclusion flag of f in r.  ok is false if r doesn't
// contain f.
func (r Result[F]) Include(f F) (include, ok bool) {
	switch r.kind {
	case ResultSingle:
		if r.single == f {
			return r.include, true
		}

		return false, false
	case ResultMany:
		include, ok = r.filters[f]

		return include, ok
	default:
		return false, false
	}
}

// Range calls fn for each filter in r until fn returns false.  The order of
// filters of results of kind [ResultMany] is unspecified.
func (r Result[F]) Range(fn func(f F, include bool) (cont bool)) {
	switch r.kind {
	case ResultSingle:
		fn(r.single, r.include)
	case ResultMany:
		for f, include := range r.filters {
			if !fn(f, include) {
				return
			}
		}
	default:
		// Go on.
	}
}

// ToMap returns a new FilterMap with the filters of r.  A result of kind
// [ResultNone] produces an empty map.
func (r Result[F]) ToMap() (fm FilterMap[F]) {
	fm = make(FilterMap[F], r.Len())
	r.Range(func(f F, include bool) (cont bool) {
		fm[f] = include

		return true
	})

	return fm
}
