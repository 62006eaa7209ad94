package ruleid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/ioutil"
	"github.com/c2h5oh/datasize"
)

// pair is a single element of the JSON mapping: a two-element array with the
// text and the rule ids.
type pair struct {
	text string
	ids  []int
}

// type check
var _ json.Unmarshaler = (*pair)(nil)

// UnmarshalJSON implements the [json.Unmarshaler] interface for *pair.
func (p *pair) UnmarshalJSON(b []byte) (err error) {
	var raw []json.RawMessage
	err = json.Unmarshal(b, &raw)
	if err != nil {
		return err
	}

	if len(raw) != 2 {
		return fmt.Errorf("want 2 elements, got %d", len(raw))
	}

	err = json.Unmarshal(raw[0], &p.text)
	if err != nil {
		return fmt.Errorf("text: %w", err)
	}

	err = json.Unmarshal(raw[1], &p.ids)
	if err != nil {
		return fmt.Errorf("ids: %w", err)
	}

	return nil
}

// DecodeJSON decodes the mapping from r.  The data must be a JSON array of
// pairs, each of which is an array with the text and the array of the rule
// ids, for example:
//
//	[["ad-button", [1, 2, 3]], ["##.banner", [4]]]
func DecodeJSON(r io.Reader) (pairs iter.Seq2[string, []int], err error) {
	var ps []*pair
	err = json.NewDecoder(r).Decode(&ps)
	if err != nil {
		return nil, fmt.Errorf("decoding rule ids: %w", err)
	}

	for i, p := range ps {
		if p == nil {
			return nil, fmt.Errorf("pair at index %d: %w", i, errors.ErrNoValue)
		}
	}

	return func(yield func(text string, ids []int) (cont bool)) {
		for _, p := range ps {
			if !yield(p.text, p.ids) {
				return
			}
		}
	}, nil
}

// NewFileLoader returns a loader that decodes the JSON mapping from the file at
// path.  The file must not be larger than maxSize.  See [DecodeJSON].
func NewFileLoader(path string, maxSize datasize.ByteSize) (l Loader) {
	return func(_ context.Context) (pairs iter.Seq2[string, []int], err error) {
		return decodeFile(path, maxSize)
	}
}

// decodeFile decodes the JSON mapping from the file at path.
func decodeFile(path string, maxSize datasize.ByteSize) (pairs iter.Seq2[string, []int], err error) {
	// #nosec G304 -- Trust the path, since it comes from the configuration.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rule id file: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, f.Close()) }()

	return DecodeJSON(ioutil.LimitReader(f, maxSize.Bytes()))
}

// decodeBytes decodes the JSON mapping from b.
func decodeBytes(b []byte) (pairs iter.Seq2[string, []int], err error) {
	return DecodeJSON(bytes.NewReader(b))
}
