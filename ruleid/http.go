package ruleid

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/httphdr"
	"github.com/AdguardTeam/golibs/ioutil"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil/urlutil"
	"github.com/c2h5oh/datasize"
	renameio "github.com/google/renameio/v2"
)

// HTTPLoaderConfig is the configuration structure for the loader returned by
// [NewHTTPLoader].
type HTTPLoaderConfig struct {
	// Logger is used to log the loading process.  If nil,
	// [slogutil.NewDiscardLogger] is used.
	Logger *slog.Logger

	// Client is used to request the mapping.  If nil, [http.DefaultClient]
	// is used.
	Client *http.Client

	// URL is the HTTP(S) URL of the JSON mapping.  It must not be nil.
	URL *url.URL

	// CachePath is the path to the file with the cached copy of the mapping.
	// If empty, the mapping is always requested and never cached.
	CachePath string

	// UserAgent, if not empty, is sent in the User-Agent header.
	UserAgent string

	// Staleness is the time after which the cached copy is requested again.
	Staleness time.Duration

	// MaxSize is the maximum size of the mapping.
	MaxSize datasize.ByteSize
}

// httpLoader loads the mapping from a URL and keeps its copy in a cache file.
type httpLoader struct {
	logger    *slog.Logger
	client    *http.Client
	url       *url.URL
	cachePath string
	userAgent string
	staleness time.Duration
	maxSize   datasize.ByteSize
}

// NewHTTPLoader returns a loader that requests the JSON mapping from c.URL.  If
// the cache file is fresh and valid, it's used instead.  If the request fails,
// a stale cache file is used, if there is one.  See [DecodeJSON] for the format.  c
// must not be nil.
func NewHTTPLoader(c *HTTPLoaderConfig) (l Loader, err error) {
	if c.URL == nil {
		return nil, fmt.Errorf("url: %w", errors.ErrNoValue)
	} else if !urlutil.IsValidHTTPURLScheme(c.URL.Scheme) {
		return nil, fmt.Errorf("url: bad scheme %q", c.URL.Scheme)
	}

	hl := &httpLoader{
		logger:    c.Logger,
		client:    c.Client,
		url:       c.URL,
		cachePath: c.CachePath,
		userAgent: c.UserAgent,
		staleness: c.Staleness,
		maxSize:   c.MaxSize,
	}

	if hl.logger == nil {
		hl.logger = slogutil.NewDiscardLogger()
	}

	if hl.client == nil {
		hl.client = http.DefaultClient
	}

	return hl.load, nil
}

// load is the [Loader] returned by [NewHTTPLoader].
func (l *httpLoader) load(ctx context.Context) (pairs iter.Seq2[string, []int], err error) {
	fresh, err := l.isCacheFresh(time.Now())
	if err != nil {
		return nil, fmt.Errorf("checking cache: %w", err)
	}

	if fresh {
		l.logger.DebugContext(ctx, "using cached rule ids", "path", l.cachePath)

		pairs, err = decodeFile(l.cachePath, l.maxSize)
		if err == nil {
			return pairs, nil
		}

		l.logger.WarnContext(
			ctx,
			"decoding cached rule ids; requesting",
			"path", l.cachePath,
			slogutil.KeyError, err,
		)
	}

	b, err := l.request(ctx)
	if err == nil {
		return l.decodeAndCache(ctx, b)
	}

	if l.cachePath == "" {
		return nil, err
	}

	l.logger.WarnContext(
		ctx,
		"requesting rule ids; falling back to cache",
		"path", l.cachePath,
		slogutil.KeyError, err,
	)

	pairs, cacheErr := decodeFile(l.cachePath, l.maxSize)
	if cacheErr != nil {
		return nil, errors.Join(err, cacheErr)
	}

	return pairs, nil
}

// isCacheFresh returns true if the cache file exists and is not older than the
// staleness relative to now.
func (l *httpLoader) isCacheFresh(now time.Time) (ok bool, err error) {
	if l.cachePath == "" {
		return false, nil
	}

	fi, err := os.Stat(l.cachePath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	return fi.ModTime().Add(l.staleness).After(now), nil
}

// request requests the mapping and returns its raw data.
func (l *httpLoader) request(ctx context.Context) (b []byte, err error) {
	ru := urlutil.RedactUserinfo(l.url)
	defer func() { err = errors.Annotate(err, "requesting %q: %w", ru) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if l.userAgent != "" {
		req.Header.Set(httphdr.UserAgent, l.userAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.WithDeferred(err, resp.Body.Close()) }()

	l.logger.DebugContext(
		ctx,
		"got rule ids from url",
		"code", resp.StatusCode,
		"content-length", resp.ContentLength,
		"url", ru,
	)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status code %d", resp.StatusCode)
	}

	b, err = io.ReadAll(ioutil.LimitReader(resp.Body, l.maxSize.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	return b, nil
}

// decodeAndCache decodes b and, if it's valid, atomically writes it into the
// cache file.
func (l *httpLoader) decodeAndCache(
	ctx context.Context,
	b []byte,
) (pairs iter.Seq2[string, []int], err error) {
	pairs, err = decodeBytes(b)
	if err != nil {
		return nil, err
	}

	if l.cachePath == "" {
		return pairs, nil
	}

	err = renameio.WriteFile(l.cachePath, b, 0o600)
	if err != nil {
		// Don't fail the loading, since the data is valid.
		l.logger.WarnContext(ctx, "writing rule id cache", slogutil.KeyError, err)
	}

	return pairs, nil
}
