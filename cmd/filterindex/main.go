// Package main is the filterindex command-line tool.  It loads filter lists
// into a domain index and prints the rules applicable to the given domains
// together with their platform rule ids.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/AdguardTeam/filterindex/filterlist"
	"github.com/AdguardTeam/filterindex/internal/metrics"
	"github.com/AdguardTeam/filterindex/internal/ufnet"
	"github.com/AdguardTeam/filterindex/ruleid"
	"github.com/AdguardTeam/filterindex/wildcard"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/c2h5oh/datasize"
	goFlags "github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"
)

// Options are the command-line options.
type Options struct {
	// LogOutput is the path to the log file.
	LogOutput string `short:"o" long:"output" description:"Path to the log file. If not set, it writes to stderr." default:""`

	// RuleIDs is the path or the HTTP(S) URL of the JSON rule id mapping.
	RuleIDs string `short:"r" long:"rule-ids" description:"Path or URL of the JSON file with rule ids."`

	// RuleIDsCache is the path to the cache file for RuleIDs URLs.
	RuleIDsCache string `long:"rule-ids-cache" description:"Path to the cache file for the rule ids URL."`

	// MetricsFile is the path to the file to write the metrics to.
	MetricsFile string `long:"metrics-file" description:"Path to the file to write Prometheus metrics to."`

	// FilterLists are the paths to the filter lists.
	FilterLists []string `short:"f" long:"filter" description:"Path to the filter list. Can be specified multiple times." required:"true"`

	// Queries are the domains or URLs to match.
	Queries []string `short:"d" long:"domain" description:"Domain or URL to match. Can be specified multiple times."`

	// Verbose enables debug-level logging.
	Verbose bool `short:"v" long:"verbose" description:"Verbose output (optional)." optional:"yes" optional-value:"true"`

	// PublicSuffixWildcards makes trailing wildcards match whole public
	// suffixes.
	PublicSuffixWildcards bool `long:"tld-wildcards" description:"Match trailing wildcards against public suffixes, e.g. example.* matches example.co.uk." optional:"yes" optional-value:"true"`
}

const (
	// maxRuleIDsSize is the maximum size of the rule id mapping.
	maxRuleIDsSize = 64 * datasize.MB

	// ruleIDsStaleness is the time after which a cached mapping is stale.
	ruleIDsStaleness = 24 * time.Hour

	// loadTimeout is the timeout for loading the rule id mapping.
	loadTimeout = 1 * time.Minute

	// metricsNamespace is the namespace of the metrics.
	metricsNamespace = "filterindex"
)

func main() {
	var opts Options
	parser := goFlags.NewParser(&opts, goFlags.Default)

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*goFlags.Error); ok && flagsErr.Type == goFlags.ErrHelp {
			os.Exit(0)
		}

		os.Exit(1)
	}

	err = run(context.Background(), &opts, os.Stdout)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "filterindex: %s\n", err)

		os.Exit(1)
	}
}

// run runs the tool with opts and writes the results to out.
func run(ctx context.Context, opts *Options, out io.Writer) (err error) {
	logOut := io.Writer(os.Stderr)
	if opts.LogOutput != "" {
		// #nosec G302 G304 -- Trust the path from the command line.
		f, fErr := os.OpenFile(opts.LogOutput, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if fErr != nil {
			return fmt.Errorf("creating log file: %w", fErr)
		}
		defer func() { err = errors.WithDeferred(err, f.Close()) }()

		logOut = f
	}

	lvl := slog.LevelInfo
	if opts.Verbose {
		lvl = slog.LevelDebug
	}

	logger := slogutil.New(&slogutil.Config{
		Output:       logOut,
		Format:       slogutil.FormatText,
		AddTimestamp: true,
		Level:        lvl,
	})

	storage, err := newStorage(ctx, logger, opts)
	if err != nil {
		return err
	}
	defer func() { err = errors.WithDeferred(err, storage.Close()) }()

	reg := prometheus.NewRegistry()
	mapper, err := newMapper(ctx, logger, reg, opts)
	if err != nil {
		return err
	}

	for _, q := range opts.Queries {
		err = printMatches(out, storage, mapper, q)
		if err != nil {
			return fmt.Errorf("query %q: %w", q, err)
		}
	}

	if opts.MetricsFile != "" {
		err = prometheus.WriteToTextfile(opts.MetricsFile, reg)
		if err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}

	return nil
}

// newStorage returns a storage with the filter lists from opts.
func newStorage(
	ctx context.Context,
	baseLogger *slog.Logger,
	opts *Options,
) (s *filterlist.Storage, err error) {
	logger := baseLogger.With(slogutil.KeyPrefix, "filterlist")

	c := &filterlist.StorageConfig{
		Logger: logger,
	}
	if opts.PublicSuffixWildcards {
		c.Matcher = wildcard.NewPublicSuffixMatcher(nil)
	}

	s = filterlist.NewStorage(c)
	for id, path := range opts.FilterLists {
		var n int
		n, err = addListFile(ctx, s, id, path)
		if err != nil {
			return nil, err
		}

		logger.InfoContext(ctx, "added filter list", "id", id, "path", path, "rules", n)
	}

	lists, domains := s.Len()
	logger.InfoContext(ctx, "index built", "lists", lists, "domains", domains, "rss", rss())

	return s, nil
}

// addListFile adds the filter list from the file at path to s.
func addListFile(
	ctx context.Context,
	s *filterlist.Storage,
	id int,
	path string,
) (n int, err error) {
	// #nosec G304 -- Trust the path from the command line.
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening filter list: %w", err)
	}
	defer func() { err = errors.WithDeferred(err, f.Close()) }()

	return s.AddList(ctx, id, f)
}

// rss returns the resident set size of the current process or zero if it
// cannot be determined.
func rss() (size datasize.ByteSize) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}

	mi, err := p.MemoryInfo()
	if err != nil {
		return 0
	}

	return datasize.ByteSize(mi.RSS)
}

// newMapper returns a loaded rule id mapper if opts has the rule id source.
// Otherwise, it returns nil.
func newMapper(
	ctx context.Context,
	baseLogger *slog.Logger,
	reg prometheus.Registerer,
	opts *Options,
) (m *ruleid.Mapper, err error) {
	if opts.RuleIDs == "" {
		return nil, nil
	}

	logger := baseLogger.With(slogutil.KeyPrefix, "ruleid")

	loader, err := newLoader(logger, opts)
	if err != nil {
		return nil, fmt.Errorf("rule ids: %w", err)
	}

	mtrc, err := metrics.NewRuleIDMapper(metricsNamespace, reg)
	if err != nil {
		return nil, fmt.Errorf("rule id metrics: %w", err)
	}

	m = ruleid.New(&ruleid.Config{
		Logger:  logger,
		Loader:  loader,
		Metrics: mtrc,
	})

	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	err = m.Load(ctx)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// newLoader returns the loader for the rule id source from opts.
func newLoader(logger *slog.Logger, opts *Options) (l ruleid.Loader, err error) {
	src := opts.RuleIDs
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return ruleid.NewFileLoader(src, maxRuleIDsSize), nil
	}

	u, err := url.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing url: %w", err)
	}

	return ruleid.NewHTTPLoader(&ruleid.HTTPLoaderConfig{
		Logger:    logger,
		URL:       u,
		CachePath: opts.RuleIDsCache,
		UserAgent: "filterindex",
		Staleness: ruleIDsStaleness,
		MaxSize:   maxRuleIDsSize,
	})
}

// printMatches writes the rules from s matching the query q and their rule ids
// from m, if any, into out.
func printMatches(
	out io.Writer,
	s *filterlist.Storage,
	m *ruleid.Mapper,
	q string,
) (err error) {
	host := strings.ToLower(ufnet.ExtractHostname(q))
	if host == "" {
		return errors.Error("no hostname")
	}

	for _, r := range s.Match(host) {
		var ids []int
		if m != nil {
			ids, _, err = m.Get(r.Text)
			if err != nil {
				return fmt.Errorf("getting rule ids: %w", err)
			}
		}

		_, err = fmt.Fprintf(out, "%s\t%d:%d\t%s\t%v\n", host, r.ListID, r.Line, r.Text, ids)
		if err != nil {
			return fmt.Errorf("writing result: %w", err)
		}
	}

	return nil
}
