// Package fetch downloads pages of archive search results and turns them into works.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"fandom-vis/internal/archive"
	"fandom-vis/internal/components/assert"
	"fandom-vis/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	report_driver_fetch_page = "driver.fetch-page"
	report_driver_parse_page = "driver.parse-page"
	report_driver_skip_page  = "driver.skip-page"
	report_driver_works      = "driver.works"
)

type Options struct {
	// Endpoint is the base url of the archive, defaults to archive.DEFAULT_ENDPOINT.
	Endpoint string
	Query    archive.SearchQuery
	// Start is the first page fetched (1-based), Count is the maximum number of pages.
	Start int
	Count int
	// Workers is the number of pages fetched concurrently.
	Workers int
	// Interval is slept by a worker after each request.
	Interval time.Duration
	// RequestsPerSecond limits the request rate across all workers, 0 means unlimited.
	RequestsPerSecond float64
	// SkipBrokenPages reports pages that fail extraction and skips them instead of
	// failing the run. Network errors always fail the run.
	SkipBrokenPages bool
	// DisableBypass sends requests with a plain transport instead of one that
	// mimics a browser tls handshake.
	DisableBypass bool
}

// Sink receives the works of each page, it is called in page order and never
// concurrently.
type Sink func(page int, works []archive.Work) error

type Summary struct {
	// Pages is the number of non-empty pages passed to the sink.
	Pages int
	Works int
	// SkippedPages is the number of pages dropped because they could not be extracted.
	SkippedPages int
	// LastPage is the last page passed to the sink, 0 if there was none.
	LastPage int
	// Exhausted is set when an empty page was found before the page range ran out.
	Exhausted bool
}

type Driver struct {
	http *resty.Client
	opts Options
	tel  telemetry.API
}

func NewDriver(opts Options, tel telemetry.API) (*Driver, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("fetch", tel)

	if opts.Endpoint == "" {
		opts.Endpoint = archive.DEFAULT_ENDPOINT
	}
	if opts.Start < 1 {
		return nil, fmt.Errorf("start page must be >= 1, got %d", opts.Start)
	}
	if opts.Count < 0 {
		return nil, fmt.Errorf("page count must not be negative, got %d", opts.Count)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	parsedEndpoint, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.Endpoint)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	httpClient.SetCookieJar(jar)
	if !opts.DisableBypass {
		httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	}

	httpClient.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	httpClient.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsedEndpoint.Hostname()))
	httpClient.SetTimeout(time.Second * 30)

	if opts.RequestsPerSecond > 0 {
		// a burst of one worth of requests per worker keeps every worker busy
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Workers)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, tel)

	return &Driver{
		http: httpClient,
		opts: opts,
		tel:  tel,
	}, nil
}

// FetchPage downloads a single page of search results and extracts its works.
func (d *Driver) FetchPage(ctx context.Context, page int) ([]archive.Work, error) {
	pageUrl, err := archive.PageUrl(d.opts.Endpoint, page, d.opts.Query)
	if err != nil {
		return nil, err
	}

	res, err := d.http.R().
		SetContext(ctx).
		Get(pageUrl)
	d.sleep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			d.tel.ReportBroken(report_driver_fetch_page, page, err)
		}
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}
	if res.IsError() {
		err = fmt.Errorf("fetch page %d: unexpected status %s", page, res.Status())
		d.tel.ReportBroken(report_driver_fetch_page, page, err)
		return nil, err
	}

	works, err := archive.ParseSearchPage(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, &PageError{Page: page, Err: err}
	}
	d.tel.ReportDebug("fetched page", "page", page, "works", len(works))
	return works, nil
}

func (d *Driver) sleep(ctx context.Context) {
	if d.opts.Interval <= 0 {
		return
	}
	timer := time.NewTimer(d.opts.Interval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// PageError is an extraction failure on a single page.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %s", e.Page, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

type pageResult struct {
	works []archive.Work
	err   error
}

// run holds the pages that finished out of order until every page before them
// has been passed to the sink.
type run struct {
	mutex   sync.Mutex
	pending map[int]pageResult
	next    int
	sink    Sink
	stop    context.CancelFunc
	tel     telemetry.API

	skipBroken bool
	summary    Summary
}

// complete records the result of a page and drains every result that is next
// in page order. Errors are only raised once the page is reached so that a
// failure past the first empty page is discarded with the rest of those pages.
func (r *run) complete(page int, works []archive.Work, err error) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.summary.Exhausted {
		return nil
	}
	r.pending[page] = pageResult{works: works, err: err}

	for {
		result, ok := r.pending[r.next]
		if !ok {
			return nil
		}
		delete(r.pending, r.next)

		if result.err != nil {
			var pageErr *PageError
			if !errors.As(result.err, &pageErr) {
				return result.err
			}
			if !r.skipBroken {
				r.tel.ReportBroken(report_driver_parse_page, r.next, pageErr.Err)
				return result.err
			}
			r.reportSkipped(pageErr)
			r.summary.SkippedPages++
			r.next++
			continue
		}
		if len(result.works) == 0 {
			r.tel.ReportDebug("found empty page, stopping", "page", r.next)
			r.summary.Exhausted = true
			r.stop()
			return nil
		}

		err = r.sink(r.next, result.works)
		if err != nil {
			return fmt.Errorf("sink page %d: %w", r.next, err)
		}
		r.summary.Pages++
		r.summary.Works += len(result.works)
		r.summary.LastPage = r.next
		r.tel.ReportCount(report_driver_works, int64(r.summary.Works))
		r.next++
	}
}

func (r *run) reportSkipped(pageErr *PageError) {
	var structural *archive.StructuralExtractionError
	var field *archive.FieldParseError
	switch {
	case errors.As(pageErr, &structural):
		r.tel.ReportWarning(report_driver_skip_page, pageErr.Page, structural.Field, structural.Selector, structural)
	case errors.As(pageErr, &field):
		r.tel.ReportWarning(report_driver_skip_page, pageErr.Page, field.Field, field.Selector, field)
	default:
		r.tel.ReportWarning(report_driver_skip_page, pageErr.Page, pageErr.Err)
	}
}

// Run fetches pages Start to Start+Count-1 with a bounded pool of workers and
// passes their works to sink in page order. The first empty page ends the run,
// pages after it are discarded.
func (d *Driver) Run(ctx context.Context, sink Sink) (Summary, error) {
	assert.NotNil(sink)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := &run{
		pending:    make(map[int]pageResult),
		next:       d.opts.Start,
		sink:       sink,
		stop:       cancel,
		tel:        d.tel,
		skipBroken: d.opts.SkipBrokenPages,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(d.opts.Workers)

	end := d.opts.Start + d.opts.Count
	for page := d.opts.Start; page < end; page++ {
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			works, err := d.FetchPage(groupCtx, page)
			return state.complete(page, works, err)
		})
	}
	err := group.Wait()

	state.mutex.Lock()
	summary := state.summary
	state.mutex.Unlock()

	if err != nil {
		return summary, err
	}
	// ctx is only cancelled by the run itself once it is exhausted
	if !summary.Exhausted && ctx.Err() != nil {
		return summary, ctx.Err()
	}
	return summary, nil
}
