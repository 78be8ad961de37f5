// Package collyfetcher implements lead.PageFetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/leadwatch/internal/lead"
	"github.com/JakeFAU/leadwatch/internal/resilience"
	"github.com/JakeFAU/leadwatch/internal/telemetry"
)

// HostWaiter throttles requests per host.
type HostWaiter interface {
	WaitHost(ctx context.Context, rawURL string) error
}

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	MaxBodyBytes  int
}

// Fetcher implements lead.PageFetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	hosts         HostWaiter
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. hosts may be nil.
func New(cfg Config, hosts HostWaiter) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	c.ParseHTTPErrorResponse = true
	c.AllowURLRevisit = true
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	return &Fetcher{cfg: cfg, hosts: hosts, baseCollector: c}
}

// Fetch executes a single HTTP GET using Colly. 4xx responses other than 429
// are returned as permanent errors.
func (f *Fetcher) Fetch(ctx context.Context, request lead.FetchRequest) (lead.Page, error) {
	if f.hosts != nil {
		if err := f.hosts.WaitHost(ctx, request.URL); err != nil {
			return lead.Page{}, fmt.Errorf("host throttle: %w", err)
		}
	}
	var (
		page     lead.Page
		fetchErr error
	)
	collector := f.buildCollector(request, time.Now(), &page, &fetchErr)
	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		telemetry.ObserveFetch(request.URL, "error", 0)
		return lead.Page{}, err
	}
	telemetry.ObserveFetch(request.URL, strconv.Itoa(page.StatusCode), len(page.Body))
	return page, classifyStatus(page)
}

func (f *Fetcher) buildCollector(
	request lead.FetchRequest,
	start time.Time,
	page *lead.Page,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	f.configureCollectorHooks(collector, request, start, page, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request lead.FetchRequest,
	start time.Time,
	page *lead.Page,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(request.Headers, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*page = lead.Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			*page = lead.Page{
				URL:        r.Request.URL.String(),
				StatusCode: r.StatusCode,
				Headers:    r.Headers.Clone(),
				Duration:   time.Since(start),
			}
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func classifyStatus(page lead.Page) error {
	switch {
	case page.StatusCode >= 200 && page.StatusCode < 400:
		return nil
	case page.StatusCode == http.StatusTooManyRequests || page.StatusCode >= 500:
		return fmt.Errorf("fetch %s: status %d", page.URL, page.StatusCode)
	default:
		return resilience.Permanent(fmt.Errorf("fetch %s: status %d", page.URL, page.StatusCode))
	}
}

func copyHeaders(headers http.Header, r *colly.Request) {
	for key, values := range headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
