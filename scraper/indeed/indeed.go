// Package indeed collects job detail pages from Indeed search results with a
// headless browser.
package indeed

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"

	"skill-radar/models"
	"skill-radar/scraper"
	"skill-radar/utils"
)

const (
	resultsPerPage  = 10
	jobLinkSelector = `a[id^="job-"], a[id^="job_"], a.jcs-JobTitle`
)

// Collector orchestrates search-page and detail-page fetches. Requests are
// serialized and spaced by the configured minimum interval.
type Collector struct {
	baseURL  string
	browser  Browser
	pacer    *utils.Pacer
	timeout  time.Duration
	maxPages int
	logger   *utils.Logger
}

var _ scraper.Collector = (*Collector)(nil)

type Options struct {
	BaseURL      string
	FetchTimeout time.Duration
	MinInterval  time.Duration
	MaxPages     int
}

func New(browser Browser, opts Options, logger *utils.Logger) *Collector {
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}
	return &Collector{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		browser:  browser,
		pacer:    utils.NewPacer(opts.MinInterval),
		timeout:  opts.FetchTimeout,
		maxPages: opts.MaxPages,
		logger:   logger,
	}
}

func (c *Collector) Source() models.Source { return models.SourceIndeed }

// SearchURL builds the results page URL for a zero-based page index.
func (c *Collector) SearchURL(term, location string, page int) string {
	v := url.Values{}
	v.Set("q", term)
	v.Set("l", location)
	if page > 0 {
		v.Set("start", fmt.Sprint(page*resultsPerPage))
	}
	return c.baseURL + "/jobs?" + v.Encode()
}

// Fetch walks up to MaxPages search pages and captures every new detail
// page. A failed first search page fails the query; later failures are
// itemized. Nothing is retried within a run.
func (c *Collector) Fetch(ctx context.Context, q scraper.Query) (*scraper.FetchResult, error) {
	pages := c.maxPages
	if q.MaxPages > 0 {
		pages = q.MaxPages
	}
	c.logger.Info("[indeed] Starting collection: %q in %q, up to %d pages", q.Term, q.Location, pages)

	res := &scraper.FetchResult{}
	visited := utils.NewURLSet()

	for page := 0; page < pages; page++ {
		searchURL := c.SearchURL(q.Term, q.Location, page)
		html, err := c.render(ctx, searchURL)
		if err != nil {
			if page == 0 {
				return nil, err
			}
			res.Failures = append(res.Failures, models.NewItemError(searchURL, err))
			break
		}

		links, err := c.jobLinks(html)
		if err != nil {
			res.Failures = append(res.Failures, models.NewItemError(searchURL, err))
			break
		}
		if len(links) == 0 {
			c.logger.Warn("[indeed] Page %d returned 0 job links, stopping", page+1)
			break
		}

		for _, link := range links {
			if !visited.Add(link) || q.ShouldSkip(link) {
				c.logger.Debug("[indeed] Skipping already captured: %s", link)
				continue
			}
			detail, err := c.render(ctx, link)
			if err != nil {
				if ctx.Err() != nil {
					return res, nil
				}
				c.logger.Warn("[indeed] Detail page failed for %s: %v", link, err)
				res.Failures = append(res.Failures, models.NewItemError(link, err))
				continue
			}
			res.Items = append(res.Items, models.Fetched{SourceURL: link, ContentType: models.ContentHTML, Content: detail})
		}
		c.logger.Info("[indeed] Page %d done, %d documents so far", page+1, len(res.Items))
	}

	c.logger.Info("[indeed] Collection complete: %d documents, %d failures", len(res.Items), len(res.Failures))
	return res, nil
}

func (c *Collector) render(ctx context.Context, target string) (string, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return "", &models.FetchError{Source: models.SourceIndeed, URL: target, Kind: models.FetchTimeout, Err: err}
	}
	fetchCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	html, err := c.browser.Render(fetchCtx, target)
	if err != nil {
		kind := models.FetchNetwork
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			kind = models.FetchTimeout
		}
		return "", &models.FetchError{Source: models.SourceIndeed, URL: target, Kind: kind, Err: err}
	}
	return html, nil
}

// jobLinks extracts canonical viewjob URLs from a search results page.
func (c *Collector) jobLinks(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, errors.Wrap(err, "parse search page")
	}

	var links []string
	seen := make(map[string]struct{})
	doc.Find(jobLinkSelector).Each(func(_ int, s *goquery.Selection) {
		link := c.canonicalLink(s)
		if link == "" {
			return
		}
		if _, dup := seen[link]; !dup {
			seen[link] = struct{}{}
			links = append(links, link)
		}
	})
	return links, nil
}

// canonicalLink prefers the data-jk job key so tracking parameters do not
// defeat fetch deduplication.
func (c *Collector) canonicalLink(s *goquery.Selection) string {
	if jk, ok := s.Attr("data-jk"); ok && jk != "" {
		return c.baseURL + "/viewjob?jk=" + url.QueryEscape(jk)
	}
	href, ok := s.Attr("href")
	if !ok || href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if jk := u.Query().Get("jk"); jk != "" {
		return c.baseURL + "/viewjob?jk=" + url.QueryEscape(jk)
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}
