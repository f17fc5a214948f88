// Package adzuna collects listings from the Adzuna job search API. Each
// listing is captured as its own JSON document.
package adzuna

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"skill-radar/models"
	"skill-radar/scraper"
	"skill-radar/utils"
)

// MaxResultsPerPage is the largest page the API serves.
const MaxResultsPerPage = 50

type Options struct {
	BaseURL      string
	Country      string
	AppID        string
	AppKey       string
	PerPage      int
	MaxPages     int
	FetchTimeout time.Duration
	MinInterval  time.Duration
}

type Collector struct {
	opts   Options
	client *http.Client
	pacer  *utils.Pacer
	logger *utils.Logger
}

var _ scraper.Collector = (*Collector)(nil)

func New(opts Options, client *http.Client, logger *utils.Logger) *Collector {
	if opts.PerPage <= 0 || opts.PerPage > MaxResultsPerPage {
		opts.PerPage = MaxResultsPerPage
	}
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}
	if opts.Country == "" {
		opts.Country = "in"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if client == nil {
		client = &http.Client{}
	}
	return &Collector{
		opts:   opts,
		client: client,
		pacer:  utils.NewPacer(opts.MinInterval),
		logger: logger,
	}
}

func (c *Collector) Source() models.Source { return models.SourceAdzuna }

type searchPage struct {
	Count   int               `json:"count"`
	Results []json.RawMessage `json:"results"`
}

type listingRef struct {
	ID          json.RawMessage `json:"id"`
	RedirectURL string          `json:"redirect_url"`
}

// SearchURL builds the request URL for a one-based page number.
func (c *Collector) SearchURL(term, location string, page int) string {
	v := url.Values{}
	v.Set("app_id", c.opts.AppID)
	v.Set("app_key", c.opts.AppKey)
	v.Set("results_per_page", fmt.Sprint(c.opts.PerPage))
	v.Set("full_time", "1")
	if term != "" {
		v.Set("what", term)
	}
	if location != "" {
		v.Set("where", location)
	}
	return fmt.Sprintf("%s/%s/search/%d?%s", c.opts.BaseURL, url.PathEscape(c.opts.Country), page, v.Encode())
}

// Fetch pages through search results until the reported count is exhausted,
// a page comes back empty, or MaxPages is reached.
func (c *Collector) Fetch(ctx context.Context, q scraper.Query) (*scraper.FetchResult, error) {
	if c.opts.AppID == "" || c.opts.AppKey == "" {
		return nil, errors.Wrap(models.ErrConfiguration, "adzuna app id and key are required")
	}
	maxPages := c.opts.MaxPages
	if q.MaxPages > 0 {
		maxPages = q.MaxPages
	}
	c.logger.Info("[adzuna] Searching %q in %q, up to %d pages", q.Term, q.Location, maxPages)

	res := &scraper.FetchResult{}
	for page := 1; page <= maxPages; page++ {
		body, err := c.get(ctx, c.SearchURL(q.Term, q.Location, page))
		if err != nil {
			if page == 1 {
				return nil, err
			}
			res.Failures = append(res.Failures, models.NewItemError(fmt.Sprintf("adzuna page %d", page), err))
			break
		}

		var sp searchPage
		if err := json.Unmarshal(body, &sp); err != nil {
			res.Failures = append(res.Failures, models.NewItemError(fmt.Sprintf("adzuna page %d", page), errors.Wrap(err, "decode search page")))
			break
		}
		if len(sp.Results) == 0 {
			break
		}

		for _, raw := range sp.Results {
			var ref listingRef
			if err := json.Unmarshal(raw, &ref); err != nil {
				res.Failures = append(res.Failures, models.NewItemError(fmt.Sprintf("adzuna page %d", page), errors.Wrap(err, "decode listing")))
				continue
			}
			link := fetchURL(ref)
			if link == "" {
				res.Failures = append(res.Failures, models.NewItemError(fmt.Sprintf("adzuna page %d", page), errors.New("listing without id or redirect url")))
				continue
			}
			if q.ShouldSkip(link) {
				continue
			}
			res.Items = append(res.Items, models.Fetched{SourceURL: link, ContentType: models.ContentJSON, Content: string(raw)})
		}

		totalPages := int(math.Ceil(float64(sp.Count) / float64(c.opts.PerPage)))
		c.logger.Info("[adzuna] Page %d/%d: %d results", page, totalPages, len(sp.Results))
		if page >= totalPages {
			break
		}
	}
	c.logger.Info("[adzuna] Collection complete: %d listings, %d failures", len(res.Items), len(res.Failures))
	return res, nil
}

func fetchURL(ref listingRef) string {
	if ref.RedirectURL != "" {
		return ref.RedirectURL
	}
	id := strings.Trim(string(ref.ID), `"`)
	if id == "" || id == "null" {
		return ""
	}
	return "adzuna://job/" + id
}

func (c *Collector) get(ctx context.Context, target string) ([]byte, error) {
	fail := func(kind models.FetchKind, err error) error {
		return &models.FetchError{Source: models.SourceAdzuna, URL: redact(target), Kind: kind, Err: err}
	}
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, fail(models.FetchTimeout, err)
	}
	if c.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.FetchTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrapf(models.ErrConfiguration, "build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fail(models.FetchTimeout, err)
		}
		var ne interface{ Timeout() bool }
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, fail(models.FetchTimeout, err)
		}
		return nil, fail(models.FetchNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(models.FetchNetwork, errors.Wrap(err, "read body"))
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fail(models.FetchAuth, errors.Newf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fail(models.FetchRateLimit, errors.Newf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, fail(models.FetchNetwork, errors.Newf("status %d: %s", resp.StatusCode, snippet(body)))
	}
	return body, nil
}

// redact strips credentials so request URLs are safe to log and store.
func redact(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	v := u.Query()
	v.Del("app_id")
	v.Del("app_key")
	u.RawQuery = v.Encode()
	return u.String()
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
