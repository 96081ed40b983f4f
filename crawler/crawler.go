package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

// ErrCrawlFailed is returned when the seed page cannot be fetched, no page
// was collected, or the crawl was cancelled.
var ErrCrawlFailed = errors.New("crawl failed")

// State is the lifecycle position of a Crawler.
type State int

const (
	Idle State = iota
	Crawling
	Finished
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Crawling:
		return "crawling"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Page is the text collected from one HTML response.
type Page struct {
	URL  string
	Text string
}

// Options configure a crawl.
type Options struct {
	MaxDepth     int // links found at this depth are not followed
	Concurrency  int
	UserAgent    string
	MaxPageBytes int64
	Throttle     ThrottleOptions
}

// DefaultOptions crawl the seed and the pages it links to.
func DefaultOptions() Options {
	return Options{
		MaxDepth:     1,
		Concurrency:  8,
		UserAgent:    "ragkb-crawler/1.0",
		MaxPageBytes: 10 << 20,
		Throttle:     DefaultThrottleOptions(),
	}
}

// Crawler visits a single site breadth-first. A Crawler runs once.
type Crawler struct {
	client   *http.Client
	opts     Options
	throttle *Throttle

	mu      sync.Mutex
	state   State
	host    string
	visited map[string]bool
	fetched map[string]bool
	pages   []Page
}

func New(client *http.Client, opts Options) *Crawler {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxDepth < 0 {
		opts.MaxDepth = 0
	}
	return &Crawler{
		client:   client,
		opts:     opts,
		throttle: NewThrottle(opts.Throttle),
		visited:  make(map[string]bool),
		fetched:  make(map[string]bool),
	}
}

func (c *Crawler) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pages returns the pages collected so far, in the order they were fetched.
func (c *Crawler) Pages() []Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Page(nil), c.pages...)
}

// Seed reduces a root URL to the scheme and host the crawl starts from.
func Seed(rootURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rootURL))
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", rootURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute http(s) URL", rootURL)
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}, nil
}

// Run crawls the site of rootURL and returns the collected pages.
func (c *Crawler) Run(ctx context.Context, rootURL string) ([]Page, error) {
	seed, err := Seed(rootURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrawlFailed, err)
	}

	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: crawler already %s", ErrCrawlFailed, c.state)
	}
	c.state = Crawling
	c.host = seed.Host
	c.visited[seed.String()] = true
	c.mu.Unlock()

	log.Printf("CRAWLER: Start crawling %s (depth %d)", seed.Host, c.opts.MaxDepth)
	if err := c.crawl(ctx, seed.String()); err != nil {
		c.setState(Failed)
		log.Printf("CRAWLER: Crawl of %s failed: %v", seed.Host, err)
		return nil, err
	}

	pages := c.Pages()
	if len(pages) == 0 {
		c.setState(Failed)
		return nil, fmt.Errorf("%w: no pages collected from %s", ErrCrawlFailed, seed.Host)
	}
	c.setState(Finished)
	log.Printf("CRAWLER: Finished crawling %s: %d pages", seed.Host, len(pages))
	return pages, nil
}

func (c *Crawler) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Crawler) crawl(ctx context.Context, seed string) error {
	frontier := []string{seed}
	for depth := 0; len(frontier) > 0; depth++ {
		var (
			nextMu sync.Mutex
			next   []string
		)
		g := new(errgroup.Group)
		g.SetLimit(c.opts.Concurrency)
		for _, target := range frontier {
			g.Go(func() error {
				links, err := c.visit(ctx, target)
				if err != nil {
					if target == seed || ctx.Err() != nil {
						return err
					}
					log.Printf("CRAWLER: Skipping %s: %v", target, err)
					return nil
				}
				if depth >= c.opts.MaxDepth {
					return nil
				}
				for _, l := range links {
					if c.markVisited(l) {
						nextMu.Lock()
						next = append(next, l)
						nextMu.Unlock()
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("%w: %v", ErrCrawlFailed, err)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrCrawlFailed, err)
		}
		frontier = next
	}
	return nil
}

func (c *Crawler) markVisited(u string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.visited[u] {
		return false
	}
	c.visited[u] = true
	return true
}

// visit fetches one URL, records its page and returns its outgoing links.
// Off-site and non-HTML responses yield neither.
func (c *Crawler) visit(ctx context.Context, target string) ([]string, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	c.throttle.Observe(time.Since(start), resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	final := resp.Request.URL
	if final.Host != c.host {
		log.Printf("CRAWLER: Skipping the not allowed URL: %s", final)
		return nil, nil
	}
	if ct := strings.ToLower(resp.Header.Get("Content-Type")); !strings.HasPrefix(ct, "text/html") {
		log.Printf("CRAWLER: Skipping the non HTML response: %s (%s)", final, ct)
		return nil, nil
	}

	body := io.Reader(resp.Body)
	if c.opts.MaxPageBytes > 0 {
		body = io.LimitReader(resp.Body, c.opts.MaxPageBytes)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	page := Page{URL: final.String(), Text: ExtractText(doc)}
	c.mu.Lock()
	if !c.fetched[page.URL] {
		c.fetched[page.URL] = true
		c.pages = append(c.pages, page)
	}
	c.mu.Unlock()
	log.Printf("CRAWLER: Crawled URL: %s", page.URL)

	return ExtractLinks(doc, final, c.host), nil
}
