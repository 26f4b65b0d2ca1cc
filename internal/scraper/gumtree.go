package scraper

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Noxie-dev/workwise-sa/internal/model"
)

const (
	gumtreeBaseURL   = "https://www.gumtree.co.za"
	gumtreeSourceTag = "gumtree"
	gumtreeMaxPages  = 3
	gumtreeInterval  = 2 * time.Second
	htmlAccept       = "text/html,application/xhtml+xml"
)

// DefaultGumtreePaths are the entry-level job categories crawled when no
// start paths are configured.
var DefaultGumtreePaths = []string{
	"/s-jobs/v1c8p1",
	"/s-admin-office-clerical/v1c8034p1",
	"/s-domestic-jobs/v1c8038p1",
	"/s-general-jobs/v1c8039p1",
	"/s-hospitality-jobs/v1c8040p1",
	"/s-retail-jobs/v1c8045p1",
	"/s-security-jobs/v1c8046p1",
	"/s-warehouse-jobs/v1c8048p1",
}

// Listing and detail selectors, tried in order.
var (
	listingLinkSelectors = []string{"a.related-ad-title", ".listing-link", `[data-testid="listing-link"]`}
	nextPageSelectors    = []string{`a[aria-label="Next page"]`, ".pagination-next"}
	titleSelectors       = []string{"h1.myAdTitle", `[data-testid="ad-title"]`, ".ad-title"}
	descSelectors        = []string{".ad-description", `[data-testid="ad-description"]`}
	locationSelectors    = []string{".ad-location", `[data-testid="ad-location"]`}
	dateSelectors        = []string{".ad-date", ".creation-date", `[data-testid="ad-date"]`}
)

// GumtreeConfig configures a GumtreeCollector.
type GumtreeConfig struct {
	BaseURL    string
	StartPaths []string
	// MaxPages bounds how many listing pages are followed per start path.
	MaxPages int
	// MaxListings stops the crawl once this many ads were parsed. Zero
	// means no cap.
	MaxListings int
	// Interval is the gap between requests. Zero means two seconds; a
	// negative value disables pacing.
	Interval time.Duration
}

// GumtreeCollector crawls Gumtree listing pages and parses every linked ad.
type GumtreeCollector struct {
	cfg    GumtreeConfig
	client *pacedClient
	logger *zap.Logger
	now    func() time.Time
}

// NewGumtreeCollector builds a collector. h may be nil.
func NewGumtreeCollector(cfg GumtreeConfig, h *http.Client, logger *zap.Logger) *GumtreeCollector {
	if cfg.BaseURL == "" {
		cfg.BaseURL = gumtreeBaseURL
	}
	if len(cfg.StartPaths) == 0 {
		cfg.StartPaths = DefaultGumtreePaths
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = gumtreeMaxPages
	}
	if cfg.Interval == 0 {
		cfg.Interval = gumtreeInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GumtreeCollector{
		cfg:    cfg,
		client: newPacedClient(h, cfg.Interval),
		logger: logger.Named("gumtree"),
		now:    time.Now,
	}
}

// Collect walks each start path and its pagination. Detail pages that fail
// are logged and skipped.
func (c *GumtreeCollector) Collect(ctx context.Context) ([]model.Record, error) {
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "gumtree: parse base url")
	}

	seen := make(map[string]bool)
	var records []model.Record
	var listingErrs int

	for _, path := range c.cfg.StartPaths {
		next := resolve(base, path)
		for page := 1; next != "" && page <= c.cfg.MaxPages; page++ {
			links, nextPage, err := c.listing(ctx, next)
			if err != nil {
				if ctx.Err() != nil {
					return records, ctx.Err()
				}
				listingErrs++
				c.logger.Warn("listing page failed", zap.String("url", next), zap.Error(err))
				break
			}
			c.logger.Debug("listing page parsed", zap.String("url", next), zap.Int("links", len(links)))

			for _, link := range links {
				if seen[link] {
					continue
				}
				seen[link] = true
				if c.cfg.MaxListings > 0 && len(records) >= c.cfg.MaxListings {
					return records, nil
				}

				rec, err := c.detail(ctx, link)
				if err != nil {
					if ctx.Err() != nil {
						return records, ctx.Err()
					}
					c.logger.Warn("detail page failed", zap.String("url", link), zap.Error(err))
					continue
				}
				records = append(records, rec)
			}
			next = nextPage
		}
	}

	if len(records) == 0 && listingErrs == len(c.cfg.StartPaths) {
		return nil, eris.New("gumtree: every listing page failed")
	}
	c.logger.Info("gumtree collection done", zap.Int("records", len(records)))
	return records, nil
}

func (c *GumtreeCollector) listing(ctx context.Context, pageURL string) (links []string, next string, err error) {
	doc, base, err := c.document(ctx, pageURL)
	if err != nil {
		return nil, "", err
	}
	for _, sel := range listingLinkSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if href, ok := s.Attr("href"); ok && strings.TrimSpace(href) != "" {
				links = append(links, resolve(base, href))
			}
		})
		if len(links) > 0 {
			break
		}
	}
	for _, sel := range nextPageSelectors {
		if href, ok := doc.Find(sel).First().Attr("href"); ok && href != "" {
			next = resolve(base, href)
			break
		}
	}
	return links, next, nil
}

func (c *GumtreeCollector) detail(ctx context.Context, pageURL string) (model.Record, error) {
	doc, _, err := c.document(ctx, pageURL)
	if err != nil {
		return model.Record{}, err
	}
	return c.parseDetail(doc, pageURL), nil
}

func (c *GumtreeCollector) parseDetail(doc *goquery.Document, pageURL string) model.Record {
	title := firstText(doc, titleSelectors)
	rawDescription := firstRawText(doc, descSelectors)
	description := strings.Join(strings.Fields(rawDescription), " ")
	location := firstText(doc, locationSelectors)
	if location == "" {
		if crumb := strings.TrimSpace(doc.Find(".breadcrumb li").Last().Text()); crumb != "" && crumb != "Jobs" {
			location = crumb
		}
	}
	if location == "" {
		location = "South Africa"
	}

	seller := firstText(doc, []string{".vip-seller-name", ".seller-name"})
	jobType, workMode := classifyJobType(title, description)
	posted := parsePostedDate(firstText(doc, dateSelectors), c.now())

	return model.Record{
		Kind:        model.KindJob,
		Title:       title,
		Description: description,
		CompanyName: extractCompanyName(seller, rawDescription),
		Location:    location,
		Salary:      extractSalary(description),
		JobType:     jobType,
		WorkMode:    workMode,
		PostedAt:    &posted,
		SourceURL:   pageURL,
		SourceSite:  gumtreeSourceTag,
		ExternalID:  extractExternalID(pageURL),
		ApplyURL:    pageURL,
		IsFeatured:  doc.Find(".featured, .urgent, .top-ad").Length() > 0,
		IsUrgent:    doc.Find(".urgent").Length() > 0,
	}
}

func (c *GumtreeCollector) document(ctx context.Context, pageURL string) (*goquery.Document, *url.URL, error) {
	body, err := c.client.get(ctx, pageURL, htmlAccept)
	if err != nil {
		return nil, nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, eris.Wrap(err, "parse html")
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, eris.Wrap(err, "parse page url")
	}
	return doc, base, nil
}

// firstText returns the whitespace-collapsed text of the first selector
// that matches anything.
func firstText(doc *goquery.Document, selectors []string) string {
	return strings.Join(strings.Fields(firstRawText(doc, selectors)), " ")
}

func firstRawText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			if text := strings.TrimSpace(s.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}
