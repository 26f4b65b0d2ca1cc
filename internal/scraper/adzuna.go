package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Noxie-dev/workwise-sa/internal/model"
)

const (
	adzunaBaseURL   = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize  = 50
	adzunaMaxPages  = 3
	adzunaSourceTag = "adzuna"
)

// AdzunaConfig configures an AdzunaCollector.
type AdzunaConfig struct {
	AppID     string
	AppKey    string
	Country   string // "za", "gb", ...
	BaseURL   string
	Titles    []string
	Locations []string
	MaxPages  int
	// Interval is the minimum gap between requests.
	Interval time.Duration
}

// AdzunaCollector searches the Adzuna API for every (title × location)
// pair. Without credentials it collects nothing and logs a warning.
type AdzunaCollector struct {
	cfg    AdzunaConfig
	client *pacedClient
	logger *zap.Logger
}

// NewAdzunaCollector builds a collector. h may be nil.
func NewAdzunaCollector(cfg AdzunaConfig, h *http.Client, logger *zap.Logger) *AdzunaCollector {
	if cfg.BaseURL == "" {
		cfg.BaseURL = adzunaBaseURL
	}
	if cfg.Country == "" {
		cfg.Country = "za"
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = adzunaMaxPages
	}
	if len(cfg.Locations) == 0 {
		cfg.Locations = []string{""}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdzunaCollector{
		cfg:    cfg,
		client: newPacedClient(h, cfg.Interval),
		logger: logger.Named("adzuna"),
	}
}

type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

type adzunaResult struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Company      adzunaCompany  `json:"company"`
	Location     adzunaLocation `json:"location"`
	SalaryMin    float64        `json:"salary_min"`
	SalaryMax    float64        `json:"salary_max"`
	RedirectURL  string         `json:"redirect_url"`
	Created      string         `json:"created"`
	ContractTime string         `json:"contract_time"`
	ContractType string         `json:"contract_type"`
}

type adzunaCompany struct {
	DisplayName string `json:"display_name"`
}

type adzunaLocation struct {
	DisplayName string `json:"display_name"`
}

// Collect fetches every configured pair. A failing pair is logged and
// skipped; Collect fails only when every pair failed.
func (c *AdzunaCollector) Collect(ctx context.Context) ([]model.Record, error) {
	if c.cfg.AppID == "" || c.cfg.AppKey == "" {
		c.logger.Warn("adzuna credentials not set, skipping")
		return nil, nil
	}

	var (
		records  []model.Record
		failures int
		lastErr  error
		pairs    = len(c.cfg.Titles) * len(c.cfg.Locations)
	)
	for _, title := range c.cfg.Titles {
		for _, location := range c.cfg.Locations {
			batch, err := c.fetch(ctx, title, location)
			records = append(records, batch...)
			if err != nil {
				if ctx.Err() != nil {
					return records, ctx.Err()
				}
				failures++
				lastErr = err
				c.logger.Warn("search failed, continuing",
					zap.String("title", title),
					zap.String("location", location),
					zap.Error(err),
				)
			}
		}
	}
	if pairs > 0 && failures == pairs {
		return nil, eris.Wrap(lastErr, "adzuna: every search failed")
	}
	c.logger.Info("adzuna collection done", zap.Int("records", len(records)), zap.Int("failed_searches", failures))
	return records, nil
}

// fetch pages through one search until a short page or the page cap.
func (c *AdzunaCollector) fetch(ctx context.Context, title, location string) ([]model.Record, error) {
	var records []model.Record
	for page := 1; page <= c.cfg.MaxPages; page++ {
		batch, err := c.fetchPage(ctx, title, location, page)
		if err != nil {
			return records, eris.Wrapf(err, "page %d", page)
		}
		records = append(records, batch...)
		if len(batch) < adzunaPageSize {
			break
		}
	}
	return records, nil
}

func (c *AdzunaCollector) fetchPage(ctx context.Context, title, location string, page int) ([]model.Record, error) {
	params := url.Values{}
	params.Set("app_id", c.cfg.AppID)
	params.Set("app_key", c.cfg.AppKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	params.Set("what", title)
	if location != "" {
		params.Set("where", location)
	}
	params.Set("content-type", "application/json")
	params.Set("sort_by", "date")

	endpoint := fmt.Sprintf("%s/%s/search/%d?%s", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Country, page, params.Encode())
	body, err := c.client.get(ctx, endpoint, "application/json")
	if err != nil {
		return nil, err
	}

	var resp adzunaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "decode adzuna response")
	}

	records := make([]model.Record, 0, len(resp.Results))
	for _, r := range resp.Results {
		records = append(records, r.toRecord())
	}
	return records, nil
}

func (r adzunaResult) toRecord() model.Record {
	rec := model.Record{
		Kind:        model.KindJob,
		Title:       r.Title,
		CompanyName: r.Company.DisplayName,
		Location:    r.Location.DisplayName,
		Description: r.Description,
		Salary:      formatSalary(r.SalaryMin, r.SalaryMax),
		JobType:     adzunaJobType(r.ContractTime, r.ContractType),
		SourceSite:  adzunaSourceTag,
		SourceURL:   r.RedirectURL,
		ApplyURL:    r.RedirectURL,
		ExternalID:  r.ID,
	}
	if rec.SourceURL == "" && r.ID != "" {
		rec.SourceURL = "adzuna:" + r.ID
	}
	if t, err := time.Parse(time.RFC3339, r.Created); err == nil {
		rec.PostedAt = &t
	}
	return rec
}

func formatSalary(lo, hi float64) string {
	switch {
	case lo > 0 && hi > 0 && hi != lo:
		return fmt.Sprintf("R%.0f - R%.0f", lo, hi)
	case lo > 0:
		return fmt.Sprintf("R%.0f", lo)
	case hi > 0:
		return fmt.Sprintf("R%.0f", hi)
	}
	return ""
}

func adzunaJobType(contractTime, contractType string) string {
	switch {
	case contractType == "contract":
		return model.JobTypeContract
	case contractTime == "part_time":
		return model.JobTypePartTime
	case contractTime == "full_time":
		return model.JobTypeFullTime
	}
	return ""
}
