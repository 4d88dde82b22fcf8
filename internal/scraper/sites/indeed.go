package sites

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"jobharbor/internal/logging"
	"jobharbor/internal/scraper/client"
	"jobharbor/pkg/models"
	"jobharbor/pkg/utils"
)

const (
	indeedDefaultBaseURL = "https://www.indeed.com/jobs"
	indeedPageSize       = 10
)

// Indeed scrapes the public search result pages. Card markup shifts between
// the legacy class names and the newer data-testid attributes, so selectors
// try both.
type Indeed struct {
	client  *client.Client
	skills  client.SkillMatcher
	baseURL string
	timeout time.Duration
}

func NewIndeed(c *client.Client, skills client.SkillMatcher, opts Options) *Indeed {
	return &Indeed{
		client:  c,
		skills:  skills,
		baseURL: opts.baseURLOr(indeedDefaultBaseURL),
		timeout: opts.Timeout,
	}
}

func (i *Indeed) Site() string { return SiteIndeed }

func (i *Indeed) Fetch(ctx context.Context, query models.SearchQuery) (*models.RawPage, error) {
	params := url.Values{}
	params.Set("q", query.Keywords)
	if query.Location != "" {
		params.Set("l", query.Location)
	}
	params.Set("start", fmt.Sprintf("%d", query.Page*indeedPageSize))

	return i.client.Get(ctx, SiteIndeed, i.baseURL+"?"+params.Encode(), i.timeout)
}

func (i *Indeed) Parse(page *models.RawPage) ([]models.RawPosting, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, utils.NewParseError(SiteIndeed, fmt.Sprintf("invalid HTML: %v", err))
	}

	cards := doc.Find("div.job_seen_beacon")
	if cards.Length() == 0 {
		// A results container with no cards is a legitimate empty page;
		// no container at all means the markup changed under us.
		if doc.Find("#mosaic-provider-jobcards, td#resultsCol").Length() > 0 {
			return nil, nil
		}
		return nil, utils.NewParseError(SiteIndeed, "job card container not found")
	}

	logger := logging.GetGlobalLogger()
	var postings []models.RawPosting
	skipped := 0

	cards.Each(func(_ int, card *goquery.Selection) {
		link := card.Find("h2.jobTitle a").First()
		title := strings.TrimSpace(link.Text())
		if title == "" {
			title = strings.TrimSpace(card.Find("h2.jobTitle").First().Text())
		}
		href, _ := link.Attr("href")
		sourceID, _ := link.Attr("data-jk")
		if sourceID == "" {
			sourceID = indeedSourceID(href)
		}
		if title == "" || sourceID == "" {
			skipped++
			return
		}

		company := strings.TrimSpace(card.Find(`span.companyName, [data-testid="company-name"]`).First().Text())
		location := strings.TrimSpace(card.Find(`div.companyLocation, [data-testid="text-location"]`).First().Text())
		desc := strings.TrimSpace(card.Find("div.job-snippet").First().Text())

		postings = append(postings, models.RawPosting{
			SourceSite:  SiteIndeed,
			SourceID:    sourceID,
			Title:       title,
			CompanyName: company,
			Location:    location,
			Description: desc,
			URL:         indeedAbsoluteURL(i.baseURL, href),
		})
	})

	if skipped > 0 {
		logger.Warn("Skipped malformed job cards", map[string]interface{}{
			"site":    SiteIndeed,
			"skipped": skipped,
			"url":     page.URL,
		})
	}
	return postings, nil
}

func (i *Indeed) ExtractSkills(description string) []string {
	return i.skills.Match(description)
}

// indeedSourceID extracts the jk parameter from a job link, the stable
// posting key Indeed uses across result pages.
func indeedSourceID(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get("jk")
}

func indeedAbsoluteURL(base, href string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	u, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return u.ResolveReference(ref).String()
}
