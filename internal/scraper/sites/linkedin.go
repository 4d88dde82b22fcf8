package sites

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"jobharbor/internal/logging"
	"jobharbor/internal/scraper/client"
	"jobharbor/pkg/models"
	"jobharbor/pkg/utils"
)

const (
	linkedInDefaultBaseURL = "https://www.linkedin.com/jobs-guest/jobs/api/seeMoreJobPostings/search"
	linkedInPageSize       = 25
)

// linkedInJobID pulls the numeric posting ID off the end of a job URL,
// e.g. .../jobs/view/senior-go-engineer-at-acme-3887654321.
var linkedInJobID = regexp.MustCompile(`(\d{6,})(?:[/?].*)?$`)

// LinkedIn scrapes the guest job-search endpoint, which serves server-side
// rendered cards without requiring a session.
type LinkedIn struct {
	client  *client.Client
	skills  client.SkillMatcher
	baseURL string
	timeout time.Duration
}

func NewLinkedIn(c *client.Client, skills client.SkillMatcher, opts Options) *LinkedIn {
	return &LinkedIn{
		client:  c,
		skills:  skills,
		baseURL: opts.baseURLOr(linkedInDefaultBaseURL),
		timeout: opts.Timeout,
	}
}

func (l *LinkedIn) Site() string { return SiteLinkedIn }

func (l *LinkedIn) Fetch(ctx context.Context, query models.SearchQuery) (*models.RawPage, error) {
	params := url.Values{}
	params.Set("keywords", query.Keywords)
	if query.Location != "" {
		params.Set("location", query.Location)
	}
	params.Set("start", fmt.Sprintf("%d", query.Page*linkedInPageSize))

	return l.client.Get(ctx, SiteLinkedIn, l.baseURL+"?"+params.Encode(), l.timeout)
}

func (l *LinkedIn) Parse(page *models.RawPage) ([]models.RawPosting, error) {
	// The guest endpoint returns an empty body once pagination runs out.
	if len(bytes.TrimSpace(page.Body)) == 0 {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, utils.NewParseError(SiteLinkedIn, fmt.Sprintf("invalid HTML: %v", err))
	}

	cards := doc.Find("div.base-card, div.base-search-card")
	if cards.Length() == 0 {
		return nil, utils.NewParseError(SiteLinkedIn, "no job cards found in response")
	}

	logger := logging.GetGlobalLogger()
	var postings []models.RawPosting
	skipped := 0

	cards.Each(func(_ int, card *goquery.Selection) {
		title := strings.TrimSpace(card.Find("h3.base-search-card__title").First().Text())
		jobURL, _ := card.Find("a.base-card__full-link").First().Attr("href")
		if jobURL == "" {
			jobURL, _ = card.Find("a").First().Attr("href")
		}
		if title == "" || jobURL == "" {
			skipped++
			return
		}

		rp := models.RawPosting{
			SourceSite:  SiteLinkedIn,
			SourceID:    linkedInSourceID(jobURL),
			Title:       title,
			CompanyName: strings.TrimSpace(card.Find("h4.base-search-card__subtitle").First().Text()),
			Location:    strings.TrimSpace(card.Find("span.job-search-card__location").First().Text()),
			Description: strings.TrimSpace(card.Find("p.base-search-card__metadata, div.job-search-card__snippet").First().Text()),
			URL:         jobURL,
		}
		if datetime, ok := card.Find("time").First().Attr("datetime"); ok {
			if t, err := time.Parse("2006-01-02", datetime); err == nil {
				rp.PostedAt = &t
			}
		}
		postings = append(postings, rp)
	})

	if skipped > 0 {
		logger.Warn("Skipped malformed job cards", map[string]interface{}{
			"site":    SiteLinkedIn,
			"skipped": skipped,
			"url":     page.URL,
		})
	}
	return postings, nil
}

func (l *LinkedIn) ExtractSkills(description string) []string {
	return l.skills.Match(description)
}

// linkedInSourceID falls back to the full URL when no numeric ID is
// present so deduplication still has a stable key.
func linkedInSourceID(jobURL string) string {
	if m := linkedInJobID.FindStringSubmatch(jobURL); m != nil {
		return m[1]
	}
	return jobURL
}
