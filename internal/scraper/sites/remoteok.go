package sites

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"jobharbor/internal/logging"
	"jobharbor/internal/scraper/client"
	"jobharbor/pkg/models"
	"jobharbor/pkg/utils"
)

const remoteOKDefaultBaseURL = "https://remoteok.com/api"

// RemoteOK consumes the public JSON API rather than scraping HTML. The API
// returns the full feed in one array, so search terms are applied client
// side and pagination is a no-op.
type RemoteOK struct {
	client  *client.Client
	skills  client.SkillMatcher
	baseURL string
	timeout time.Duration
}

func NewRemoteOK(c *client.Client, skills client.SkillMatcher, opts Options) *RemoteOK {
	return &RemoteOK{
		client:  c,
		skills:  skills,
		baseURL: opts.baseURLOr(remoteOKDefaultBaseURL),
		timeout: opts.Timeout,
	}
}

func (r *RemoteOK) Site() string { return SiteRemoteOK }

func (r *RemoteOK) Fetch(ctx context.Context, query models.SearchQuery) (*models.RawPage, error) {
	// The feed is not paginated; only the first page carries data.
	if query.Page > 0 {
		return &models.RawPage{
			Site:      SiteRemoteOK,
			URL:       r.baseURL,
			Body:      []byte("[]"),
			FetchedAt: time.Now().UTC(),
		}, nil
	}
	target := r.baseURL
	if tags := remoteOKTags(query.Keywords); tags != "" {
		target += "?tags=" + url.QueryEscape(tags)
	}
	return r.client.Get(ctx, SiteRemoteOK, target, r.timeout)
}

// remoteOKTags maps free-text keywords onto the API's comma separated tag
// filter, which stands in for the server-side search other sites offer.
func remoteOKTags(keywords string) string {
	return strings.Join(strings.Fields(strings.ToLower(keywords)), ",")
}

type remoteOKEntry struct {
	ID          remoteOKID `json:"id"`
	Slug        string     `json:"slug"`
	Position    string     `json:"position"`
	Company     string     `json:"company"`
	Location    string     `json:"location"`
	Description string     `json:"description"`
	Tags        []string   `json:"tags"`
	URL         string     `json:"url"`
	Date        string     `json:"date"`
}

// remoteOKID tolerates the API serving ids as either numbers or strings.
type remoteOKID string

func (id *remoteOKID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		s = ""
	}
	*id = remoteOKID(s)
	return nil
}

func (r *RemoteOK) Parse(page *models.RawPage) ([]models.RawPosting, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(page.Body, &entries); err != nil {
		return nil, utils.NewParseError(SiteRemoteOK, fmt.Sprintf("invalid JSON feed: %v", err))
	}

	logger := logging.GetGlobalLogger()
	skipped := 0

	var postings []models.RawPosting
	for _, raw := range entries {
		var e remoteOKEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			skipped++
			continue
		}
		// The first array element is a legal notice, not a job.
		if e.Position == "" || e.ID == "" {
			continue
		}
		rp := models.RawPosting{
			SourceSite:  SiteRemoteOK,
			SourceID:    string(e.ID),
			Title:       e.Position,
			CompanyName: e.Company,
			Location:    remoteOKLocation(e.Location),
			Description: e.Description,
			URL:         e.URL,
		}
		// The feed ships curated tags; match those through the vocabulary
		// instead of re-scanning the description downstream.
		if len(e.Tags) > 0 {
			rp.Skills = r.skills.Match(strings.Join(e.Tags, " "))
		}
		if t, err := time.Parse(time.RFC3339, e.Date); err == nil {
			rp.PostedAt = &t
		}
		postings = append(postings, rp)
	}

	if skipped > 0 {
		logger.Warn("Skipped malformed feed entries", map[string]interface{}{
			"site":    SiteRemoteOK,
			"skipped": skipped,
			"url":     page.URL,
		})
	}
	return postings, nil
}

func (r *RemoteOK) ExtractSkills(description string) []string {
	return r.skills.Match(description)
}

func remoteOKLocation(loc string) string {
	if loc == "" {
		return "Remote"
	}
	return loc
}
