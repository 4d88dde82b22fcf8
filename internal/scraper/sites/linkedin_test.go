package sites

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobharbor/internal/scraper/client"
	"jobharbor/pkg/models"
	"jobharbor/pkg/utils"
)

type nopGate struct{}

func (nopGate) Acquire(ctx context.Context, site string) error { return nil }

type staticMatcher struct{ skills []string }

func (m staticMatcher) Match(text string) []string { return m.skills }

func testClient() *client.Client {
	return client.New(nopGate{}, "test-agent")
}

const linkedInFixture = `<!DOCTYPE html>
<ul>
  <li>
    <div class="base-card job-search-card">
      <a class="base-card__full-link" href="https://www.linkedin.com/jobs/view/go-engineer-at-acme-3887654321?refId=x"></a>
      <h3 class="base-search-card__title"> Go Engineer </h3>
      <h4 class="base-search-card__subtitle"> Acme Corp </h4>
      <span class="job-search-card__location">Austin, TX</span>
      <time datetime="2026-08-20"></time>
    </div>
  </li>
  <li>
    <div class="base-card job-search-card">
      <a class="base-card__full-link" href="https://www.linkedin.com/jobs/view/data-engineer-at-beta-3887650000"></a>
      <h3 class="base-search-card__title">Data Engineer</h3>
      <h4 class="base-search-card__subtitle">Beta Inc</h4>
      <span class="job-search-card__location">Remote</span>
    </div>
  </li>
  <li>
    <div class="base-card job-search-card">
      <h3 class="base-search-card__title"></h3>
    </div>
  </li>
</ul>`

func TestLinkedInParse(t *testing.T) {
	l := NewLinkedIn(testClient(), staticMatcher{}, Options{})

	raws, err := l.Parse(&models.RawPage{Site: SiteLinkedIn, Body: []byte(linkedInFixture)})
	require.NoError(t, err)
	require.Len(t, raws, 2, "the malformed card is skipped, not fatal")

	first := raws[0]
	assert.Equal(t, SiteLinkedIn, first.SourceSite)
	assert.Equal(t, "3887654321", first.SourceID)
	assert.Equal(t, "Go Engineer", first.Title)
	assert.Equal(t, "Acme Corp", first.CompanyName)
	assert.Equal(t, "Austin, TX", first.Location)
	require.NotNil(t, first.PostedAt)
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), first.PostedAt.UTC())

	assert.Equal(t, "3887650000", raws[1].SourceID)
	assert.Nil(t, raws[1].PostedAt)
}

func TestLinkedInParseEmptyPage(t *testing.T) {
	l := NewLinkedIn(testClient(), staticMatcher{}, Options{})

	raws, err := l.Parse(&models.RawPage{Site: SiteLinkedIn, Body: []byte("  ")})
	require.NoError(t, err)
	assert.Empty(t, raws, "exhausted pagination returns an empty body, not an error")
}

func TestLinkedInParseUnexpectedMarkup(t *testing.T) {
	l := NewLinkedIn(testClient(), staticMatcher{}, Options{})

	_, err := l.Parse(&models.RawPage{Site: SiteLinkedIn, Body: []byte("<html><body><p>verify you are human</p></body></html>")})
	require.Error(t, err)
	assert.True(t, utils.IsParseError(err))
	assert.False(t, utils.IsRetryable(err))
}

func TestLinkedInFetch(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"keywords": r.URL.Query().Get("keywords"),
			"location": r.URL.Query().Get("location"),
			"start":    r.URL.Query().Get("start"),
		}
		_, _ = w.Write([]byte(linkedInFixture))
	}))
	defer srv.Close()

	l := NewLinkedIn(testClient(), staticMatcher{}, Options{BaseURL: srv.URL, Timeout: 5 * time.Second})

	page, err := l.Fetch(context.Background(), models.SearchQuery{Keywords: "go engineer", Location: "Austin", Page: 2})
	require.NoError(t, err)
	assert.Equal(t, SiteLinkedIn, page.Site)
	assert.Equal(t, "go engineer", gotQuery["keywords"])
	assert.Equal(t, "Austin", gotQuery["location"])
	assert.Equal(t, "50", gotQuery["start"], "page index maps to a result offset")
}

func TestLinkedInFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	l := NewLinkedIn(testClient(), staticMatcher{}, Options{BaseURL: srv.URL})

	_, err := l.Fetch(context.Background(), models.SearchQuery{Keywords: "go"})
	require.Error(t, err)
	assert.True(t, utils.IsRetryable(err), "a 429 block is retryable")
}

func TestLinkedInSourceIDFallback(t *testing.T) {
	assert.Equal(t, "3887654321", linkedInSourceID("https://example.com/jobs/view/x-3887654321?a=b"))
	assert.Equal(t, "https://example.com/jobs/view/short", linkedInSourceID("https://example.com/jobs/view/short"))
}
