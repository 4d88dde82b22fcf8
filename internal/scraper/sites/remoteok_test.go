package sites

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobharbor/pkg/models"
	"jobharbor/pkg/utils"
)

const remoteOKFixture = `[
  {"legal": "API terms of service apply."},
  {
    "id": 123456,
    "slug": "go-engineer-acme",
    "position": "Go Engineer",
    "company": "Acme",
    "location": "Worldwide",
    "description": "Build distributed systems in Go.",
    "tags": ["golang", "aws"],
    "url": "https://remoteok.com/remote-jobs/123456",
    "date": "2026-08-19T10:30:00+00:00"
  },
  {"id": "broken", "position": 42},
  {
    "id": "789",
    "position": "Data Engineer",
    "company": "Beta",
    "location": "",
    "description": "Pipelines.",
    "url": "https://remoteok.com/remote-jobs/789",
    "date": "not-a-date"
  }
]`

func TestRemoteOKParse(t *testing.T) {
	r := NewRemoteOK(testClient(), staticMatcher{skills: []string{"aws", "go"}}, Options{})

	raws, err := r.Parse(&models.RawPage{Site: SiteRemoteOK, Body: []byte(remoteOKFixture)})
	require.NoError(t, err)
	require.Len(t, raws, 2, "the legal notice and the malformed entry are skipped")

	first := raws[0]
	assert.Equal(t, "123456", first.SourceID)
	assert.Equal(t, "Go Engineer", first.Title)
	assert.Equal(t, "Acme", first.CompanyName)
	assert.Equal(t, "Worldwide", first.Location)
	assert.Equal(t, []string{"aws", "go"}, first.Skills, "feed tags map through the vocabulary")
	require.NotNil(t, first.PostedAt)

	second := raws[1]
	assert.Equal(t, "789", second.SourceID)
	assert.Equal(t, "Remote", second.Location, "empty location defaults to Remote")
	assert.Nil(t, second.PostedAt, "unparseable dates are dropped, not fatal")
}

func TestRemoteOKParseInvalidFeed(t *testing.T) {
	r := NewRemoteOK(testClient(), staticMatcher{}, Options{})

	_, err := r.Parse(&models.RawPage{Site: SiteRemoteOK, Body: []byte(`{"error": "rate limited"}`)})
	require.Error(t, err)
	assert.True(t, utils.IsParseError(err))
}

func TestRemoteOKFetch(t *testing.T) {
	var gotTags string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTags = r.URL.Query().Get("tags")
		_, _ = w.Write([]byte(remoteOKFixture))
	}))
	defer srv.Close()

	r := NewRemoteOK(testClient(), staticMatcher{}, Options{BaseURL: srv.URL})

	page, err := r.Fetch(context.Background(), models.SearchQuery{Keywords: "Golang Backend"})
	require.NoError(t, err)
	assert.Equal(t, "golang,backend", gotTags)
	assert.NotEmpty(t, page.Body)
}

func TestRemoteOKFetchBeyondFirstPage(t *testing.T) {
	r := NewRemoteOK(testClient(), staticMatcher{}, Options{})

	page, err := r.Fetch(context.Background(), models.SearchQuery{Keywords: "go", Page: 1})
	require.NoError(t, err)

	raws, err := r.Parse(page)
	require.NoError(t, err)
	assert.Empty(t, raws, "the feed has a single page")
}
