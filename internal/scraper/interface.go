// Package scraper defines the extractor contract and the site registry. One
// extractor exists per source site; all share the fetch/parse/extract-skills
// capability set behind a single interface.
package scraper

import (
	"context"
	"fmt"
	"sort"

	"jobharbor/internal/config"
	"jobharbor/internal/scraper/client"
	"jobharbor/internal/scraper/sites"
	"jobharbor/pkg/models"
	"jobharbor/pkg/utils"
)

// Extractor turns a raw fetched page into zero or more raw postings.
type Extractor interface {
	// Site returns the site name this extractor serves.
	Site() string

	// Fetch retrieves one search results page. It honors the per-site
	// rate limit gate before issuing any network call.
	Fetch(ctx context.Context, query models.SearchQuery) (*models.RawPage, error)

	// Parse extracts raw postings from a fetched page. A malformed entry
	// is skipped without aborting the rest of the page; a missing page
	// structure is a ParseError.
	Parse(page *models.RawPage) ([]models.RawPosting, error)

	// ExtractSkills matches the skill vocabulary against free text.
	ExtractSkills(description string) []string
}

// Registry holds one extractor per configured site, keyed by site name.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry builds extractors for every configured site. A site with no
// extractor implementation is a configuration error: the pipeline must not
// run with ambiguous site configuration.
func NewRegistry(cfg *config.Config, gate client.Gate, matcher client.SkillMatcher) (*Registry, error) {
	httpClient := client.New(gate, cfg.Scraper.UserAgent)

	extractors := make(map[string]Extractor, len(cfg.Sites))
	for site, sc := range cfg.Sites {
		opts := sites.Options{
			BaseURL: sc.BaseURL,
			Timeout: sc.FetchTimeout.Std(),
		}

		switch site {
		case sites.SiteLinkedIn:
			extractors[site] = sites.NewLinkedIn(httpClient, matcher, opts)
		case sites.SiteIndeed:
			extractors[site] = sites.NewIndeed(httpClient, matcher, opts)
		case sites.SiteRemoteOK:
			extractors[site] = sites.NewRemoteOK(httpClient, matcher, opts)
		default:
			return nil, utils.NewConfigError(fmt.Sprintf("no extractor implemented for site %q", site))
		}
	}

	return &Registry{extractors: extractors}, nil
}

// Get returns the extractor for the given site.
func (r *Registry) Get(site string) (Extractor, error) {
	extractor, ok := r.extractors[site]
	if !ok {
		return nil, fmt.Errorf("no extractor registered for site %q", site)
	}
	return extractor, nil
}

// Sites returns the registered site names, sorted.
func (r *Registry) Sites() []string {
	names := make([]string, 0, len(r.extractors))
	for site := range r.extractors {
		names = append(names, site)
	}
	sort.Strings(names)
	return names
}
