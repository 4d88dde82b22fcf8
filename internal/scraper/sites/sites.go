// Package sites holds the per-site extractor implementations. Each site
// shares the fetch/parse/extract-skills contract but owns its own URL
// construction and markup knowledge.
package sites

import (
	"time"
)

// Site names as they appear in configuration and on postings.
const (
	SiteLinkedIn = "linkedin"
	SiteIndeed   = "indeed"
	SiteRemoteOK = "remoteok"
)

// Options carries per-site settings shared by all extractors.
type Options struct {
	// BaseURL overrides the site's default endpoint. Tests point this at
	// a local server.
	BaseURL string

	// Timeout bounds a single fetch; a timeout is a FetchError.
	Timeout time.Duration
}

func (o Options) baseURLOr(def string) string {
	if o.BaseURL != "" {
		return o.BaseURL
	}
	return def
}
