package models

import (
	"fmt"
	"time"
)

// Posting is the canonical job posting record emitted by the pipeline.
// (SourceSite, SourceID) uniquely identifies the origin record; Fingerprint
// identifies content-equivalence across fetches (and, configurably, across
// sites) and drives deduplication.
type Posting struct {
	SourceSite      string     `json:"source_site" validate:"required"`
	SourceID        string     `json:"source_id" validate:"required"`
	Title           string     `json:"title" validate:"required"`
	CompanyName     string     `json:"company_name"`
	Location        string     `json:"location"`
	DescriptionText string     `json:"description_text"`
	Skills          []string   `json:"skills"`
	PostedAt        *time.Time `json:"posted_at,omitempty"`
	URL             string     `json:"url"`
	Fingerprint     string     `json:"fingerprint"`
	ExperienceLevel string     `json:"experience_level,omitempty"`
	JobType         string     `json:"job_type,omitempty"`
	FirstSeenAt     time.Time  `json:"first_seen_at"`
	LastSeenAt      time.Time  `json:"last_seen_at"`
}

// CanonicalID returns the (source_site, source_id) pair as a single key,
// the identity the Sink upserts on.
func (p *Posting) CanonicalID() string {
	return fmt.Sprintf("%s:%s", p.SourceSite, p.SourceID)
}

// RawPosting is a single entry as extracted from a fetched page, before
// normalization. Optional fields stay empty when the site omits them.
type RawPosting struct {
	SourceSite  string     `json:"source_site"`
	SourceID    string     `json:"source_id"`
	Title       string     `json:"title"`
	CompanyName string     `json:"company_name"`
	Location    string     `json:"location"`
	Description string     `json:"description"`
	Skills      []string   `json:"skills,omitempty"`
	URL         string     `json:"url"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
}

// RawPage is the raw payload of one fetched search page or API response.
type RawPage struct {
	Site      string    `json:"site"`
	URL       string    `json:"url"`
	Body      []byte    `json:"-"`
	FetchedAt time.Time `json:"fetched_at"`
}

// SearchQuery carries the per-site search parameters for one scrape job.
type SearchQuery struct {
	Keywords string `json:"keywords" yaml:"keywords"`
	Location string `json:"location" yaml:"location"`
	Page     int    `json:"page" yaml:"page"`
}
