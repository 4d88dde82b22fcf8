package pipeline

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"jobharbor/pkg/models"
)

// FingerprintScope controls whether identical content on different sites
// collapses to the same fingerprint.
type FingerprintScope string

const (
	ScopeCrossSite FingerprintScope = "cross-site"
	ScopePerSite   FingerprintScope = "per-site"
)

// Normalizer maps heterogeneous per-site fields into the canonical posting
// schema and computes the content fingerprint.
type Normalizer struct {
	matcher *SkillMatcher
	scope   FingerprintScope
}

// NewNormalizer creates a normalizer with the given skill matcher and
// fingerprint scope.
func NewNormalizer(matcher *SkillMatcher, scope FingerprintScope) *Normalizer {
	if scope == "" {
		scope = ScopeCrossSite
	}
	return &Normalizer{matcher: matcher, scope: scope}
}

// Normalize converts a raw posting into the canonical record. It is pure:
// equal input always yields an equal posting (timestamps aside).
func (n *Normalizer) Normalize(raw models.RawPosting) models.Posting {
	title := collapseWhitespace(raw.Title)
	company := collapseWhitespace(raw.CompanyName)
	location := canonicalLocation(raw.Location)
	description := collapseWhitespace(raw.Description)

	salt := ""
	if n.scope == ScopePerSite {
		salt = raw.SourceSite
	}

	// Extractors that pre-match skills (or carry site-native tags) win over
	// a second vocabulary pass here.
	skills := raw.Skills
	if len(skills) == 0 {
		skills = n.matcher.Match(description)
	}

	now := time.Now()
	return models.Posting{
		SourceSite:      raw.SourceSite,
		SourceID:        raw.SourceID,
		Title:           title,
		CompanyName:     company,
		Location:        location,
		DescriptionText: description,
		Skills:          skills,
		PostedAt:        raw.PostedAt,
		URL:             raw.URL,
		Fingerprint:     Fingerprint(title, company, location, description, salt),
		ExperienceLevel: detectExperienceLevel(title),
		JobType:         detectJobType(title),
		FirstSeenAt:     now,
		LastSeenAt:      now,
	}
}

// Fingerprint computes a stable content hash over the normalized tuple.
// Case and whitespace differences never change the fingerprint; content
// differences always do (up to hash collisions).
func Fingerprint(title, company, location, description, salt string) string {
	h := xxhash.New()
	for _, field := range []string{salt, title, company, location, description} {
		h.WriteString(strings.ToLower(collapseWhitespace(field)))
		h.Write([]byte{0x1f})
	}

	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}

// collapseWhitespace trims and folds runs of whitespace into single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// canonicalLocation extracts "City, Region" best-effort, falling back to the
// raw string when the format is unrecognized.
func canonicalLocation(loc string) string {
	loc = collapseWhitespace(loc)
	if loc == "" {
		return ""
	}

	parts := strings.Split(loc, ",")
	if len(parts) < 2 {
		return loc
	}

	city := strings.TrimSpace(parts[0])
	region := strings.TrimSpace(parts[1])
	if city == "" || region == "" {
		return loc
	}
	return city + ", " + region
}

// detectExperienceLevel infers seniority from the job title.
func detectExperienceLevel(title string) string {
	t := strings.ToLower(title)

	switch {
	case containsAny(t, "senior", "sr.", "lead", "principal", "staff"):
		return "Senior"
	case containsAny(t, "junior", "jr.", "entry", "associate", "intern"):
		return "Entry Level"
	default:
		return "Mid Level"
	}
}

// detectJobType infers the employment type from the job title.
func detectJobType(title string) string {
	t := strings.ToLower(title)

	switch {
	case containsAny(t, "intern", "internship"):
		return "Internship"
	case containsAny(t, "contract", "contractor", "freelance", "temporary"):
		return "Contract"
	case containsAny(t, "part-time", "part time"):
		return "Part-time"
	default:
		return "Full-time"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
