package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobharbor/internal/config"
	"jobharbor/pkg/utils"
)

type nopGate struct{}

func (nopGate) Acquire(ctx context.Context, site string) error { return nil }

type nopMatcher struct{}

func (nopMatcher) Match(text string) []string { return nil }

func registryConfig(siteNames ...string) *config.Config {
	cfg := &config.Config{}
	cfg.Sites = make(map[string]config.SiteConfig, len(siteNames))
	for _, name := range siteNames {
		cfg.Sites[name] = config.SiteConfig{
			Keywords:          "engineer",
			RunInterval:       config.Duration(30 * time.Minute),
			MaxCallsPerWindow: 5,
			WindowDuration:    config.Duration(time.Minute),
			MaxAttempts:       3,
			FetchTimeout:      config.Duration(10 * time.Second),
		}
	}
	return cfg
}

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(registryConfig("linkedin", "indeed", "remoteok"), nopGate{}, nopMatcher{})
	require.NoError(t, err)

	assert.Equal(t, []string{"indeed", "linkedin", "remoteok"}, reg.Sites())

	for _, site := range reg.Sites() {
		extractor, err := reg.Get(site)
		require.NoError(t, err)
		assert.Equal(t, site, extractor.Site())
	}
}

func TestNewRegistryUnknownSite(t *testing.T) {
	_, err := NewRegistry(registryConfig("linkedin", "monster"), nopGate{}, nopMatcher{})
	require.Error(t, err)

	var ce *utils.ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestRegistryGetUnregistered(t *testing.T) {
	reg, err := NewRegistry(registryConfig("linkedin"), nopGate{}, nopMatcher{})
	require.NoError(t, err)

	_, err = reg.Get("indeed")
	assert.Error(t, err)
}
