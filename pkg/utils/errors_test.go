package utils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"fetch error", NewFetchError("linkedin", "https://x", errors.New("reset")), true},
		{"http fetch error", NewHTTPFetchError("linkedin", "https://x", 429), true},
		{"sink error", NewSinkError("linkedin:1", errors.New("disk full")), true},
		{"parse error", NewParseError("linkedin", "no cards"), false},
		{"config error", NewConfigError("bad"), false},
		{"wrapped fetch error", fmt.Errorf("run: %w", NewFetchError("x", "u", errors.New("eof"))), true},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsParseError(t *testing.T) {
	assert.True(t, IsParseError(NewParseError("indeed", "container missing")))
	assert.True(t, IsParseError(fmt.Errorf("run: %w", NewParseError("indeed", "x"))))
	assert.False(t, IsParseError(NewFetchError("indeed", "u", errors.New("eof"))))
}

func TestErrorMessages(t *testing.T) {
	assert.Contains(t, NewHTTPFetchError("linkedin", "https://x", 429).Error(), "429")
	assert.Contains(t, NewParseError("indeed", "container missing").Error(), "container missing")
	assert.Contains(t, NewSinkError("linkedin:1", errors.New("locked")).Error(), "linkedin:1")
	assert.Contains(t, NewConfigError("unknown site").Error(), "unknown site")
}
