package pipeline

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"gopkg.in/yaml.v3"

	"jobharbor/internal/logging"
)

// Vocabulary maps a canonical skill name to its surface-form synonyms.
type Vocabulary map[string][]string

type skillPattern struct {
	canonical string
	re        *regexp.Regexp
}

// SkillMatcher matches a skill vocabulary against free-text descriptions.
// Matching is case-insensitive and whole-word; multi-word surface forms match
// as word-bounded phrases. The vocabulary file can be reloaded at runtime
// without restarting the pipeline.
type SkillMatcher struct {
	mu       sync.RWMutex
	path     string
	modTime  time.Time
	patterns []skillPattern
	logger   logging.Logger
}

// NewSkillMatcher loads the vocabulary from the given YAML file.
func NewSkillMatcher(path string) (*SkillMatcher, error) {
	m := &SkillMatcher{
		path:   path,
		logger: logging.GetGlobalLogger().WithField("component", "skill_matcher"),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewSkillMatcherFromVocabulary builds a matcher directly from a vocabulary,
// bypassing the file. Used by tests and embedded defaults.
func NewSkillMatcherFromVocabulary(vocab Vocabulary) (*SkillMatcher, error) {
	m := &SkillMatcher{
		logger: logging.GetGlobalLogger().WithField("component", "skill_matcher"),
	}
	patterns, err := compileVocabulary(vocab)
	if err != nil {
		return nil, err
	}
	m.patterns = patterns
	return m, nil
}

// Match returns the set of canonical skill names found in text, sorted.
func (m *SkillMatcher) Match(text string) []string {
	if text == "" {
		return nil
	}

	m.mu.RLock()
	patterns := m.patterns
	m.mu.RUnlock()

	found := mapset.NewThreadUnsafeSet[string]()
	for _, p := range patterns {
		if p.re.MatchString(text) {
			found.Add(p.canonical)
		}
	}

	if found.Cardinality() == 0 {
		return nil
	}

	skills := found.ToSlice()
	sort.Strings(skills)
	return skills
}

// Reload re-reads the vocabulary file if it changed since the last load.
func (m *SkillMatcher) Reload() error {
	if m.path == "" {
		return nil
	}

	info, err := os.Stat(m.path)
	if err != nil {
		return fmt.Errorf("stat vocabulary: %w", err)
	}

	m.mu.RLock()
	unchanged := !info.ModTime().After(m.modTime)
	m.mu.RUnlock()
	if unchanged {
		return nil
	}

	if err := m.load(); err != nil {
		return err
	}

	m.logger.Info("skill vocabulary reloaded", map[string]interface{}{
		"path": m.path,
	})
	return nil
}

func (m *SkillMatcher) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("read vocabulary %s: %w", m.path, err)
	}

	var vocab Vocabulary
	if err := yaml.Unmarshal(data, &vocab); err != nil {
		return fmt.Errorf("parse vocabulary %s: %w", m.path, err)
	}

	patterns, err := compileVocabulary(vocab)
	if err != nil {
		return err
	}

	info, err := os.Stat(m.path)
	if err != nil {
		return fmt.Errorf("stat vocabulary: %w", err)
	}

	m.mu.Lock()
	m.patterns = patterns
	m.modTime = info.ModTime()
	m.mu.Unlock()
	return nil
}

func compileVocabulary(vocab Vocabulary) ([]skillPattern, error) {
	patterns := make([]skillPattern, 0, len(vocab))

	for canonical, forms := range vocab {
		all := append([]string{canonical}, forms...)

		quoted := make([]string, 0, len(all))
		for _, form := range all {
			form = strings.TrimSpace(form)
			if form == "" {
				continue
			}
			quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(form)))
		}
		if len(quoted) == 0 {
			continue
		}

		// Token characters include + and # so "c++" and "c#" stay whole words.
		expr := `(?i)(?:^|[^a-z0-9+#])(?:` + strings.Join(quoted, "|") + `)(?:$|[^a-z0-9+#])`
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile pattern for skill %q: %w", canonical, err)
		}

		patterns = append(patterns, skillPattern{canonical: canonical, re: re})
	}

	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].canonical < patterns[j].canonical
	})
	return patterns, nil
}
