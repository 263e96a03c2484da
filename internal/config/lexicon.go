package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

// LoadLexicon overlays the YAML file at path onto base. Only keys present in
// the file replace the base vocabulary; an empty path returns base.
func LoadLexicon(path string, base domain.Lexicon) (domain.Lexicon, error) {
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Lexicon{}, fmt.Errorf("read lexicon: %w", err)
	}

	out := base
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return domain.Lexicon{}, domain.WrapError(domain.ErrInvalidInput, "parse lexicon", err)
	}
	if err := validateLexicon(out); err != nil {
		return domain.Lexicon{}, domain.WrapError(domain.ErrInvalidInput, "validate lexicon", err)
	}
	return normalizeLexicon(out), nil
}

func validateLexicon(l domain.Lexicon) error {
	switch {
	case len(l.WatchList) == 0:
		return fmt.Errorf("watch_list is empty")
	case l.PowerUserThreshold <= 0:
		return fmt.Errorf("power_user_threshold must be positive")
	case l.WhatMovedMaxWords <= 0 || l.PowerUserNewsMaxWords <= 0:
		return fmt.Errorf("word limits must be positive")
	}
	return nil
}

// normalizeLexicon lower-cases match terms and upper-cases tickers so YAML
// authors do not have to.
func normalizeLexicon(l domain.Lexicon) domain.Lexicon {
	jargon := make(map[string][]string, len(l.TechnicalJargon))
	for group, terms := range l.TechnicalJargon {
		jargon[group] = lowerAll(terms)
	}
	l.TechnicalJargon = jargon
	l.DepthRequests = lowerAll(l.DepthRequests)
	l.DepthNewsTerms = lowerAll(l.DepthNewsTerms)
	l.DissatisfactionMarkers = lowerAll(l.DissatisfactionMarkers)
	l.NewsLeaningTerms = lowerAll(l.NewsLeaningTerms)
	l.AnalyticalVerbs = lowerAll(l.AnalyticalVerbs)
	l.WhatMovedPhrases = lowerAll(l.WhatMovedPhrases)
	l.FollowupIndicators = lowerAll(l.FollowupIndicators)
	l.PowerUserNewsTerms = lowerAll(l.PowerUserNewsTerms)

	tickers := make([]string, len(l.WatchList))
	for i, t := range l.WatchList {
		tickers[i] = strings.ToUpper(strings.TrimSpace(t))
	}
	l.WatchList = tickers
	return l
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
