// Package models holds the static catalog of selectable chat models and the
// name normalization used to look them up.
package models

import (
	"chat-oracle/internal/entity"
	"regexp"
	"slices"
	"strings"
)

const legacySubmenu = `[data-testid="model-switcher-legacy-models-submenu"], [role="menuitem"]:has-text("Legacy models")`

var catalog = map[string]entity.ModelDefinition{
	"gpt-5": {
		Key:            "gpt-5",
		DisplayName:    "GPT-5 Auto",
		VerifyTokens:   []string{"auto"},
		TargetIDs:      []string{"model-switcher-gpt-5", "model-switcher-gpt-5-auto"},
		FallbackLabels: []string{"Auto", "GPT-5"},
	},
	"gpt-5-instant": {
		Key:            "gpt-5-instant",
		DisplayName:    "GPT-5 Instant",
		VerifyTokens:   []string{"instant"},
		TargetIDs:      []string{"model-switcher-gpt-5-instant"},
		FallbackLabels: []string{"Instant"},
	},
	"gpt-5-thinking": {
		Key:            "gpt-5-thinking",
		DisplayName:    "GPT-5 Thinking",
		VerifyTokens:   []string{"thinking"},
		TargetIDs:      []string{"model-switcher-gpt-5-thinking"},
		FallbackLabels: []string{"Thinking"},
	},
	"gpt-5-pro": {
		Key:            "gpt-5-pro",
		DisplayName:    "GPT-5 Pro",
		VerifyTokens:   []string{"5 pro", "5-pro"},
		TargetIDs:      []string{"model-switcher-gpt-5-pro"},
		FallbackLabels: []string{"Pro", "GPT-5 Pro"},
	},
	"gpt-4o": {
		Key:            "gpt-4o",
		DisplayName:    "GPT-4o",
		VerifyTokens:   []string{"4o"},
		TargetIDs:      []string{"model-switcher-gpt-4o"},
		FallbackLabels: []string{"GPT-4o"},
		Preconditions: []entity.PreconditionStep{
			{Name: "open legacy models submenu", Selector: legacySubmenu},
		},
	},
	"gpt-4.1": {
		Key:            "gpt-4.1",
		DisplayName:    "GPT-4.1",
		VerifyTokens:   []string{"4.1"},
		TargetIDs:      []string{"model-switcher-gpt-4-1", "model-switcher-gpt-4.1"},
		FallbackLabels: []string{"GPT-4.1"},
		Preconditions: []entity.PreconditionStep{
			{Name: "open legacy models submenu", Selector: legacySubmenu},
		},
	},
	"o3": {
		Key:            "o3",
		DisplayName:    "o3",
		VerifyTokens:   []string{"o3"},
		ExcludeTokens:  []string{"pro"},
		TargetIDs:      []string{"model-switcher-o3"},
		FallbackLabels: []string{"o3"},
		Preconditions: []entity.PreconditionStep{
			{Name: "open legacy models submenu", Selector: legacySubmenu},
		},
	},
	"o3-pro": {
		Key:            "o3-pro",
		DisplayName:    "o3-pro",
		VerifyTokens:   []string{"o3-pro", "o3 pro"},
		TargetIDs:      []string{"model-switcher-o3-pro"},
		FallbackLabels: []string{"o3-pro"},
		Preconditions: []entity.PreconditionStep{
			{Name: "open legacy models submenu", Selector: legacySubmenu},
		},
	},
}

// aliases maps normalized spellings to catalog keys.
var aliases = map[string]string{
	"5":             "gpt-5",
	"gpt5":          "gpt-5",
	"auto":          "gpt-5",
	"gpt-5-auto":    "gpt-5",
	"chatgpt-5":     "gpt-5",
	"instant":       "gpt-5-instant",
	"gpt5-instant":  "gpt-5-instant",
	"thinking":      "gpt-5-thinking",
	"gpt5-thinking": "gpt-5-thinking",
	"pro":           "gpt-5-pro",
	"5-pro":         "gpt-5-pro",
	"gpt5-pro":      "gpt-5-pro",
	"4o":            "gpt-4o",
	"gpt4o":         "gpt-4o",
	"4.1":           "gpt-4.1",
	"gpt4.1":        "gpt-4.1",
	"gpt-4-1":       "gpt-4.1",
	"o3pro":         "o3-pro",
}

// slowFamilies are name segments of models whose answers can take tens of
// minutes.
var slowFamilies = []string{"pro", "deep-research"}

var separators = regexp.MustCompile(`[\s_\-]+`)

// Normalize trims, lowercases and collapses whitespace, underscores and dashes
// into single dashes.
func Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = separators.ReplaceAllString(n, "-")

	return strings.Trim(n, "-")
}

// Resolve maps a user-supplied model name to its catalog entry.
func Resolve(name string) (entity.ModelDefinition, bool) {
	n := Normalize(name)
	if n == "" {
		return entity.ModelDefinition{}, false
	}

	if key, ok := aliases[n]; ok {
		n = key
	}

	def, ok := catalog[n]

	return def, ok
}

// Keys lists the canonical catalog keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(catalog))
	for k := range catalog {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}

// IsSelected reports whether the picker label names def: it must contain one
// of def's verification tokens and none of its exclusions.
func IsSelected(label string, def entity.ModelDefinition) bool {
	l := strings.ToLower(label)
	if strings.TrimSpace(l) == "" {
		return false
	}

	for _, token := range def.ExcludeTokens {
		if token != "" && strings.Contains(l, strings.ToLower(token)) {
			return false
		}
	}

	for _, token := range def.VerifyTokens {
		if token != "" && strings.Contains(l, strings.ToLower(token)) {
			return true
		}
	}

	return false
}

// IsLongRunning reports whether name belongs to a slow-generation family.
func IsLongRunning(name string) bool {
	n := Normalize(name)
	if key, ok := aliases[n]; ok {
		n = key
	}

	for _, family := range slowFamilies {
		if n == family || strings.HasPrefix(n, family+"-") ||
			strings.HasSuffix(n, "-"+family) || strings.Contains(n, "-"+family+"-") {
			return true
		}
	}

	return false
}
