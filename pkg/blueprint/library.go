package blueprint

import (
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed presets/*.json
var presetFS embed.FS

// Preset identifiers accepted as factory ids.
const (
	PresetUniqueJourneys  = "UNIQUE_JOURNEYS"
	PresetContentCuration = "CONTENT_CURATION"
	PresetAIAgents        = "AI_AGENTS"
	PresetRecommendations = "RECOMMENDATIONS"
	PresetNavigation      = "NAVIGATION"
)

// PresetInfo describes a built-in blueprint.
type PresetInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	file        string
}

var presets = map[string]PresetInfo{
	PresetUniqueJourneys: {
		ID:          PresetUniqueJourneys,
		DisplayName: "UNIQUE_JOURNEYS",
		file:        "presets/unique_journeys.json",
	},
	PresetContentCuration: {
		ID:          PresetContentCuration,
		DisplayName: "USER_CENTRIC_PROMOTED_CONTENT_CURATIONS",
		file:        "presets/content_curation.json",
	},
	PresetAIAgents: {
		ID:          PresetAIAgents,
		DisplayName: "USER_INTENT_AI_AGENTS",
		file:        "presets/ai_agents.json",
	},
	PresetRecommendations: {
		ID:          PresetRecommendations,
		DisplayName: "INDIVIDUALLY_CRAFTED_RECOMMENDATIONS",
		file:        "presets/recommendations.json",
	},
	PresetNavigation: {
		ID:          PresetNavigation,
		DisplayName: "NAVIGABLE_UX",
		file:        "presets/navigation.json",
	},
}

// Presets returns every built-in preset sorted by id.
func Presets() []PresetInfo {
	out := make([]PresetInfo, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// lookupPreset accepts either the id or the display name.
func lookupPreset(name string) (PresetInfo, bool) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if p, ok := presets[key]; ok {
		return p, true
	}
	for _, p := range presets {
		if p.DisplayName == key {
			return p, true
		}
	}
	return PresetInfo{}, false
}

// PresetDocument returns the document of a named preset.
func PresetDocument(name string) (Document, error) {
	info, ok := lookupPreset(name)
	if !ok {
		return Document{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}

	data, err := presetFS.ReadFile(info.file)
	if err != nil {
		return Document{}, fmt.Errorf("reading preset %s: %w", info.ID, err)
	}

	return DecodeJSON(data)
}

// Preset builds a named preset blueprint.
func Preset(name string) (*Blueprint, error) {
	d, err := PresetDocument(name)
	if err != nil {
		return nil, err
	}
	return d.Build()
}
