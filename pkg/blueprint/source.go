package blueprint

import (
	"context"
	"fmt"
	"strings"
)

// Kind says where a blueprint document comes from.
type Kind string

const (
	// KindSimple always resolves to the CONTENT_CURATION preset.
	KindSimple Kind = "SIMPLE"

	// KindFactory resolves to a named preset.
	KindFactory Kind = "FACTORY"

	// KindCustom resolves to a caller supplied document.
	KindCustom Kind = "CUSTOM"
)

// Source identifies a blueprint document. It is resolved once into a
// Blueprint; no behavior depends on the kind afterwards.
type Source struct {
	Kind      Kind   `json:"algorithm"`
	FactoryID string `json:"factory_id,omitempty"`
	CustomID  string `json:"custom_id,omitempty"`
}

// SourceFor maps an algorithm label to a source. SIMPLE and CUSTOM are taken
// literally; any other label names a factory preset.
func SourceFor(algorithm, customID string) Source {
	switch Kind(strings.ToUpper(algorithm)) {
	case KindSimple:
		return Source{Kind: KindSimple}
	case KindCustom:
		return Source{Kind: KindCustom, CustomID: customID}
	default:
		return Source{Kind: KindFactory, FactoryID: algorithm}
	}
}

// Key is a stable cache key for the source.
func (s Source) Key() string {
	switch s.Kind {
	case KindFactory:
		return string(KindFactory) + ":" + strings.ToUpper(s.FactoryID)
	case KindCustom:
		return string(KindCustom) + ":" + s.CustomID
	default:
		return string(KindSimple)
	}
}

// CustomFetcher loads custom blueprint documents by id.
type CustomFetcher interface {
	Blueprint(ctx context.Context, customID string) (Document, error)
}

// Resolve turns a source into a validated blueprint.
func Resolve(ctx context.Context, src Source, fetcher CustomFetcher) (*Blueprint, error) {
	switch src.Kind {
	case KindSimple, "":
		return Preset(PresetContentCuration)

	case KindFactory:
		if src.FactoryID == "" {
			return nil, ErrMissingFactoryID
		}
		return Preset(src.FactoryID)

	case KindCustom:
		if src.CustomID == "" {
			return nil, ErrMissingCustomID
		}
		if fetcher == nil {
			return nil, fmt.Errorf("no fetcher configured for custom blueprint %q", src.CustomID)
		}
		doc, err := fetcher.Blueprint(ctx, src.CustomID)
		if err != nil {
			return nil, fmt.Errorf("fetching custom blueprint %q: %w", src.CustomID, err)
		}
		return doc.Build()

	default:
		return nil, fmt.Errorf("unknown blueprint source kind %q", src.Kind)
	}
}
