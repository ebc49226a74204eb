package content

import (
	"strings"

	"github.com/characterforge/compendium/internal/etl"
	"github.com/characterforge/compendium/internal/markup"
	"github.com/characterforge/compendium/internal/source"
)

func classFeatureSpec() *etl.EntitySpec {
	return &etl.EntitySpec{
		Kind:        "class_features",
		Collections: []source.Collection{ClassFeatureCollection},
		KeyFields:   []string{"class_name", "name", "level"},
		Required:    []string{"class_name", "name", "level", "feature_type"},
		Rules: map[string]string{
			"level":        "min=1,max=20",
			"feature_type": "oneof=asi spell invocation maneuver feature",
		},
		Transform: transformClassFeature,
	}
}

func transformClassFeature(item source.Item, notes *etl.Notes) ([]etl.Entity, error) {
	rec := item.Record
	name := strings.TrimSpace(rec.String("name"))

	level, ok := rec.Int("level")
	if !ok {
		return nil, etl.Transformf("level", "missing or not a number: %v", rec["level"])
	}

	return []etl.Entity{{
		"class_name":   strings.TrimSpace(rec.String("className")),
		"name":         name,
		"level":        level,
		"description":  nilIfBlank(markup.Assemble(rec["entries"])),
		"feature_type": featureType(name, notes),
	}}, nil
}

func featureType(name string, notes *etl.Notes) string {
	lower := strings.ToLower(name)
	var kind string
	switch {
	case strings.Contains(lower, "ability score"):
		kind = "asi"
	case strings.Contains(lower, "spellcasting"):
		kind = "spell"
	case strings.Contains(lower, "invocation"):
		kind = "invocation"
	case strings.Contains(lower, "maneuver"), strings.Contains(lower, "fighting style"):
		kind = "maneuver"
	default:
		return "feature"
	}
	notes.Derived("feature_type", kind, "the feature name")
	return kind
}
