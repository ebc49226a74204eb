// Package content describes the game content kinds the pipeline imports: their
// source collections, field transforms, enumeration tables and relationships.
// NewRegistry wires all of it into an etl.Registry.
package content

import "github.com/characterforge/compendium/internal/source"

var (
	SkillCollection    = source.Collection{Name: "skill", Pattern: "skills.json", Key: "skill"}
	LanguageCollection = source.Collection{Name: "language", Pattern: "languages.json", Key: "language"}
	RaceCollection     = source.Collection{Name: "race", Pattern: "races.json", Key: "race"}
	SubraceCollection  = source.Collection{Name: "subrace", Pattern: "races.json", Key: "subrace", Optional: true}
	FeatCollection     = source.Collection{Name: "feat", Pattern: "feats.json", Key: "feat"}

	BackgroundCollection   = source.Collection{Name: "background", Pattern: "backgrounds.json", Key: "background"}
	ClassCollection        = source.Collection{Name: "class", Pattern: "class/class-*.json", Key: "class"}
	ClassFeatureCollection = source.Collection{Name: "classFeature", Pattern: "class/class-*.json", Key: "classFeature", Optional: true}
	SubclassCollection     = source.Collection{Name: "subclass", Pattern: "class/class-*.json", Key: "subclass", Optional: true}

	BaseItemCollection = source.Collection{Name: "baseitem", Pattern: "items-base.json", Key: "baseitem"}
	ItemCollection     = source.Collection{Name: "item", Pattern: "items.json", Key: "item"}
	SpellCollection    = source.Collection{
		Name:    "spell",
		Pattern: "spells/spells-*.json",
		Key:     "spell",
		Exclude: []string{"fluff"},
	}
)
