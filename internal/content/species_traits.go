package content

import (
	"strings"

	"github.com/characterforge/compendium/internal/etl"
	"github.com/characterforge/compendium/internal/markup"
	"github.com/characterforge/compendium/internal/source"
)

// Entries of a race record that restate species fields rather than traits.
var nonTraitEntries = map[string]bool{"Age": true, "Size": true, "Languages": true}

var abilityNames = []string{"Strength", "Dexterity", "Constitution", "Intelligence", "Wisdom", "Charisma"}

func speciesTraitSpec() *etl.EntitySpec {
	return &etl.EntitySpec{
		Kind:        "species_traits",
		Collections: []source.Collection{RaceCollection, SubraceCollection},
		KeyFields:   []string{"species_name", "name"},
		Required:    []string{"species_name", "name", "trait_type"},
		Rules:       map[string]string{"trait_type": "oneof=resistance immunity proficiency ability racial"},
		Transform:   transformSpeciesTraits,
	}
}

// transformSpeciesTraits emits one trait per named entry of a race or
// subrace record.
func transformSpeciesTraits(item source.Item, notes *etl.Notes) ([]etl.Entity, error) {
	rec := item.Record
	species := strings.TrimSpace(rec.String("name"))
	if item.Collection == SubraceCollection.Name {
		species, _ = subraceName(rec)
	}
	if species == "" {
		return nil, nil
	}

	var out []etl.Entity
	for _, e := range rec.Slice("entries") {
		entry := source.AsRecord(e)
		name := strings.TrimSpace(markup.Strip(entry.String("name")))
		if name == "" || nonTraitEntries[name] {
			continue
		}
		description := markup.Assemble(entry["entries"])
		out = append(out, etl.Entity{
			"species_name": species,
			"name":         name,
			"description":  nilIfBlank(description),
			"trait_type":   traitType(name, description, notes),
		})
	}
	return out, nil
}

func traitType(name, description string, notes *etl.Notes) string {
	text := strings.ToLower(name + " " + description)
	var kind string
	switch {
	case strings.Contains(text, "resistance"):
		kind = "resistance"
	case strings.Contains(text, "immun"):
		kind = "immunity"
	case strings.Contains(text, "proficien"):
		kind = "proficiency"
	default:
		for _, a := range abilityNames {
			if strings.Contains(name, a) || strings.Contains(name, "Ability Score") {
				kind = "ability"
				break
			}
		}
	}
	if kind == "" {
		return "racial"
	}
	notes.Derived("trait_type", kind, "the trait text")
	return kind
}
