package content

import (
	"strings"

	"github.com/characterforge/compendium/internal/etl"
	"github.com/characterforge/compendium/internal/markup"
	"github.com/characterforge/compendium/internal/source"
)

func languageSpec() *etl.EntitySpec {
	return &etl.EntitySpec{
		Kind:        "languages",
		Collections: []source.Collection{LanguageCollection},
		KeyFields:   []string{"name"},
		Required:    []string{"name", "rarity"},
		Rules:       map[string]string{"rarity": "oneof=standard exotic"},
		Transform:   transformLanguage,
	}
}

func transformLanguage(item source.Item, notes *etl.Notes) ([]etl.Entity, error) {
	rec := item.Record
	name := strings.TrimSpace(rec.String("name"))

	return []etl.Entity{{
		"name":             name,
		"rarity":           languageRarity(name, rec.String("type"), notes),
		"script":           languageScript(name, rec, notes),
		"typical_speakers": nilIfBlank(strings.Join(plainStrings(rec["typicalSpeakers"]), ", ")),
		"description":      nilIfBlank(markup.Assemble(rec["entries"])),
	}}, nil
}

func languageRarity(name, kind string, notes *etl.Notes) string {
	switch strings.ToLower(kind) {
	case "standard":
		return "standard"
	case "exotic", "secret", "rare":
		return "exotic"
	}

	rarity := "standard"
	if exoticLanguages[name] {
		rarity = "exotic"
	}
	if kind != "" {
		notes.Fallback("rarity", kind, rarity)
	} else if rarity == "exotic" {
		notes.Derived("rarity", rarity, "the exotic language list")
	}
	return rarity
}

// languageScript returns nil for unwritten languages.
func languageScript(name string, rec source.Record, notes *etl.Notes) any {
	if s := strings.TrimSpace(rec.String("script")); s != "" {
		return s
	}
	script, ok := languageScripts[name]
	if !ok {
		return "Common"
	}
	notes.Derived("script", orDefault(script, "none"), "the language script table")
	return nilIfBlank(script)
}
