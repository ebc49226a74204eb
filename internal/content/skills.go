package content

import (
	"strings"

	"github.com/characterforge/compendium/internal/etl"
	"github.com/characterforge/compendium/internal/markup"
	"github.com/characterforge/compendium/internal/source"
)

func skillSpec() *etl.EntitySpec {
	return &etl.EntitySpec{
		Kind:        "skills",
		Collections: []source.Collection{SkillCollection},
		KeyFields:   []string{"name"},
		Required:    []string{"name", "associated_ability", "description"},
		Rules:       map[string]string{"associated_ability": abilityRule},
		Transform:   transformSkill,
	}
}

func transformSkill(item source.Item, notes *etl.Notes) ([]etl.Entity, error) {
	rec := item.Record
	name := strings.TrimSpace(rec.String("name"))

	// Unknown codes are kept upper-cased and rejected by validation.
	raw := rec.String("ability")
	code, ok := ability(raw)
	if !ok {
		code = strings.ToUpper(raw)
	}

	return []etl.Entity{{
		"name":               name,
		"associated_ability": code,
		"description":        orDefault(markup.Assemble(rec["entries"]), "Make a "+name+" check."),
	}}, nil
}
