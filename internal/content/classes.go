package content

import (
	"strings"

	"github.com/characterforge/compendium/internal/etl"
	"github.com/characterforge/compendium/internal/markup"
	"github.com/characterforge/compendium/internal/source"
)

func classSpec() *etl.EntitySpec {
	return &etl.EntitySpec{
		Kind:        "classes",
		Collections: []source.Collection{ClassCollection},
		KeyFields:   []string{"name"},
		Required:    []string{"name", "primary_ability", "hit_die", "difficulty", "description"},
		Rules: map[string]string{
			"primary_ability":         abilityRule,
			"hit_die":                 "oneof=6 8 10 12",
			"difficulty":              "oneof=easy moderate hard",
			"skill_proficiency_count": "min=0,max=18",
		},
		Transform: transformClass,
	}
}

func transformClass(item source.Item, notes *etl.Notes) ([]etl.Entity, error) {
	rec := item.Record
	name := strings.TrimSpace(rec.String("name"))

	hitDie, ok := rec.Map("hd").Int("faces")
	if !ok {
		hitDie = 8
	}

	var saves []string
	for _, s := range rec.Strings("proficiency") {
		if c, ok := ability(s); ok {
			saves = append(saves, c)
		}
	}

	starting := rec.Map("startingProficiencies")
	count, choices := classSkillChoice(starting.Slice("skills"))

	return []etl.Entity{{
		"name":                       name,
		"description":                orDefault(markup.Assemble(rec["entries"]), "Masters of "+strings.ToLower(name)+" arts."),
		"primary_ability":            classPrimary(name, rec["primaryAbility"], notes),
		"hit_die":                    hitDie,
		"difficulty":                 classDifficultyOf(name, notes),
		"armor_proficiencies":        nilIfEmpty(plainStrings(starting["armor"])),
		"weapon_proficiencies":       nilIfEmpty(plainStrings(starting["weapons"])),
		"saving_throw_proficiencies": nilIfEmpty(saves),
		"skill_proficiency_count":    count,
		"skill_proficiency_choices":  nilIfEmpty(choices),
	}}, nil
}

// classPrimary reads primaryAbility, a list of {"str": true} objects or a
// plain code, and falls back to the class name table.
func classPrimary(name string, v any, notes *etl.Notes) string {
	switch x := v.(type) {
	case string:
		if c, ok := ability(x); ok {
			return c
		}
	case []any:
		for _, item := range x {
			rec := source.AsRecord(item)
			for _, k := range abilityOrder {
				if rec.Bool(k) {
					return abilityCodes[k]
				}
			}
		}
	}
	if c, ok := classPrimaryAbility[name]; ok {
		notes.Derived("primary_ability", c, "the class name")
		return c
	}
	notes.Fallback("primary_ability", v, "STR")
	return "STR"
}

func classDifficultyOf(name string, notes *etl.Notes) string {
	d, ok := classDifficulty[name]
	if !ok {
		d = "moderate"
	}
	notes.Derived("difficulty", d, "the class name")
	return d
}

// classSkillChoice reads the first skill entry: {"choose": {"from": [...],
// "count": n}} or {"any": n}.
func classSkillChoice(skills []any) (int, []string) {
	if len(skills) == 0 {
		return 0, nil
	}
	rec := source.AsRecord(skills[0])
	if n, ok := rec.Int("any"); ok {
		return n, nil
	}
	choose := rec.Map("choose")
	if choose == nil {
		names := proficiencyNames(rec)
		return len(names), names
	}
	count, ok := choose.Int("count")
	if !ok {
		count = 2
	}
	var from []string
	for _, s := range choose.Strings("from") {
		from = append(from, title(refName(s)))
	}
	return count, from
}
