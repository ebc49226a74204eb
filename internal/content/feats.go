package content

import (
	"fmt"
	"strings"

	"github.com/characterforge/compendium/internal/etl"
	"github.com/characterforge/compendium/internal/markup"
	"github.com/characterforge/compendium/internal/source"
)

var featCategories = map[string]string{
	"G":          "general",
	"O":          "origin",
	"FS":         "fighting_style",
	"EB":         "epic_boon",
	"background": "origin",
	"origin":     "origin",
}

func featSpec() *etl.EntitySpec {
	return &etl.EntitySpec{
		Kind:        "feats",
		Collections: []source.Collection{FeatCollection},
		KeyFields:   []string{"name"},
		Required:    []string{"name", "feat_type", "description"},
		Rules:       map[string]string{"feat_type": "oneof=general origin fighting_style epic_boon"},
		Transform:   transformFeat,
	}
}

func transformFeat(item source.Item, notes *etl.Notes) ([]etl.Entity, error) {
	rec := item.Record
	name := strings.TrimSpace(rec.String("name"))

	prereqs, err := featPrerequisites(rec["prerequisite"])
	if err != nil {
		return nil, err
	}

	return []etl.Entity{{
		"name":                   name,
		"feat_type":              featType(name, rec, notes),
		"description":            orDefault(featDescription(rec.Slice("entries")), "The "+name+" feat."),
		"repeatable":             rec.Bool("repeatable"),
		"prerequisites":          prereqs,
		"ability_score_increase": featAbilityIncrease(rec.Slice("ability")),
		"benefits":               featBenefits(name, rec.Slice("entries")),
	}}, nil
}

func featType(name string, rec source.Record, notes *etl.Notes) string {
	if t, ok := featCategories[rec.String("category")]; ok {
		return t
	}

	lower := strings.ToLower(name)
	for _, style := range fightingStyles {
		if lower == style {
			notes.Derived("feat_type", "fighting_style", "the fighting style list")
			return "fighting_style"
		}
	}
	if strings.Contains(lower, "fighting style") || strings.Contains(lower, "fighting initiate") {
		notes.Derived("feat_type", "fighting_style", "the feat name")
		return "fighting_style"
	}
	for _, ft := range rec.Strings("featureType") {
		if strings.Contains(ft, "BG") {
			notes.Derived("feat_type", "origin", "feature type "+ft)
			return "origin"
		}
	}
	if c := rec.String("category"); c != "" {
		notes.Fallback("feat_type", c, "general")
	}
	return "general"
}

// featPrerequisites merges the alternatives of a prerequisite list into one
// object: ability minimums, level, proficiencies, spellcasting and free text.
func featPrerequisites(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, etl.Transformf("prerequisite", "expected a list, got %T", v)
	}

	out := map[string]any{}
	abilities := map[string]int{}
	var proficiencies, other []string
	for _, p := range list {
		pr := source.AsRecord(p)
		if pr == nil {
			continue
		}
		for _, a := range pr.Slice("ability") {
			for k, score := range source.AsRecord(a) {
				c, ok := ability(k)
				n, isNum := source.AsInt(score)
				if ok && isNum {
					abilities[c] = n
				}
			}
		}
		switch lvl := pr["level"].(type) {
		case map[string]any:
			if n, ok := source.Record(lvl).Int("level"); ok {
				out["level"] = n
			}
		default:
			if n, ok := source.AsInt(lvl); ok {
				out["level"] = n
			}
		}
		for _, prof := range pr.Slice("proficiency") {
			for k, val := range source.AsRecord(prof) {
				if s, ok := val.(string); ok {
					proficiencies = append(proficiencies, strings.TrimSpace(s+" "+k))
				}
			}
		}
		if pr.Bool("spellcasting") || pr.Bool("spellcasting2020") || pr.Bool("spellcastingFeature") {
			out["spellcasting"] = true
		}
		if s := pr.String("other"); s != "" {
			other = append(other, markup.Strip(s))
		}
		for _, r := range pr.Slice("race") {
			if name := source.AsRecord(r).String("name"); name != "" {
				other = append(other, title(name))
			}
		}
	}
	if len(abilities) > 0 {
		out["ability"] = abilities
	}
	if len(proficiencies) > 0 {
		out["proficiency"] = proficiencies
	}
	if len(other) > 0 {
		out["other"] = other
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// featAbilityIncrease normalises each ability entry to either fixed
// increases {"STR": 1} or a choice {"choose": {"from": [...], "count": n,
// "amount": n}}.
func featAbilityIncrease(list []any) any {
	var out []map[string]any
	for _, a := range list {
		rec := source.AsRecord(a)
		if rec == nil {
			continue
		}
		if choose := rec.Map("choose"); choose != nil {
			var from []string
			for _, f := range choose.Strings("from") {
				if c, ok := ability(f); ok {
					from = append(from, c)
				}
			}
			count, ok := choose.Int("count")
			if !ok {
				count = 1
			}
			amount, ok := choose.Int("amount")
			if !ok {
				amount = 1
			}
			out = append(out, map[string]any{"choose": map[string]any{"from": from, "count": count, "amount": amount}})
			continue
		}
		fixed := map[string]any{}
		for _, k := range abilityOrder {
			if n, ok := rec.Int(k); ok {
				fixed[abilityCodes[k]] = n
			}
		}
		if len(fixed) > 0 {
			out = append(out, fixed)
		}
	}
	return nilIfEmpty(out)
}

func featDescription(entries []any) string {
	for _, e := range entries {
		switch x := e.(type) {
		case string:
			return markup.Strip(x)
		case map[string]any:
			if x["type"] != "list" {
				if s := markup.First(x); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

// featBenefits lists the named sub-entries and list items of a feat.
func featBenefits(name string, entries []any) []string {
	var out []string
	collectBenefits(entries, &out)
	if len(out) == 0 {
		return []string{"Grants the benefits of the " + name + " feat."}
	}
	return out
}

func collectBenefits(entries []any, out *[]string) {
	for _, e := range entries {
		rec := source.AsRecord(e)
		if rec == nil {
			continue
		}
		switch {
		case rec.String("type") == "list":
			for _, line := range strings.Split(markup.Assemble(rec), "\n") {
				if line = strings.TrimPrefix(line, "• "); len(line) > 10 {
					*out = append(*out, line)
				}
			}
		case rec.String("name") != "":
			*out = append(*out, fmt.Sprintf("%s: %s", markup.Strip(rec.String("name")), markup.Assemble(rec["entries"])))
		case rec.Has("entries"):
			collectBenefits(rec.Slice("entries"), out)
		}
	}
}
