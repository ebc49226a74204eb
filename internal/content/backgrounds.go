package content

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/characterforge/compendium/internal/etl"
	"github.com/characterforge/compendium/internal/markup"
	"github.com/characterforge/compendium/internal/source"
)

var goldAmount = regexp.MustCompile(`(?i)(\d+)\s*(?:gp|gold)`)

func backgroundSpec() *etl.EntitySpec {
	return &etl.EntitySpec{
		Kind:        "backgrounds",
		Collections: []source.Collection{BackgroundCollection},
		KeyFields:   []string{"name"},
		Required:    []string{"name", "description"},
		Rules:       map[string]string{"starting_gold": "min=0"},
		Transform:   transformBackground,
	}
}

func transformBackground(item source.Item, notes *etl.Notes) ([]etl.Entity, error) {
	rec := item.Record
	name := strings.TrimSpace(rec.String("name"))

	skills, skillNames := proficiencyList(rec.Slice("skillProficiencies"), "skill")
	tools, _ := proficiencyList(rec.Slice("toolProficiencies"), "tool")
	languages, _ := proficiencyList(rec.Slice("languageProficiencies"), "language")
	equipment, gold := startingEquipment(rec.Slice("startingEquipment"))

	return []etl.Entity{{
		"name":                name,
		"description":         orDefault(backgroundDescription(rec.Slice("entries")), "Those with the "+name+" background."),
		"skill_proficiencies": nilIfEmpty(skills),
		"skill_names":         nilIfEmpty(skillNames),
		"tool_proficiencies":  nilIfEmpty(tools),
		"languages":           nilIfEmpty(languages),
		"equipment_options":   nilIfEmpty(equipment),
		"starting_gold":       startingGold(gold, rec, notes),
		"origin_feat_name":    nilIfBlank(originFeat(rec.Slice("feats"))),
	}}, nil
}

// proficiencyList renders proficiency objects as readable lines and returns
// the concrete names separately:
//
//	{"insight": true}                          -> "Insight"
//	{"any": 2}                                 -> "Any 2 skills"
//	{"anyStandard": 1}                         -> "Any 1 standard language"
//	{"choose": {"from": [...], "count": 2}}    -> "Choose 2 from: A, B"
func proficiencyList(list []any, noun string) (lines, names []string) {
	for _, p := range list {
		rec := source.AsRecord(p)
		if rec == nil {
			continue
		}
		concrete := proficiencyNames(rec)
		lines = append(lines, concrete...)
		names = append(names, concrete...)

		for _, k := range sortedKeys(rec) {
			n, ok := rec.Int(k)
			if !ok {
				continue
			}
			switch {
			case k == "any":
				lines = append(lines, fmt.Sprintf("Any %d %s", n, plural(noun, n)))
			case strings.HasPrefix(k, "any"):
				phrase := words(strings.TrimPrefix(k, "any"))
				if strings.HasSuffix(phrase, noun) {
					phrase = strings.TrimSuffix(phrase, noun)
				} else {
					phrase += " "
				}
				lines = append(lines, fmt.Sprintf("Any %d %s%s", n, phrase, plural(noun, n)))
			}
		}
		if choose := rec.Map("choose"); choose != nil {
			count, ok := choose.Int("count")
			if !ok {
				count = 1
			}
			var from []string
			for _, s := range choose.Strings("from") {
				from = append(from, title(refName(s)))
			}
			lines = append(lines, fmt.Sprintf("Choose %d from: %s", count, strings.Join(from, ", ")))
		}
	}
	return lines, names
}

func plural(noun string, n int) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}

// startingEquipment renders each equipment group as one option line. Groups
// are keyed "_" (always granted) or "a", "b", ... (alternatives). A {value}
// entry is a purse in copper and is returned as gold.
func startingEquipment(groups []any) ([]string, float64) {
	var (
		out  []string
		gold float64
	)
	for _, g := range groups {
		group := source.AsRecord(g)
		for _, key := range sortedKeys(group) {
			var parts []string
			items, _ := group[key].([]any)
			for _, it := range items {
				text, value := equipmentItem(it)
				if value > 0 && (key == "_" || key == "a") {
					gold += value
				}
				if text != "" {
					parts = append(parts, text)
				}
			}
			if len(parts) == 0 {
				continue
			}
			line := strings.Join(parts, ", ")
			if key != "_" {
				line = "(" + key + ") " + line
			}
			out = append(out, line)
		}
	}
	return out, gold
}

func equipmentItem(v any) (string, float64) {
	switch x := v.(type) {
	case string:
		return title(refName(x)), 0
	case map[string]any:
		rec := source.Record(x)
		if copper, ok := rec.Float("value"); ok {
			gp := copper / 100
			return strconv.FormatFloat(gp, 'f', -1, 64) + " gp", gp
		}
		name := refName(rec.String("item"))
		if name == "" {
			name = markup.Strip(rec.String("special"))
		}
		if name == "" {
			name = markup.Strip(rec.String("displayName"))
		}
		if name == "" {
			if t := rec.String("equipmentType"); t != "" {
				name = "any " + t
			}
		}
		if name == "" {
			return "", 0
		}
		if n, ok := rec.Int("quantity"); ok && n > 1 {
			return fmt.Sprintf("%s (%d)", title(name), n), 0
		}
		return title(name), 0
	}
	return "", 0
}

// startingGold prefers an explicit startingGold field, then the equipment
// purse, then an "N gp" mention in the entries.
func startingGold(purse float64, rec source.Record, notes *etl.Notes) float64 {
	if g, ok := rec.Float("startingGold"); ok {
		return g
	}
	if purse > 0 {
		return purse
	}
	if m := goldAmount.FindStringSubmatch(markup.Assemble(rec["entries"])); m != nil {
		g, _ := strconv.ParseFloat(m[1], 64)
		notes.Derived("starting_gold", g, "the background text")
		return g
	}
	return 15
}

// originFeat returns the first granted feat, e.g. {"alert|xphb": true} -> "Alert".
func originFeat(feats []any) string {
	for _, f := range feats {
		for _, k := range sortedKeys(source.AsRecord(f)) {
			if name := refName(k); name != "" {
				return title(name)
			}
		}
	}
	return ""
}

func backgroundDescription(entries []any) string {
	for _, e := range entries {
		switch x := e.(type) {
		case string:
			return markup.Strip(x)
		case map[string]any:
			if x["type"] == "entries" && x["name"] == nil {
				if s := markup.First(x); s != "" {
					return s
				}
			}
		}
	}
	return ""
}
