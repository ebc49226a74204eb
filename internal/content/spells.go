package content

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/characterforge/compendium/internal/etl"
	"github.com/characterforge/compendium/internal/markup"
	"github.com/characterforge/compendium/internal/source"
)

func spellSpec() *etl.EntitySpec {
	return &etl.EntitySpec{
		Kind:        "spells",
		Collections: []source.Collection{SpellCollection},
		KeyFields:   []string{"name"},
		Required:    []string{"name", "school", "casting_time", "range", "duration", "description"},
		Rules: map[string]string{
			"spell_level": "min=0,max=9",
			"school":      "oneof=abjuration conjuration divination enchantment evocation illusion necromancy transmutation",
		},
		Transform: transformSpell,
	}
}

func transformSpell(item source.Item, notes *etl.Notes) ([]etl.Entity, error) {
	rec := item.Record

	level, ok := rec.Int("level")
	if !ok {
		return nil, etl.Transformf("level", "missing or not a number: %v", rec["level"])
	}

	components := rec.Map("components")
	duration := firstRecord(rec.Slice("duration"))

	return []etl.Entity{{
		"name":                     strings.TrimSpace(rec.String("name")),
		"spell_level":              level,
		"school":                   spellSchool(rec.String("school"), notes),
		"casting_time":             castingTime(firstRecord(rec.Slice("time")), notes),
		"range":                    spellRange(rec.Map("range"), notes),
		"duration":                 spellDuration(duration, notes),
		"concentration":            duration.Bool("concentration"),
		"ritual":                   rec.Map("meta").Bool("ritual"),
		"components_v":             components.Bool("v"),
		"components_s":             components.Bool("s"),
		"components_m":             components.Has("m") && components["m"] != false,
		"material_components":      nilIfBlank(materialText(components["m"])),
		"description":              markup.Assemble(rec["entries"]),
		"higher_level_description": nilIfBlank(higherLevelText(rec.Slice("entriesHigherLevel"))),
		"class_names":              nilIfEmpty(spellClasses(rec)),
	}}, nil
}

func firstRecord(list []any) source.Record {
	if len(list) == 0 {
		return nil
	}
	return source.AsRecord(list[0])
}

func spellSchool(raw string, notes *etl.Notes) string {
	if s, ok := spellSchools[raw]; ok {
		return s
	}
	notes.Fallback("school", raw, "evocation")
	return "evocation"
}

// amountKey builds the lookup key of a timed value, e.g. "minute/10".
func amountKey(unit string, amount any) string {
	n, ok := source.AsInt(amount)
	if !ok {
		n = 1
	}
	return unit + "/" + strconv.Itoa(n)
}

func castingTime(t source.Record, notes *etl.Notes) string {
	unit := t.String("unit")
	switch unit {
	case "action", "bonus", "reaction":
		return castingTimes[unit]
	}
	key := amountKey(unit, t["number"])
	if ct, ok := castingTimes[key]; ok {
		return ct
	}
	notes.Fallback("casting_time", key, "action")
	return "action"
}

func spellRange(r source.Record, notes *etl.Notes) string {
	switch r.String("type") {
	case "special":
		return "special"
	case "point":
		distance := r.Map("distance")
		kind := distance.String("type")
		key := kind
		if kind == "feet" || kind == "miles" {
			key = amountKey(kind, distance["amount"])
		}
		if v, ok := spellRanges[key]; ok {
			return v
		}
		notes.Fallback("range", key, "special")
		return "special"
	case "radius", "sphere", "cone", "line", "hemisphere", "cube", "emanation":
		return "self"
	}
	notes.Fallback("range", r.String("type"), "special")
	return "special"
}

func spellDuration(d source.Record, notes *etl.Notes) string {
	kind := d.String("type")
	key := kind
	if kind == "timed" {
		inner := d.Map("duration")
		key = amountKey(inner.String("type"), inner["amount"])
	}
	if v, ok := spellDurations[key]; ok {
		return v
	}
	notes.Fallback("duration", key, "instantaneous")
	return "instantaneous"
}

// materialText describes the material component. Costs are in copper.
func materialText(m any) string {
	switch x := m.(type) {
	case nil:
		return ""
	case bool:
		if x {
			return "Material components required"
		}
		return ""
	case string:
		return markup.Strip(x)
	case map[string]any:
		rec := source.Record(x)
		text := markup.Strip(rec.String("text"))
		consumed := rec.Bool("consume") || rec.String("consume") != ""
		if cost, ok := rec.Float("cost"); ok && cost > 0 {
			worth := fmt.Sprintf("worth %s gp", strconv.FormatFloat(cost/100, 'f', -1, 64))
			if consumed {
				worth += ", consumed"
			}
			return text + " (" + worth + ")"
		}
		if consumed {
			return text + " (consumed)"
		}
		return text
	default:
		return "Material components required"
	}
}

func higherLevelText(entries []any) string {
	var parts []string
	for _, e := range entries {
		if s := markup.Assemble(source.AsRecord(e)["entries"]); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// spellClasses lists the classes of classes.fromClassList.
func spellClasses(rec source.Record) []string {
	var out []string
	seen := map[string]bool{}
	entries, _ := rec.Path("classes", "fromClassList").([]any)
	for _, c := range entries {
		name := strings.TrimSpace(source.AsRecord(c).String("name"))
		if name != "" && !seen[strings.ToLower(name)] {
			seen[strings.ToLower(name)] = true
			out = append(out, name)
		}
	}
	return out
}
