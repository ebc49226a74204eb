package content

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/characterforge/compendium/internal/etl"
	"github.com/characterforge/compendium/internal/markup"
	"github.com/characterforge/compendium/internal/source"
)

var (
	digits      = regexp.MustCompile(`\d+`)
	templateVar = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)
)

// Keys of a race record that describe the record itself rather than the
// species, so they are not inherited by versions.
var versionMeta = map[string]bool{
	"name": true, "_versions": true, "_mod": true, "_abstract": true, "_implementations": true,
	"_variables": true, "_copy": true,
}

func speciesSpec() *etl.EntitySpec {
	return &etl.EntitySpec{
		Kind:        "species",
		Collections: []source.Collection{RaceCollection, SubraceCollection},
		KeyFields:   []string{"name"},
		Required:    []string{"name", "size", "speed", "description"},
		Rules: map[string]string{
			"size":             "oneof=T S M L H G",
			"speed":            "min=0",
			"darkvision_range": "min=0",
		},
		Transform: transformSpecies,
	}
}

// transformSpecies collapses a race and its versions into one entity each.
// Subrace records become "Race (Subrace)" entities parented to the race.
func transformSpecies(item source.Item, notes *etl.Notes) ([]etl.Entity, error) {
	rec := item.Record
	if item.Collection == SubraceCollection.Name {
		name, parent := subraceName(rec)
		if name == "" {
			return nil, nil
		}
		return []etl.Entity{speciesEntity(name, parent, rec, notes)}, nil
	}

	base := strings.TrimSpace(rec.String("name"))
	out := []etl.Entity{speciesEntity(base, "", rec, notes)}
	for _, v := range speciesVersions(base, rec) {
		out = append(out, speciesEntity(v.name, base, v.record, notes))
	}
	return out, nil
}

type speciesVersion struct {
	name   string
	record source.Record
}

// speciesVersions expands _versions. An entry is either a plain version with
// its own name, or an _abstract template applied to each of its
// _implementations with {{variable}} substitution.
func speciesVersions(base string, rec source.Record) []speciesVersion {
	var out []speciesVersion
	for _, v := range rec.Slice("_versions") {
		vrec := source.AsRecord(v)
		if vrec == nil {
			continue
		}
		abstract := vrec.Map("_abstract")
		if abstract == nil {
			if name := vrec.String("name"); name != "" {
				out = append(out, speciesVersion{name: versionName(base, name), record: overlay(rec, vrec)})
			}
			continue
		}
		for _, impl := range vrec.Slice("_implementations") {
			irec := source.AsRecord(impl)
			if irec == nil {
				continue
			}
			vars := irec.Map("_variables")
			name := templateVar.ReplaceAllStringFunc(abstract.String("name"), func(m string) string {
				key := templateVar.FindStringSubmatch(m)[1]
				return vars.String(key)
			})
			if name == "" {
				continue
			}
			out = append(out, speciesVersion{name: versionName(base, name), record: overlay(overlay(rec, abstract), irec)})
		}
	}
	return out
}

// versionName turns "Dragonborn; Black" or "Black" into "Dragonborn (Black)".
// A name already carrying its own parenthesised variant is kept.
func versionName(base, name string) string {
	name = strings.TrimSpace(name)
	if strings.Contains(name, "(") {
		return name
	}
	if _, label, ok := strings.Cut(name, ";"); ok {
		name = strings.TrimSpace(label)
	}
	return base + " (" + name + ")"
}

func subraceName(rec source.Record) (name, parent string) {
	sub := strings.TrimSpace(rec.String("name"))
	parent = strings.TrimSpace(rec.String("raceName"))
	if sub == "" || parent == "" {
		return "", ""
	}
	return parent + " (" + sub + ")", parent
}

// overlay returns base with the fields of top applied over it.
func overlay(base, top source.Record) source.Record {
	out := make(source.Record, len(base)+len(top))
	for k, v := range base {
		if !versionMeta[k] {
			out[k] = v
		}
	}
	for k, v := range top {
		if !versionMeta[k] {
			out[k] = v
		}
	}
	return out
}

func speciesEntity(name, parent string, rec source.Record, notes *etl.Notes) etl.Entity {
	speed, speeds := speciesSpeed(rec["speed"])
	return etl.Entity{
		"name":             name,
		"description":      orDefault(speciesDescription(rec.Slice("entries")), "A member of the "+name+" species."),
		"size":             speciesSize(rec["size"], notes),
		"speed":            speed,
		"speeds":           speeds,
		"darkvision_range": darkvision(rec["darkvision"]),
		"language_names":   nilIfEmpty(speciesLanguages(rec.Slice("languageProficiencies"))),
		"parent_name":      nilIfBlank(parent),
	}
}

func speciesSize(v any, notes *etl.Notes) string {
	raw := v
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return "M"
		}
		raw = list[0]
	}
	s, _ := raw.(string)
	if s == "" && raw == nil {
		return "M"
	}
	if size, ok := sizeCodes[s]; ok {
		return size
	}
	notes.Fallback("size", raw, "M")
	return "M"
}

// speciesSpeed returns the walking speed and any other movement modes.
// A mode given as true moves at the walking speed.
func speciesSpeed(v any) (int, any) {
	switch x := v.(type) {
	case map[string]any:
		rec := source.Record(x)
		walk, ok := rec.Int("walk")
		if !ok {
			walk = 30
		}
		other := map[string]int{}
		for _, k := range sortedKeys(rec) {
			if k == "walk" {
				continue
			}
			if b, ok := rec[k].(bool); ok && b {
				other[k] = walk
			} else if n, ok := rec.Int(k); ok {
				other[k] = n
			}
		}
		if len(other) == 0 {
			return walk, nil
		}
		return walk, other
	case string:
		if m := digits.FindString(x); m != "" {
			n, _ := strconv.Atoi(m)
			return n, nil
		}
	default:
		if n, ok := source.AsInt(x); ok {
			return n, nil
		}
	}
	return 30, nil
}

func darkvision(v any) any {
	if n, ok := source.AsInt(v); ok {
		return n
	}
	if s, ok := v.(string); ok {
		if m := digits.FindString(s); m != "" {
			n, _ := strconv.Atoi(m)
			return n
		}
	}
	return nil
}

// speciesLanguages collects the fixed languages of languageProficiencies.
// Choices such as anyStandard carry no name to link.
func speciesLanguages(list []any) []string {
	var out []string
	seen := map[string]bool{}
	for _, l := range list {
		for _, name := range proficiencyNames(source.AsRecord(l)) {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

func speciesDescription(entries []any) string {
	for _, e := range entries {
		if s, ok := e.(string); ok {
			return markup.Strip(s)
		}
	}
	return ""
}
