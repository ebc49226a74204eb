package markup

import (
	"strings"

	"github.com/characterforge/compendium/internal/source"
)

// Entry types with no plain-text projection.
var opaqueTypes = map[string]bool{
	"table": true, "tableGroup": true, "image": true, "gallery": true, "statblock": true,
	"statblockInline": true, "hr": true, "abilityDc": true, "abilityAttackMod": true,
	"abilityGeneric": true, "refClassFeature": true, "refSubclassFeature": true,
	"refOptionalfeature": true, "spellcasting": true, "flowchart": true,
}

// Assemble joins the plain-text projection of each fragment with blank lines.
// Accepts a single string, a fragment map or a slice of fragments.
func Assemble(entries any) string {
	var parts []string
	collect(entries, &parts)
	return strings.Join(parts, "\n\n")
}

// First returns the first paragraph of Assemble(entries).
func First(entries any) string {
	text := Assemble(entries)
	if head, _, ok := strings.Cut(text, "\n\n"); ok {
		return head
	}
	return text
}

func collect(v any, parts *[]string) {
	switch e := v.(type) {
	case nil:
	case string:
		if s := strings.TrimSpace(Strip(e)); s != "" {
			*parts = append(*parts, s)
		}
	case []any:
		for _, item := range e {
			collect(item, parts)
		}
	case []string:
		for _, item := range e {
			collect(item, parts)
		}
	case map[string]any:
		if s := project(source.Record(e)); s != "" {
			*parts = append(*parts, s)
		}
	case source.Record:
		if s := project(e); s != "" {
			*parts = append(*parts, s)
		}
	}
}

func project(e source.Record) string {
	kind := e.String("type")
	if opaqueTypes[kind] {
		return ""
	}

	if kind == "list" || (kind == "" && e.Has("items") && !e.Has("entries")) {
		return listText(e.Slice("items"))
	}

	var body string
	switch {
	case e.Has("entries"):
		body = Assemble(e["entries"])
	case e.Has("entry"):
		body = Assemble(e["entry"])
	case kind == "item" && e.Has("name"):
		body = ""
	default:
		return ""
	}

	name := strings.TrimSpace(Strip(e.String("name")))
	switch {
	case name == "":
		return body
	case body == "":
		return name
	default:
		return name + ". " + body
	}
}

func listText(items []any) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		var line string
		switch it := item.(type) {
		case string:
			line = Strip(it)
		case map[string]any:
			rec := source.Record(it)
			name := Strip(rec.String("name"))
			text := Assemble(firstPresent(rec, "entry", "entries"))
			switch {
			case name != "" && text != "":
				line = name + ": " + text
			case name != "":
				line = name
			default:
				line = project(rec)
			}
		}
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, "• "+line)
		}
	}
	return strings.Join(lines, "\n")
}

func firstPresent(rec source.Record, keys ...string) any {
	for _, k := range keys {
		if v, ok := rec[k]; ok {
			return v
		}
	}
	return nil
}
