package content

import (
	"slices"
	"strings"
	"unicode"

	"github.com/characterforge/compendium/internal/markup"
	"github.com/characterforge/compendium/internal/source"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titler = cases.Title(language.English)

// title capitalises every word of a lower-case identifier such as
// "sleight of hand".
func title(s string) string {
	return titler.String(strings.TrimSpace(s))
}

// refName reduces a "name|source" reference to its plain name.
func refName(s string) string {
	name, _, _ := strings.Cut(s, "|")
	return strings.TrimSpace(markup.Strip(name))
}

// code strips the "|source" suffix from an enumeration code.
func code(s string) string {
	c, _, _ := strings.Cut(s, "|")
	return strings.TrimSpace(c)
}

func ability(raw string) (string, bool) {
	c, ok := abilityCodes[strings.ToLower(strings.TrimSpace(raw))]
	return c, ok
}

// orDefault returns text, or fallback when text is empty.
func orDefault(text, fallback string) string {
	if strings.TrimSpace(text) == "" {
		return fallback
	}
	return text
}

// nilIfEmpty stores absent values as NULL.
func nilIfEmpty[T any](v []T) any {
	if len(v) == 0 {
		return nil
	}
	return v
}

func nilIfBlank(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// plainStrings strips markup from every string element of v. Objects of the
// form {"full": ...} or {"proficiency": ...} contribute their text.
func plainStrings(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		switch x := item.(type) {
		case string:
			s = x
		case map[string]any:
			rec := source.Record(x)
			s = rec.String("full")
			if s == "" {
				s = rec.String("proficiency")
			}
		}
		if s = strings.TrimSpace(markup.Strip(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// words splits a camel-case suffix such as "ArtisansTool" into "artisans tool".
func words(camel string) string {
	var b strings.Builder
	for i, r := range camel {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// proficiencyNames returns the concrete names set to true in a proficiency
// map, title-cased and in sorted key order. Choice markers are skipped.
func proficiencyNames(m source.Record) []string {
	var names []string
	for _, k := range sortedKeys(m) {
		if proficiencyMeta[k] {
			continue
		}
		if b, _ := m[k].(bool); !b {
			continue
		}
		names = append(names, title(refName(k)))
	}
	return names
}

func sortedKeys(m source.Record) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
