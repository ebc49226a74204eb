// Package markup turns source text into plain text.
//
// Source strings embed inline tags of the form {@tag label|source|display}.
// Scan replaces every tag with its human-readable label and reports the
// entity references it found; Assemble flattens an "entries" tree of strings,
// lists and nested sections into paragraphs.
package markup

import (
	"strings"

	"github.com/characterforge/compendium/internal/sanitize"
)

// Ref is a cross-reference extracted from an inline tag.
type Ref struct {
	Tag    string
	Name   string
	Source string
}

// Tags whose first part names another entity.
var referenceTags = map[string]bool{
	"action": true, "adventure": true, "background": true, "boon": true, "book": true,
	"card": true, "charoption": true, "class": true, "condition": true, "creature": true,
	"cult": true, "deck": true, "deity": true, "disease": true, "facility": true,
	"feat": true, "hazard": true, "item": true, "itemMastery": true, "language": true,
	"object": true, "optfeature": true, "psionic": true, "quickref": true, "race": true,
	"recipe": true, "reward": true, "sense": true, "skill": true, "spell": true,
	"status": true, "table": true, "trap": true, "variantrule": true, "vehicle": true,
}

// Strip returns text with every inline tag reduced to its label.
func Strip(text string) string {
	plain, _ := Scan(text)
	return plain
}

// Scan returns the plain text and the references found, in order.
func Scan(text string) (string, []Ref) {
	if !strings.Contains(text, "{@") {
		return sanitize.PlainText(text), nil
	}
	var refs []Ref
	return sanitize.PlainText(scan(text, &refs)), refs
}

func scan(text string, refs *[]Ref) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		if !strings.HasPrefix(text[i:], "{@") {
			b.WriteByte(text[i])
			i++
			continue
		}
		end := closingBrace(text, i)
		if end < 0 {
			// Unterminated tag: drop the "{@" and keep its text. Braces
			// outside tags are literal.
			b.WriteString(scan(text[i+2:], refs))
			break
		}
		b.WriteString(render(text[i+2:end], refs))
		i = end + 1
	}
	return b.String()
}

func closingBrace(text string, start int) int {
	depth := 0
	for j := start; j < len(text); j++ {
		switch text[j] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

// render produces the label of one tag body ("spell fireball|phb").
func render(body string, refs *[]Ref) string {
	tag, content, _ := strings.Cut(body, " ")
	content = scan(content, refs)
	parts := strings.Split(content, "|")
	first := strings.TrimSpace(parts[0])

	switch tag {
	case "dc":
		return "DC " + first
	case "hit":
		if first != "" && first[0] != '+' && first[0] != '-' {
			return "+" + first
		}
		return first
	case "chance":
		return first + " percent"
	case "scaledice", "scaledamage":
		return strings.TrimSpace(parts[len(parts)-1])
	case "dice", "damage", "d20", "autodice":
		if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
			return strings.TrimSpace(parts[1])
		}
		return first
	case "classFeature", "subclassFeature":
		if len(parts) > 5 && strings.TrimSpace(parts[5]) != "" {
			return strings.TrimSpace(parts[5])
		}
		*refs = append(*refs, Ref{Tag: tag, Name: first})
		return first
	case "filter", "link", "5etools", "footnote", "homebrew", "area":
		return first
	}

	if referenceTags[tag] {
		ref := Ref{Tag: tag, Name: first}
		if len(parts) > 1 {
			ref.Source = strings.TrimSpace(parts[1])
		}
		*refs = append(*refs, ref)
		if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
			return strings.TrimSpace(parts[2])
		}
		return first
	}

	// Formatting tags (b, i, note, ...) keep their whole content.
	return content
}
