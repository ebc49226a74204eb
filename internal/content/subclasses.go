package content

import (
	"strconv"
	"strings"

	"github.com/characterforge/compendium/internal/etl"
	"github.com/characterforge/compendium/internal/markup"
	"github.com/characterforge/compendium/internal/source"
)

func subclassSpec() *etl.EntitySpec {
	return &etl.EntitySpec{
		Kind:        "subclasses",
		Collections: []source.Collection{SubclassCollection},
		KeyFields:   []string{"class_name", "name"},
		Required:    []string{"class_name", "name", "level_available"},
		Rules:       map[string]string{"level_available": "min=1,max=20"},
		Transform:   transformSubclass,
	}
}

func transformSubclass(item source.Item, notes *etl.Notes) ([]etl.Entity, error) {
	rec := item.Record
	className := strings.TrimSpace(rec.String("className"))

	return []etl.Entity{{
		"class_name":      className,
		"name":            strings.TrimSpace(rec.String("name")),
		"short_name":      nilIfBlank(rec.String("shortName")),
		"description":     orDefault(markup.Assemble(rec["entries"]), "A "+className+" specialization."),
		"level_available": subclassLevel(rec.Slice("subclassFeatures")),
	}}, nil
}

// subclassLevel reads the level of the first subclass feature reference,
// "Name|Class|ClassSource|Short|ShortSource|Level", or an object with a
// subclassFeature field in the same form.
func subclassLevel(features []any) int {
	if len(features) == 0 {
		return 3
	}
	ref, ok := features[0].(string)
	if !ok {
		ref = source.AsRecord(features[0]).String("subclassFeature")
	}
	parts := strings.Split(ref, "|")
	if len(parts) < 6 {
		return 3
	}
	level, err := strconv.Atoi(strings.TrimSpace(parts[5]))
	if err != nil || level < 1 {
		return 3
	}
	return level
}
