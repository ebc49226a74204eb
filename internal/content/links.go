package content

import (
	"github.com/characterforge/compendium/internal/etl"
	"github.com/characterforge/compendium/internal/storage"
)

// Links are resolved after every kind is imported. Targets are matched by
// name, case-insensitively.
var Links = []etl.LinkSpec{
	foreignKey("class_feature_class", "class_features", "classes", "class_name", "class_id"),
	foreignKey("subclass_class", "subclasses", "classes", "class_name", "class_id"),
	foreignKey("species_trait_species", "species_traits", "species", "species_name", "species_id"),
	foreignKey("species_parent", "species", "species", "parent_name", "parent_id"),
	foreignKey("background_origin_feat", "backgrounds", "feats", "origin_feat_name", "origin_feat_id"),
	manyToMany("spell_classes", "spells", "classes", "class_names", "spell_id", "class_id"),
	manyToMany("species_languages", "species", "languages", "language_names", "species_id", "language_id"),
	manyToMany("background_skills", "backgrounds", "skills", "skill_names", "background_id", "skill_id"),
}

func foreignKey(name string, src, target etl.Kind, field, column string) etl.LinkSpec {
	return etl.LinkSpec{
		Name:        name,
		Source:      src,
		Target:      target,
		Field:       field,
		Cardinality: storage.ForeignKey,
		Column:      column,
	}
}

// manyToMany links store pairs in a join table named after the link.
func manyToMany(name string, src, target etl.Kind, field, sourceColumn, targetColumn string) etl.LinkSpec {
	return etl.LinkSpec{
		Name:         name,
		Source:       src,
		Target:       target,
		Field:        field,
		Cardinality:  storage.ManyToMany,
		JoinTable:    name,
		SourceColumn: sourceColumn,
		TargetColumn: targetColumn,
	}
}
