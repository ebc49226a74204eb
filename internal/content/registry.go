package content

import (
	"fmt"

	"github.com/characterforge/compendium/internal/etl"
)

// Specs returns a fresh entity spec for every kind, in default phase order.
func Specs() []*etl.EntitySpec {
	return []*etl.EntitySpec{
		skillSpec(),
		languageSpec(),
		speciesSpec(),
		classSpec(),
		featSpec(),
		speciesTraitSpec(),
		classFeatureSpec(),
		subclassSpec(),
		backgroundSpec(),
		equipmentSpec(),
		spellSpec(),
	}
}

// NewRegistry registers every entity kind and link.
func NewRegistry() (*etl.Registry, error) {
	reg := etl.NewRegistry()
	for _, spec := range Specs() {
		if err := reg.Register(spec); err != nil {
			return nil, fmt.Errorf("register %s: %w", spec.Kind, err)
		}
	}
	for _, link := range Links {
		if err := reg.RegisterLink(link); err != nil {
			return nil, fmt.Errorf("register link %s: %w", link.Name, err)
		}
	}
	return reg, nil
}
