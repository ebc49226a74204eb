package content

import (
	"strings"

	"github.com/characterforge/compendium/internal/etl"
	"github.com/characterforge/compendium/internal/markup"
	"github.com/characterforge/compendium/internal/source"
)

func equipmentSpec() *etl.EntitySpec {
	return &etl.EntitySpec{
		Kind:        "equipment",
		Collections: []source.Collection{BaseItemCollection, ItemCollection},
		KeyFields:   []string{"name"},
		Required:    []string{"name", "equipment_type"},
		Rules: map[string]string{
			"equipment_type":  "oneof=weapon armor shield gear tool instrument mount vehicle trade_good",
			"cost_gp":         "min=0",
			"weight":          "min=0",
			"weapon_category": "oneof=simple martial",
			"armor_type":      "oneof=light medium heavy shield",
			"base_ac":         "min=0",
		},
		Include:   mundane,
		Transform: transformEquipment,
	}
}

// mundane admits items without a rarity or with rarity "none". Magic items
// are out of scope.
func mundane(rec source.Record) bool {
	r := rec.String("rarity")
	return r == "" || r == "none"
}

func transformEquipment(item source.Item, notes *etl.Notes) ([]etl.Entity, error) {
	rec := item.Record
	typeCode := code(rec.String("type"))

	e := etl.Entity{
		"name":                 strings.TrimSpace(rec.String("name")),
		"equipment_type":       equipmentType(typeCode, notes),
		"cost_gp":              nil,
		"weight":               nil,
		"description":          nilIfBlank(markup.Assemble(rec["entries"])),
		"properties":           nilIfEmpty(itemPropertyNames(rec.Slice("property"))),
		"weapon_category":      nil,
		"damage_dice":          nil,
		"damage_type":          nil,
		"range_normal":         nil,
		"range_long":           nil,
		"mastery_property":     nil,
		"armor_type":           nil,
		"base_ac":              nil,
		"dex_bonus_limit":      nil,
		"strength_requirement": nil,
		"stealth_disadvantage": false,
	}
	if copper, ok := rec.Float("value"); ok {
		e["cost_gp"] = copper / 100
	}
	if w, ok := rec.Float("weight"); ok {
		e["weight"] = w
	}

	if rec.Bool("weapon") || typeCode == "M" || typeCode == "R" {
		if err := weaponFields(e, rec, notes); err != nil {
			return nil, err
		}
	}
	if armor, ok := armorTypes[typeCode]; ok {
		armorFields(e, armor, rec)
	}
	return []etl.Entity{e}, nil
}

func equipmentType(typeCode string, notes *etl.Notes) string {
	if typeCode == "" {
		return "gear"
	}
	if t, ok := itemTypes[typeCode]; ok {
		return t
	}
	notes.Fallback("equipment_type", typeCode, "gear")
	return "gear"
}

func itemPropertyNames(props []any) []string {
	var out []string
	for _, p := range props {
		var c string
		switch x := p.(type) {
		case string:
			c = code(x)
		case map[string]any:
			c = code(source.Record(x).String("uid"))
		}
		if c == "" {
			continue
		}
		if name, ok := itemProperties[c]; ok {
			out = append(out, name)
		} else {
			out = append(out, c)
		}
	}
	return out
}

func weaponFields(e etl.Entity, rec source.Record, notes *etl.Notes) error {
	e["weapon_category"] = nilIfBlank(strings.ToLower(rec.String("weaponCategory")))

	if dice := rec.String("dmg1"); dice != "" {
		e["damage_dice"] = dice
		dmg := rec.String("dmgType")
		t, ok := damageTypes[dmg]
		if !ok {
			t = "bludgeoning"
			notes.Fallback("damage_type", dmg, t)
		}
		e["damage_type"] = t
	}

	if r := rec.String("range"); r != "" {
		normal, long, err := weaponRange(r)
		if err != nil {
			return err
		}
		e["range_normal"], e["range_long"] = normal, long
	}

	if mastery := rec.Strings("mastery"); len(mastery) > 0 {
		e["mastery_property"] = refName(mastery[0])
	}
	return nil
}

// weaponRange parses "normal/long" in feet.
func weaponRange(r string) (int, int, error) {
	n, l, ok := strings.Cut(r, "/")
	normal, okN := source.AsInt(n)
	long, okL := source.AsInt(l)
	if !ok || !okN || !okL {
		return 0, 0, etl.Transformf("range", "expected normal/long, got %q", r)
	}
	return normal, long, nil
}

func armorFields(e etl.Entity, armor string, rec source.Record) {
	e["armor_type"] = armor
	if ac, ok := rec.Int("ac"); ok {
		e["base_ac"] = ac
	} else if armor == "shield" {
		e["base_ac"] = 2
	}
	switch armor {
	case "medium":
		e["dex_bonus_limit"] = 2
	case "heavy":
		e["dex_bonus_limit"] = 0
	}
	if str, ok := rec.Int("strength"); ok {
		e["strength_requirement"] = str
	}
	e["stealth_disadvantage"] = rec.Bool("stealth")
}
