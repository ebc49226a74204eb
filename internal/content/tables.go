package content

// Enumeration tables mapping raw codes to canonical values.

var abilityCodes = map[string]string{
	"str": "STR", "dex": "DEX", "con": "CON", "int": "INT", "wis": "WIS", "cha": "CHA",
	"strength": "STR", "dexterity": "DEX", "constitution": "CON",
	"intelligence": "INT", "wisdom": "WIS", "charisma": "CHA",
}

// abilityOrder is the order abilities are checked in ability maps.
var abilityOrder = []string{"str", "dex", "con", "int", "wis", "cha"}

const abilityRule = "oneof=STR DEX CON INT WIS CHA"

var sizeCodes = map[string]string{
	"T": "T", "Tiny": "T",
	"S": "S", "Small": "S",
	"M": "M", "Medium": "M",
	"L": "L", "Large": "L",
	"H": "H", "Huge": "H",
	"G": "G", "Gargantuan": "G",
}

var spellSchools = map[string]string{
	"A": "abjuration",
	"C": "conjuration",
	"D": "divination",
	"E": "enchantment",
	"V": "evocation",
	"I": "illusion",
	"N": "necromancy",
	"T": "transmutation",
}

var damageTypes = map[string]string{
	"A": "acid",
	"B": "bludgeoning",
	"C": "cold",
	"E": "lightning",
	"F": "fire",
	"N": "necrotic",
	"O": "force",
	"P": "piercing",
	"I": "poison",
	"Y": "psychic",
	"R": "radiant",
	"S": "slashing",
	"T": "thunder",
}

var itemTypes = map[string]string{
	"M":   "weapon",
	"R":   "weapon",
	"LA":  "armor",
	"MA":  "armor",
	"HA":  "armor",
	"S":   "shield",
	"A":   "gear",
	"AF":  "gear",
	"G":   "gear",
	"SCF": "gear",
	"AT":  "tool",
	"T":   "tool",
	"GS":  "tool",
	"INS": "instrument",
	"MNT": "mount",
	"VEH": "vehicle",
	"SHP": "vehicle",
	"TAH": "gear",
	"TG":  "trade_good",
	"P":   "gear",
	"SC":  "gear",
	"W":   "gear",
	"OTH": "gear",
	"FD":  "gear",
	"$":   "trade_good",
	"$C":  "trade_good",
	"$G":  "trade_good",
	"$A":  "trade_good",
}

var armorTypes = map[string]string{
	"LA": "light",
	"MA": "medium",
	"HA": "heavy",
	"S":  "shield",
}

var itemProperties = map[string]string{
	"F":   "Finesse",
	"H":   "Heavy",
	"L":   "Light",
	"LD":  "Loading",
	"R":   "Reach",
	"S":   "Special",
	"T":   "Thrown",
	"2H":  "Two-Handed",
	"V":   "Versatile",
	"AF":  "Ammunition",
	"A":   "Ammunition",
	"RLD": "Reload",
	"BF":  "Burst Fire",
}

var castingTimes = map[string]string{
	"action":    "action",
	"bonus":     "bonus_action",
	"reaction":  "reaction",
	"minute/1":  "1_minute",
	"minute/10": "10_minutes",
	"hour/1":    "1_hour",
	"hour/8":    "8_hours",
	"hour/12":   "12_hours",
	"hour/24":   "24_hours",
}

var spellRanges = map[string]string{
	"feet/5":    "5_feet",
	"feet/10":   "10_feet",
	"feet/15":   "15_feet",
	"feet/30":   "30_feet",
	"feet/60":   "60_feet",
	"feet/90":   "90_feet",
	"feet/100":  "100_feet",
	"feet/120":  "120_feet",
	"feet/150":  "150_feet",
	"feet/300":  "300_feet",
	"feet/500":  "500_feet",
	"miles/1":   "1_mile",
	"self":      "self",
	"touch":     "touch",
	"sight":     "sight",
	"unlimited": "unlimited",
	"special":   "special",
}

var spellDurations = map[string]string{
	"instant":   "instantaneous",
	"permanent": "permanent",
	"special":   "special",
	"round/1":   "1_round",
	"minute/1":  "1_minute",
	"minute/10": "10_minutes",
	"hour/1":    "1_hour",
	"hour/2":    "2_hours",
	"hour/8":    "8_hours",
	"hour/24":   "24_hours",
	"day/7":     "7_days",
	"day/10":    "10_days",
	"day/30":    "30_days",
}

// classPrimaryAbility is used when a class record has no primaryAbility.
var classPrimaryAbility = map[string]string{
	"Barbarian": "STR",
	"Bard":      "CHA",
	"Cleric":    "WIS",
	"Druid":     "WIS",
	"Fighter":   "STR",
	"Monk":      "WIS",
	"Paladin":   "STR",
	"Ranger":    "DEX",
	"Rogue":     "DEX",
	"Sorcerer":  "CHA",
	"Warlock":   "CHA",
	"Wizard":    "INT",
	"Artificer": "INT",
}

var classDifficulty = map[string]string{
	"Barbarian": "easy",
	"Fighter":   "easy",
	"Ranger":    "easy",
	"Rogue":     "easy",
	"Artificer": "hard",
	"Druid":     "hard",
	"Wizard":    "hard",
	"Warlock":   "hard",
}

var exoticLanguages = map[string]bool{
	"Abyssal": true, "Celestial": true, "Deep Speech": true, "Draconic": true,
	"Infernal": true, "Primordial": true, "Sylvan": true, "Undercommon": true,
	"Druidic": true, "Thieves' Cant": true, "Qualith": true, "Gith": true,
	"Slaad": true, "Sphinx": true,
}

// languageScripts maps a language to its script. An empty script means the
// language is not written.
var languageScripts = map[string]string{
	"Common":        "Common",
	"Dwarvish":      "Dwarvish",
	"Elvish":        "Elvish",
	"Giant":         "Dwarvish",
	"Gnomish":       "Dwarvish",
	"Goblin":        "Dwarvish",
	"Halfling":      "Common",
	"Orc":           "Dwarvish",
	"Abyssal":       "Infernal",
	"Celestial":     "Celestial",
	"Draconic":      "Draconic",
	"Deep Speech":   "",
	"Infernal":      "Infernal",
	"Primordial":    "Dwarvish",
	"Sylvan":        "Elvish",
	"Undercommon":   "Elvish",
	"Druidic":       "",
	"Thieves' Cant": "",
}

var fightingStyles = []string{
	"archery", "defense", "dueling", "great weapon fighting", "protection",
	"two-weapon fighting", "blessed warrior", "blind fighting", "interception",
	"thrown weapon fighting", "unarmed fighting", "close quarters shooter",
	"mariner", "tunnel fighter", "druidic warrior",
}

// skillNames are the keys of skill proficiency maps.
var skillNames = []string{
	"athletics", "acrobatics", "sleight of hand", "stealth", "arcana", "history",
	"investigation", "nature", "religion", "animal handling", "insight", "medicine",
	"perception", "survival", "deception", "intimidation", "performance", "persuasion",
}

// proficiencyMeta are keys of proficiency maps that are not names.
var proficiencyMeta = map[string]bool{
	"any": true, "anyStandard": true, "anyExotic": true, "choose": true, "other": true,
}
