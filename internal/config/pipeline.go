package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// PipelineConfig is the declarative description of an import run: which
// provenance codes are admitted, how colliding records are ranked, and the
// ordered phase table.
type PipelineConfig struct {
	SourceRules SourceRulesConfig `yaml:"source_rules"`
	// Priority lists provenance codes from highest to lowest precedence.
	// Empty disables the collision comparator (last record wins).
	Priority []string `yaml:"priority"`
	// PreservePriorityAcrossRuns keeps an already stored entity when the
	// incoming record has strictly lower priority.
	PreservePriorityAcrossRuns bool          `yaml:"preserve_priority_across_runs"`
	Phases                     []PhaseConfig `yaml:"phases"`
}

type SourceRulesConfig struct {
	AllowedSources   []string `yaml:"allowed_sources"`
	ExcludedSources  []string `yaml:"excluded_sources"`
	ExcludedEditions []string `yaml:"excluded_editions"`
}

// PhaseConfig is one phase of the pipeline file. A link phase has no kinds.
type PhaseConfig struct {
	ID    int      `yaml:"id"`
	Name  string   `yaml:"name"`
	Kinds []string `yaml:"kinds"`
	Link  bool     `yaml:"link"`
}

// DefaultAllowedSources are the 2014 ruleset publications and adventures.
var DefaultAllowedSources = []string{
	"PHB", "XGE", "TCE", "SCAG", "MM", "VGM", "MTF", "GGR", "AI", "EGW", "MOT", "IDRotF",
	"TCoE", "FTD", "SCC", "DSotDQ", "BMT", "BPG", "SAiS", "EGtW", "OotA", "PotA", "SKT",
	"TftYP", "ToA", "WDH", "WDMM", "GoS", "BGDiA", "DC", "DHM", "IMR", "SDW", "SLW", "AAG",
	"PSA", "PSI", "PSK", "PSX", "PSZ", "HotDQ", "RoT", "LMoP", "CoS", "ALCoS",
	"ALCurseOfStrahd", "DDAL", "DDIA", "DDEP", "DDEX", "VD", "SCREEN", "ScreenDungeonKit",
	"HEROES", "RMR", "RMBRE", "AL", "SatO", "ToD",
}

// DefaultPipeline is the built-in pipeline used when no file is given and
// the base a pipeline file is decoded over.
func DefaultPipeline() PipelineConfig {
	return PipelineConfig{
		SourceRules: SourceRulesConfig{
			AllowedSources:   append([]string(nil), DefaultAllowedSources...),
			ExcludedSources:  []string{"XPHB", "UA", "UAClassFeatureVariants", "homebrew"},
			ExcludedEditions: []string{"one"},
		},
		Priority: []string{"PHB", "MM", "XGE", "TCE", "SCAG", "VGM", "MTF"},
		Phases: []PhaseConfig{
			{ID: 1, Name: "Core Reference", Kinds: []string{"skills", "languages"}},
			{ID: 2, Name: "Character Options", Kinds: []string{"species", "classes", "feats"}},
			{ID: 3, Name: "Dependent Options", Kinds: []string{"species_traits", "class_features", "subclasses", "backgrounds"}},
			{ID: 4, Name: "Equipment", Kinds: []string{"equipment"}},
			{ID: 5, Name: "Spells", Kinds: []string{"spells"}},
			{ID: 6, Name: "Relationships", Link: true},
		},
	}
}

// ValidatePipeline checks the structure of a pipeline. Whether phase kinds
// exist is checked later against the registered entity specs.
func ValidatePipeline(cfg PipelineConfig) error {
	var errs []string

	if len(cfg.Phases) == 0 {
		errs = append(errs, "phases: at least one phase is required")
	}

	seen := make(map[int]bool, len(cfg.Phases))
	prev := 0
	for i, phase := range cfg.Phases {
		field := fmt.Sprintf("phases[%d]", i)
		if phase.ID <= 0 {
			errs = append(errs, fmt.Sprintf("%s.id: must be > 0, got %d", field, phase.ID))
		}
		if seen[phase.ID] {
			errs = append(errs, fmt.Sprintf("%s.id: duplicate phase id %d", field, phase.ID))
		}
		if phase.ID <= prev {
			errs = append(errs, fmt.Sprintf("%s.id: phases must be in ascending order (%d after %d)", field, phase.ID, prev))
		}
		seen[phase.ID] = true
		prev = phase.ID

		if phase.Link && len(phase.Kinds) > 0 {
			errs = append(errs, fmt.Sprintf("%s: a link phase cannot import kinds", field))
		}
		if !phase.Link && len(phase.Kinds) == 0 {
			errs = append(errs, fmt.Sprintf("%s.kinds: required", field))
		}
		for _, kind := range phase.Kinds {
			if strings.TrimSpace(kind) == "" {
				errs = append(errs, fmt.Sprintf("%s.kinds: empty kind name", field))
			}
		}
	}

	for _, code := range cfg.Priority {
		if strings.TrimSpace(code) == "" {
			errs = append(errs, "priority: empty source code")
		}
	}
	if cfg.PreservePriorityAcrossRuns && len(cfg.Priority) == 0 {
		errs = append(errs, "preserve_priority_across_runs: requires a priority list")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// LoadPipeline reads a pipeline file over DefaultPipeline. An empty path
// returns the defaults.
func LoadPipeline(path string) (PipelineConfig, error) {
	if path == "" {
		return DefaultPipeline(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return PipelineConfig{}, fmt.Errorf("reading pipeline %s: %w", path, err)
	}

	cfg := DefaultPipeline()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return PipelineConfig{}, fmt.Errorf("parsing pipeline %s: %w", path, err)
	}
	if err := ValidatePipeline(cfg); err != nil {
		return PipelineConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
