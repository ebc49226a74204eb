// Package filter decides whether a raw record is in scope for import based on
// its provenance code and edition marker. Evaluation is pure: the same record
// and rules always produce the same decision.
package filter

import (
	"github.com/characterforge/compendium/internal/source"
)

// UnknownSource is the provenance code of records without a source field.
const UnknownSource = "unknown"

// Tag is the provenance of a record.
type Tag struct {
	Source  string
	Edition string
}

// TagOf reads the provenance of a record. A missing source becomes
// UnknownSource.
func TagOf(rec source.Record) Tag {
	tag := Tag{
		Source:  rec.String("source"),
		Edition: rec.String("edition"),
	}
	if tag.Source == "" {
		tag.Source = UnknownSource
	}
	return tag
}

// Rules is the compiled form of the source rules. The zero value admits
// everything.
type Rules struct {
	allowed          map[string]struct{}
	excluded         map[string]struct{}
	excludedEditions map[string]struct{}
}

// NewRules compiles the source rules. An empty allow-list admits every
// source that is not excluded.
func NewRules(allowed, excluded, excludedEditions []string) Rules {
	return Rules{
		allowed:          toSet(allowed),
		excluded:         toSet(excluded),
		excludedEditions: toSet(excludedEditions),
	}
}

type Reason string

const (
	ReasonIncluded        Reason = "included"
	ReasonExcludedEdition Reason = "excluded edition"
	ReasonExcludedSource  Reason = "excluded source"
	ReasonNotAllowed      Reason = "source not allowed"
)

// Decision is the outcome of Evaluate with the reason and the record's tag.
type Decision struct {
	Included bool
	Reason   Reason
	Tag      Tag
}

// Evaluate applies the rules in order: excluded edition, excluded source,
// allow-list, include.
func Evaluate(rec source.Record, rules Rules) Decision {
	tag := TagOf(rec)

	if tag.Edition != "" {
		if _, ok := rules.excludedEditions[tag.Edition]; ok {
			return Decision{Reason: ReasonExcludedEdition, Tag: tag}
		}
	}
	if _, ok := rules.excluded[tag.Source]; ok {
		return Decision{Reason: ReasonExcludedSource, Tag: tag}
	}
	if len(rules.allowed) > 0 {
		if _, ok := rules.allowed[tag.Source]; !ok {
			return Decision{Reason: ReasonNotAllowed, Tag: tag}
		}
	}
	return Decision{Included: true, Reason: ReasonIncluded, Tag: tag}
}

func IsIncluded(rec source.Record, rules Rules) bool {
	return Evaluate(rec, rules).Included
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
