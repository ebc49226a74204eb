package etl

import "fmt"

// Severity grades a note.
type Severity string

const (
	// SeverityFallback marks an unknown raw code mapped to a fallback value.
	SeverityFallback Severity = "fallback"
	// SeverityDerived marks a value inferred by a heuristic.
	SeverityDerived Severity = "derived"
	// SeverityInfo marks everything else worth auditing, such as a record
	// superseded by a higher priority one.
	SeverityInfo Severity = "info"
)

// Note is a low-severity report entry. Notes never change counts.
type Note struct {
	Key      string
	Field    string
	Severity Severity
	Message  string
}

// Notes collects the notes of one record while it is transformed. A field
// gets at most one note per record.
type Notes struct {
	notes []Note
	seen  map[string]bool
}

func (n *Notes) add(field string, sev Severity, msg string) {
	if n == nil {
		return
	}
	if n.seen == nil {
		n.seen = map[string]bool{}
	}
	if n.seen[field] {
		return
	}
	n.seen[field] = true
	n.notes = append(n.notes, Note{Field: field, Severity: sev, Message: msg})
}

// Fallback records that raw could not be mapped and used was stored instead.
func (n *Notes) Fallback(field string, raw any, used any) {
	n.add(field, SeverityFallback, fmt.Sprintf("unknown value %v, using %v", raw, used))
}

// Derived records that value was inferred, and how.
func (n *Notes) Derived(field string, value any, how string) {
	n.add(field, SeverityDerived, fmt.Sprintf("derived %v from %s", value, how))
}


// All returns the collected notes tagged with key.
func (n *Notes) All(key string) []Note {
	if n == nil {
		return nil
	}
	out := make([]Note, len(n.notes))
	for i, note := range n.notes {
		note.Key = key
		out[i] = note
	}
	return out
}
