// Package query builds the listing query and its matching count query.
//
// Both statements are rendered from the same predicate list (see Where), so
// the rows counted for page metadata are always the rows that can appear on
// a page.
package query

import (
	"strings"
)

// Filter is the set of optional listing predicates. A nil field (or an empty
// Airlines slice) means "no constraint". Treat a Filter as a value: nothing in
// this package mutates one after construction.
type Filter struct {
	Origin      *string
	Destination *string
	MaxPrice    *int
	MaxRain     *float64
	Airlines    []string
}

// Predicate is one rendered SQL condition with its bound arguments.
type Predicate struct {
	Clause string
	Args   []any
}

// ParseAirlines splits a comma-separated airline list, trims each name and
// drops empty tokens. "Acme, , Globex" yields [Acme Globex]; an input with no
// names yields nil, which Predicates treats as no airline constraint.
func ParseAirlines(s string) []string {
	var out []string
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// Predicates returns the conditions for f in a fixed order. It is the only
// place filter fields are turned into SQL.
func Predicates(f Filter) []Predicate {
	var preds []Predicate
	if f.Origin != nil {
		preds = append(preds, Predicate{Clause: "origin = ?", Args: []any{*f.Origin}})
	}
	if f.Destination != nil {
		preds = append(preds, Predicate{Clause: "destination = ?", Args: []any{*f.Destination}})
	}
	if f.MaxPrice != nil {
		preds = append(preds, Predicate{Clause: "price_inr <= ?", Args: []any{*f.MaxPrice}})
	}
	if f.MaxRain != nil {
		preds = append(preds, Predicate{Clause: "rain_probability <= ?", Args: []any{*f.MaxRain}})
	}
	if len(f.Airlines) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(f.Airlines)), ", ")
		args := make([]any, len(f.Airlines))
		for i, a := range f.Airlines {
			args[i] = a
		}
		preds = append(preds, Predicate{Clause: "airline IN (" + placeholders + ")", Args: args})
	}
	return preds
}

// Where renders the WHERE clause (with a leading space) and its arguments.
// Returns "" and nil when f has no predicates.
func Where(f Filter) (string, []any) {
	preds := Predicates(f)
	if len(preds) == 0 {
		return "", nil
	}
	clauses := make([]string, len(preds))
	var args []any
	for i, p := range preds {
		clauses[i] = p.Clause
		args = append(args, p.Args...)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
