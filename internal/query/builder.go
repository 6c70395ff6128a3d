package query

import (
	"fmt"
	"strings"
)

// Table is the single table holding flight listings.
const Table = "flights"

// Columns lists the selected columns in scan order. store.scanFlight depends on this order.
var Columns = []string{
	"id", "uuid", "date", "origin", "destination", "airline", "duration",
	"flight_type", "price_inr", "origin_country", "destination_country", "link",
	"rain_probability", "free_meal",
	"min_checked_luggage_price", "min_checked_luggage_weight", "total_with_min_luggage",
}

// Sort selects the listing order. Both orders are ascending.
type Sort string

const (
	SortByPrice Sort = "price"
	SortByDate  Sort = "date"
)

// ParseSort maps a request value to a Sort. Anything other than "date"
// (case-insensitive) falls back to SortByPrice.
func ParseSort(s string) Sort {
	if strings.EqualFold(strings.TrimSpace(s), string(SortByDate)) {
		return SortByDate
	}
	return SortByPrice
}

// orderBy returns a total order: the sort key, then uuid to break ties.
func (s Sort) orderBy() string {
	switch s {
	case SortByDate:
		return " ORDER BY date ASC, uuid ASC"
	default:
		return " ORDER BY price_inr ASC, uuid ASC"
	}
}

// Statement is a rendered SQL statement with positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Select builds the page query. limit <= 0 means no limit; offset is ignored when < 0.
func Select(f Filter, s Sort, limit, offset int) Statement {
	where, args := Where(f)
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(Columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(Table)
	b.WriteString(where)
	b.WriteString(s.orderBy())
	if offset < 0 {
		offset = 0
	}
	switch {
	case limit > 0:
		fmt.Fprintf(&b, " LIMIT %d OFFSET %d", limit, offset)
	case offset > 0:
		// SQLite requires a LIMIT before OFFSET; -1 means unbounded.
		fmt.Fprintf(&b, " LIMIT -1 OFFSET %d", offset)
	}
	return Statement{SQL: b.String(), Args: args}
}

// Count builds the count query for the same filter Select would use.
func Count(f Filter) Statement {
	where, args := Where(f)
	return Statement{SQL: "SELECT COUNT(*) FROM " + Table + where, Args: args}
}
