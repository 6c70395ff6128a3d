package query

import "math"

const (
	// DefaultPageSize is used when the caller does not ask for a size.
	DefaultPageSize = 20
	// MaxPageSize caps any requested size. Larger requests are clamped, not rejected.
	MaxPageSize = 20
)

// Page is a normalized page request: Number >= 1, 1 <= Size <= MaxPageSize.
type Page struct {
	Number int
	Size   int
}

// NewPage normalizes a raw page request. number < 1 becomes 1; size <= 0
// becomes DefaultPageSize; size > MaxPageSize becomes MaxPageSize. number is
// capped at math.MaxInt32.
func NewPage(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	// keep Offset within int
	if number > math.MaxInt32 {
		number = math.MaxInt32
	}
	return Page{Number: number, Size: size}
}

// Offset returns (Number-1) * Size.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// TotalPages returns ceil(total/size), 0 when there are no items.
func TotalPages(total int64, size int) int64 {
	if total <= 0 || size <= 0 {
		return 0
	}
	s := int64(size)
	return (total + s - 1) / s
}
