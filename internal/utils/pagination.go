// Package utils holds small helpers shared by the HTTP and service layers.
package utils

import "strconv"

// Paging bounds for meeting lists.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault parses s as an int, returning def when s is empty or invalid.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// ParsePage reads page and page_size query values, clamping the number to
// >= 1 and the size to [1, MaxPageSize].
func ParsePage(number, size string) Page {
	p := Page{
		Number: AtoiDefault(number, 1),
		Size:   AtoiDefault(size, DefaultPageSize),
	}
	return p.Normalize()
}

// Normalize clamps p into range; a zero size becomes DefaultPageSize.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	switch {
	case p.Size == 0:
		p.Size = DefaultPageSize
	case p.Size < 1:
		p.Size = 1
	case p.Size > MaxPageSize:
		p.Size = MaxPageSize
	}
	return p
}

// Offset is the number of rows before this page.
func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// TotalPages is the page count for total rows.
func (p Page) TotalPages(total int64) int {
	if p.Size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(p.Size) - 1) / int64(p.Size))
}

// HasNext reports whether a page follows p.
func (p Page) HasNext(total int64) bool { return p.Number < p.TotalPages(total) }
