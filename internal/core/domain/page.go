package domain

const DefaultPageSize = 20

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

func NewPage(number, size int) Page {
	if size <= 0 {
		size = DefaultPageSize
	}
	return Page{Number: number, Size: size}
}

func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// Count returns the number of pages for total items, never less than one.
func (p Page) Count(total int) int {
	n := (total + p.Size - 1) / p.Size
	if n == 0 {
		return 1
	}
	return n
}

// Check rejects pages before the first or past the last.
func (p Page) Check(total int) error {
	if p.Number < 1 || p.Number > p.Count(total) {
		return NewError(ErrOutOfBound, "Page out of bound!")
	}
	return nil
}

type PageResult[T any] struct {
	Items     []T
	Total     int
	Page      int
	PageCount int
}

func NewPageResult[T any](items []T, total int, page Page) PageResult[T] {
	if items == nil {
		items = []T{}
	}
	return PageResult[T]{Items: items, Total: total, Page: page.Number, PageCount: page.Count(total)}
}
