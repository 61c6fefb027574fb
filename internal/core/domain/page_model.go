package domain

const (
	firstPage       = 1
	defaultPageSize = 10
	// MaxPageSize caps the number of items listed at once.
	MaxPageSize = 100
)

// Page selects a window of the trades or offers listed to the operator.
// Numbers start from 1.
type Page struct {
	Number int
	Size   int
}

// NewPage returns the page with the given number and size. Non positive
// values select the first page of ten items.
func NewPage(number, size int) Page {
	page := Page{Number: firstPage, Size: defaultPageSize}
	if number > 0 {
		page.Number = number
	}
	if size > 0 {
		page.Size = size
	}
	if page.Size > MaxPageSize {
		page.Size = MaxPageSize
	}
	return page
}

// Bounds returns the half open range of the page over a list of count
// items. The range is empty past the end of the list.
func (p Page) Bounds(count int) (start, end int) {
	start = (p.Number - 1) * p.Size
	if start < 0 {
		start = 0
	}
	if start > count {
		start = count
	}
	end = start + p.Size
	if end > count {
		end = count
	}
	return start, end
}
