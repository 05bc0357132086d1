package spotify

import "context"

// PageFunc fetches one page of items. An empty cursor requests the first
// page; next is the cursor of the following page, empty when exhausted.
type PageFunc[T any] func(ctx context.Context, cursor string) (items []T, next string, err error)

// CollectAll follows cursors until exhaustion and returns the concatenated
// item list. Used when a full scan is required.
func CollectAll[T any](ctx context.Context, fn PageFunc[T]) ([]T, error) {
	var all []T
	cursor := ""
	for {
		items, next, err := fn(ctx, cursor)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return all, nil
		}
		all = append(all, items...)
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}

// Pager yields items one at a time across page boundaries. The next page is
// only fetched once the current one is drained, so a consumer that stops
// calling Next as soon as it recognizes an already-processed item never pays
// for the remaining pages.
type Pager[T any] struct {
	fn     PageFunc[T]
	buf    []T
	cursor string
	done   bool
}

// NewPager creates a lazy iterator over fn.
func NewPager[T any](fn PageFunc[T]) *Pager[T] {
	return &Pager[T]{fn: fn}
}

// Next returns the next item. ok is false once the feed is exhausted.
func (p *Pager[T]) Next(ctx context.Context) (item T, ok bool, err error) {
	var zero T
	for len(p.buf) == 0 {
		if p.done {
			return zero, false, nil
		}
		items, next, err := p.fn(ctx, p.cursor)
		if err != nil {
			return zero, false, err
		}
		p.cursor = next
		if next == "" {
			p.done = true
		}
		if len(items) == 0 {
			p.done = true
			return zero, false, nil
		}
		p.buf = items
	}

	item = p.buf[0]
	p.buf = p.buf[1:]
	return item, true, nil
}
