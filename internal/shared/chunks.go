package shared

// ReverseBlocks splits items into blocks of at most size elements, yielding
// them from the tail of the slice first while each block keeps its inner
// order.
//
// Submitting blocks in this order lets a caller insert every block at a fixed
// position (e.g. position 0 of a playlist) and still end up with the items in
// their original overall order.
func ReverseBlocks[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}

	var blocks [][]T
	end := len(items)
	start := end - size
	for end > 0 {
		if start < 0 {
			start = 0
		}
		blocks = append(blocks, items[start:end])
		end = start
		start -= size
	}

	return blocks
}

// Blocks splits items into consecutive blocks of at most size elements.
func Blocks[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}

	var blocks [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		blocks = append(blocks, items[start:end])
	}

	return blocks
}
