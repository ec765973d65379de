package feed

import "slices"

// Less reports whether a renders before b: newer first, then by ID.
func Less[P Payload](a, b Item[P]) bool {
	return Compare(a, b) < 0
}

// Compare orders items by CreatedAt descending, ID ascending on ties.
func Compare[P Payload](a, b Item[P]) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}

// Sort orders items in place using Compare.
func Sort[P Payload](items []Item[P]) {
	slices.SortStableFunc(items, Compare[P])
}

// IsSorted reports whether items are already in display order.
func IsSorted[P Payload](items []Item[P]) bool {
	return slices.IsSortedFunc(items, Compare[P])
}
