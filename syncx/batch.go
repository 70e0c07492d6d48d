// ABOUTME: Chunk splits a slice into fixed-size batches, applied to both
// ABOUTME: unsynced local rows (push) and decoded remote arrays (pull).
package syncx

// Chunk splits items into consecutive slices of at most size elements,
// preserving order. Chunks are meant to be processed sequentially to keep
// the ordering guarantees in spec section 5.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
		if size == 0 {
			return nil
		}
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}
