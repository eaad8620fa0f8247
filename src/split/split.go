package split

// Split partitions items into exactly n contiguous buckets, n >= 1.
// The first len(items)%n buckets hold one extra item, so any two bucket sizes
// differ by at most 1 and concatenating the buckets reproduces items.
// Buckets are empty only when n > len(items).
func Split[T any](items []T, n int) [][]T {
	k, m := len(items)/n, len(items)%n

	buckets := make([][]T, n)
	for i := 0; i < n; i++ {
		start := i*k + min(i, m)
		end := (i+1)*k + min(i+1, m)
		buckets[i] = items[start:end]
	}

	return buckets
}
