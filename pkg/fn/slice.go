package fn

// Filter returns the elements of s that keep accepts, in order.
func Filter[S ~[]E, E any](s S, keep func(E) bool) S {
	out := make(S, 0, len(s))
	for _, e := range s {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Chunk splits s into consecutive slices of at most size elements. The
// chunks share s's backing array but cannot append into each other. It
// returns nil when size is not positive.
func Chunk[S ~[]E, E any](s S, size int) []S {
	if size <= 0 {
		return nil
	}
	out := make([]S, 0, (len(s)+size-1)/size)
	for lo := 0; lo < len(s); lo += size {
		hi := min(lo+size, len(s))
		out = append(out, s[lo:hi:hi])
	}
	return out
}

// UniqueBy keeps the first element for each key, in order.
func UniqueBy[S ~[]E, E any, K comparable](s S, key func(E) K) S {
	seen := make(map[K]struct{}, len(s))
	out := make(S, 0, len(s))
	for _, e := range s {
		k := key(e)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}
