package dom

// Closest walks from start toward the root and returns the first node that
// satisfies match. start itself is hop 0; at most maxHops nodes are
// examined. parent returns ok=false when there is no further ancestor.
//
// Closest holds no document state, so it works the same over a live page
// and over a synthetic tree.
func Closest[N any](start N, maxHops int, parent func(N) (N, bool), match func(N) bool) (N, bool) {
	var zero N
	cur := start
	for hop := 0; hop < maxHops; hop++ {
		if match(cur) {
			return cur, true
		}
		next, ok := parent(cur)
		if !ok {
			return zero, false
		}
		cur = next
	}
	return zero, false
}
