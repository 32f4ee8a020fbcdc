package domain

// Order hints are Planner-style lexicographic strings over the printable
// ASCII range '!'..'~'. Sorting tasks by (OrderHint, ID) yields the display
// order; inserting between two neighbors takes the midpoint of their hints,
// so reordering never rewrites sibling hints.

const (
	hintMin = byte('!')
	hintMax = byte('~')
)

// OrderHintBetween returns a hint sorting strictly between lo and hi.
// Either bound may be empty: empty lo means before everything, empty hi
// means after everything. When both are set, lo must sort before hi.
func OrderHintBetween(lo, hi string) string {
	var b []byte
	for i := 0; ; i++ {
		lc := hintMin - 1 // virtual floor below the alphabet
		if i < len(lo) {
			lc = lo[i]
		}
		hc := hintMax + 1 // virtual ceiling above the alphabet
		if hi != "" && i < len(hi) {
			hc = hi[i]
		}
		if lc == hc {
			b = append(b, lc)
			continue
		}
		// Reject midpoints that would end the hint on the minimum
		// character, since nothing can ever be inserted before those.
		if mid := byte((int(lc) + int(hc)) / 2); mid > lc && mid > hintMin {
			return string(append(b, mid))
		}
		// No usable midpoint at this position: pin the low bound here.
		// The pinned byte is already strictly below hc, so the upper
		// constraint is satisfied and drops out.
		if lc < hintMin {
			lc = hintMin
		}
		b = append(b, lc)
		hi = ""
	}
}

// OrderHintAfter returns a hint sorting after every hint in hints.
func OrderHintAfter(hints []string) string {
	var last string
	for _, h := range hints {
		if h > last {
			last = h
		}
	}
	return OrderHintBetween(last, "")
}

// OrderHintBefore returns a hint sorting before every hint in hints.
func OrderHintBefore(hints []string) string {
	first := ""
	for _, h := range hints {
		if h != "" && (first == "" || h < first) {
			first = h
		}
	}
	return OrderHintBetween("", first)
}
