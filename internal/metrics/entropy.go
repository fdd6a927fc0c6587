package metrics

import "math"

const probabilityEpsilon = 1e-12

// Entropy is the Shannon entropy, in bits, of the distribution of modified
// lines across files. Zero-probability terms are skipped and the result is
// floored at zero. A total of zero yields zero.
func Entropy(modified []int) float64 {
	total := 0
	for _, m := range modified {
		total += m
	}
	if total <= 0 {
		return 0
	}

	var h float64
	for _, m := range modified {
		p := float64(m) / float64(total)
		if p < probabilityEpsilon {
			continue
		}
		h -= p * math.Log2(p)
	}
	if h < 0 {
		return 0
	}
	return h
}
