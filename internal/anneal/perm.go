package anneal

import "math/rand"

// shuffle performs an in-place Fisher–Yates shuffle.
func shuffle(a []int, rng *rand.Rand) {
	for i := len(a) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		a[i], a[j] = a[j], a[i]
	}
}

// randomPerm returns a uniformly random permutation of 0..n-1.
func randomPerm(n int, rng *rand.Rand) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	shuffle(p, rng)
	return p
}

// twoPositions draws two distinct positions in [0, n) and returns them
// sorted. n must be at least 2.
func twoPositions(n int, rng *rand.Rand) (lo, hi int) {
	i := rng.Intn(n)
	j := rng.Intn(n - 1)
	if j >= i {
		j++
	}
	if i > j {
		i, j = j, i
	}
	return i, j
}

// reverse reverses a[lo..hi] inclusive.
func reverse(a []int, lo, hi int) {
	for lo < hi {
		a[lo], a[hi] = a[hi], a[lo]
		lo++
		hi--
	}
}
