package vm

// hashLimit bounds hashing cost: inputs of 2^hashLimit bytes or more are
// sampled rather than scanned.
const hashLimit = 5

// HashBytes hashes b with the given seed. Inputs shorter than 32 bytes are
// scanned in full; longer inputs are sampled every (len>>5)+1 bytes walking
// from the end, so at most ~32 bytes are mixed in regardless of length.
func HashBytes(seed uint32, b []byte) uint32 {
	l := len(b)
	h := seed ^ uint32(l)
	step := (l >> hashLimit) + 1
	for l1 := l; l1 >= step; l1 -= step {
		h ^= (h << 5) + (h >> 2) + uint32(b[l1-1])
	}
	return h
}
