package auth

// TimingResistantEqual compares a (attacker supplied) against b (secret)
// in time that depends only on len(a).
func TimingResistantEqual(a, b []byte) bool {
	equal, _ := compareAll(a, b)
	return equal
}

// compareAll returns the comparison result and the number of bytes of a it
// visited, which is always len(a).
func compareAll(a, b []byte) (bool, int) {
	if len(b) == 0 {
		return len(a) == 0, len(a)
	}

	acc := len(a) ^ len(b)
	visited := 0
	for i := 0; i < len(a); i++ {
		acc |= int(a[i] ^ b[i%len(b)])
		visited++
	}
	return acc == 0, visited
}
