package chain

// Difficulty expresses compact target bits as a multiple of the minimum
// difficulty (1.0).
func Difficulty(bits uint32) float64 {
	mantissa := bits & 0x00ffffff
	if mantissa == 0 {
		return 0
	}

	shift := int((bits >> 24) & 0xff)
	diff := float64(0x0000ffff) / float64(mantissa)

	for shift < 29 {
		diff *= 256.0
		shift++
	}
	for shift > 29 {
		diff /= 256.0
		shift--
	}
	return diff
}
