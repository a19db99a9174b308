package modem

// Constellations for the V.17 bit rates. A symbol label packs the uncoded
// bits above the three convolutionally coded bits:
//
//	label = uncoded<<3 | y0<<2 | y1<<1 | y2
//
// so the points sharing a coded triplet (a coset) are the labels equal
// modulo 8. Each coset is a translate of the same sublattice, which keeps
// the points of a coset spread far apart; the Viterbi decoder exploits that
// by picking one candidate per coset and letting the code separate them.
// Coordinates are in the half-integer units used throughout the receiver;
// the equalizer reference gain maps the training symbols onto the same
// scale.

func v17BitsPerSymbol(bitRate int) int {
	switch bitRate {
	case 7200:
		return 3
	case 9600:
		return 4
	case 12000:
		return 5
	case 14400:
		return 6
	}
	return 0
}

func v17Constellation(bitRate int) []complex128 {
	switch bitRate {
	case 7200:
		return v17Constel7200[:]
	case 9600:
		return v17Constel9600[:]
	case 12000:
		return v17Constel12000[:]
	case 14400:
		return v17Constel14400[:]
	}
	return nil
}

func v17SpaceMap(bitRate int) *spaceMap {
	switch bitRate {
	case 7200:
		return &v17Map7200
	case 9600:
		return &v17Map9600
	case 12000:
		return &v17Map12000
	case 14400:
		return &v17Map14400
	}
	return nil
}

// constellationPower returns the mean square magnitude of a point set.
func constellationPower(constel []complex128) float64 {
	var sum float64
	for _, p := range constel {
		sum += real(p)*real(p) + imag(p)*imag(p)
	}
	return sum / float64(len(constel))
}

var v17Constel7200 = [16]complex128{
	-0.5 - 0.5i, +0.5 + 0.5i, +0.5 - 0.5i, -0.5 + 0.5i,
	-0.5 + 1.5i, -1.5 + 0.5i, +0.5 + 1.5i, +1.5 + 0.5i,
	+1.5 + 1.5i, -1.5 - 1.5i, -1.5 + 1.5i, +1.5 - 1.5i,
	+1.5 - 0.5i, +0.5 - 1.5i, -1.5 - 0.5i, -0.5 - 1.5i,
}

var v17Constel9600 = [32]complex128{
	-0.5 - 0.5i, +0.5 + 0.5i, +0.5 - 0.5i, -0.5 + 0.5i,
	-0.5 + 1.5i, -1.5 + 0.5i, +0.5 + 1.5i, +1.5 + 0.5i,
	+1.5 + 1.5i, -1.5 - 1.5i, -1.5 + 1.5i, +1.5 - 1.5i,
	+1.5 - 0.5i, +0.5 - 1.5i, -1.5 - 0.5i, -0.5 - 1.5i,
	-2.5 + 1.5i, -1.5 + 2.5i, +2.5 + 1.5i, +1.5 + 2.5i,
	-2.5 - 0.5i, +2.5 + 0.5i, +0.5 - 2.5i, -0.5 + 2.5i,
	+1.5 - 2.5i, +2.5 - 1.5i, -1.5 - 2.5i, -2.5 - 1.5i,
	-0.5 - 2.5i, +0.5 + 2.5i, +2.5 - 0.5i, -2.5 + 0.5i,
}

var v17Constel12000 = [64]complex128{
	-0.5 - 0.5i, +0.5 + 0.5i, +0.5 - 0.5i, -0.5 + 0.5i,
	-0.5 + 1.5i, -1.5 + 0.5i, +0.5 + 1.5i, +1.5 + 0.5i,
	+1.5 + 1.5i, -1.5 - 1.5i, -1.5 + 1.5i, +1.5 - 1.5i,
	+1.5 - 0.5i, +0.5 - 1.5i, -1.5 - 0.5i, -0.5 - 1.5i,
	-2.5 + 1.5i, -1.5 + 2.5i, +2.5 + 1.5i, +1.5 + 2.5i,
	-2.5 - 0.5i, +2.5 + 0.5i, +0.5 - 2.5i, -0.5 + 2.5i,
	+1.5 - 2.5i, +2.5 - 1.5i, -1.5 - 2.5i, -2.5 - 1.5i,
	-0.5 - 2.5i, +0.5 + 2.5i, +2.5 - 0.5i, -2.5 + 0.5i,
	-0.5 + 3.5i, +2.5 + 2.5i, +0.5 + 3.5i, +3.5 + 0.5i,
	+3.5 + 1.5i, -3.5 - 1.5i, -1.5 + 3.5i, +1.5 - 3.5i,
	-2.5 - 2.5i, -3.5 + 0.5i, -3.5 - 0.5i, -2.5 + 2.5i,
	+1.5 + 3.5i, -1.5 - 3.5i, -3.5 + 1.5i, +3.5 - 1.5i,
	+3.5 - 0.5i, +0.5 - 3.5i, +2.5 - 2.5i, -0.5 - 3.5i,
	-2.5 + 3.5i, -3.5 + 2.5i, +2.5 + 3.5i, +3.5 + 2.5i,
	-4.5 - 0.5i, +4.5 + 0.5i, +0.5 - 4.5i, -0.5 + 4.5i,
	+3.5 - 2.5i, +2.5 - 3.5i, -3.5 - 2.5i, -2.5 - 3.5i,
}

var v17Constel14400 = [128]complex128{
	-0.5 - 0.5i, +0.5 + 0.5i, +0.5 - 0.5i, -0.5 + 0.5i,
	-0.5 + 1.5i, -1.5 + 0.5i, +0.5 + 1.5i, +1.5 + 0.5i,
	+1.5 + 1.5i, -1.5 - 1.5i, -1.5 + 1.5i, +1.5 - 1.5i,
	+1.5 - 0.5i, +0.5 - 1.5i, -1.5 - 0.5i, -0.5 - 1.5i,
	-2.5 + 1.5i, -1.5 + 2.5i, +2.5 + 1.5i, +1.5 + 2.5i,
	-2.5 - 0.5i, +2.5 + 0.5i, +0.5 - 2.5i, -0.5 + 2.5i,
	+1.5 - 2.5i, +2.5 - 1.5i, -1.5 - 2.5i, -2.5 - 1.5i,
	-0.5 - 2.5i, +0.5 + 2.5i, +2.5 - 0.5i, -2.5 + 0.5i,
	-0.5 + 3.5i, +2.5 + 2.5i, +0.5 + 3.5i, +3.5 + 0.5i,
	+3.5 + 1.5i, -3.5 - 1.5i, -1.5 + 3.5i, +1.5 - 3.5i,
	-2.5 - 2.5i, -3.5 + 0.5i, -3.5 - 0.5i, -2.5 + 2.5i,
	+1.5 + 3.5i, -1.5 - 3.5i, -3.5 + 1.5i, +3.5 - 1.5i,
	+3.5 - 0.5i, +0.5 - 3.5i, +2.5 - 2.5i, -0.5 - 3.5i,
	-2.5 + 3.5i, -3.5 + 2.5i, +2.5 + 3.5i, +3.5 + 2.5i,
	-4.5 - 0.5i, +4.5 + 0.5i, +0.5 - 4.5i, -0.5 + 4.5i,
	+3.5 - 2.5i, +2.5 - 3.5i, -3.5 - 2.5i, -2.5 - 3.5i,
	-0.5 - 4.5i, +0.5 + 4.5i, +4.5 - 0.5i, -4.5 + 0.5i,
	-4.5 + 1.5i, -1.5 + 4.5i, +4.5 + 1.5i, +1.5 + 4.5i,
	+3.5 + 3.5i, -3.5 - 3.5i, -3.5 + 3.5i, +3.5 - 3.5i,
	+1.5 - 4.5i, +4.5 - 1.5i, -1.5 - 4.5i, -4.5 - 1.5i,
	+5.5 + 1.5i, -3.5 + 4.5i, +4.5 + 3.5i, +3.5 + 4.5i,
	-4.5 - 2.5i, +4.5 + 2.5i, +2.5 - 4.5i, -2.5 + 4.5i,
	+1.5 + 5.5i, -5.5 - 1.5i, -1.5 + 5.5i, -4.5 - 3.5i,
	-2.5 - 4.5i, +2.5 + 4.5i, +4.5 - 2.5i, -4.5 + 2.5i,
	-4.5 + 3.5i, -1.5 - 5.5i, -5.5 + 1.5i, +1.5 - 5.5i,
	-0.5 + 5.5i, -5.5 + 0.5i, +0.5 + 5.5i, +5.5 + 0.5i,
	+3.5 - 4.5i, +4.5 - 3.5i, -3.5 - 4.5i, +5.5 - 1.5i,
	+5.5 - 0.5i, +0.5 - 5.5i, -5.5 - 0.5i, -0.5 - 5.5i,
	-2.5 + 5.5i, -5.5 + 2.5i, +2.5 + 5.5i, +5.5 + 2.5i,
	+5.5 + 3.5i, +6.5 + 0.5i, -3.5 + 5.5i, -0.5 + 6.5i,
	+5.5 - 2.5i, +2.5 - 5.5i, -5.5 - 2.5i, -2.5 - 5.5i,
	+3.5 + 5.5i, +0.5 + 6.5i, -5.5 + 3.5i, -6.5 + 0.5i,
}

