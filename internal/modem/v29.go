package modem

// Shared V.29 definitions. V.29 runs uncoded QAM at 9600, 7200 or 4800
// bits/second over a 1700 Hz carrier. The constellation is 8 phases with two
// amplitudes: 3 and 5 on the axes, sqrt(2) and 3*sqrt(2) on the diagonals.
// Three bits select a Gray coded phase change; at 9600 a fourth bit selects
// the amplitude, at 7200 the amplitude rides on the octant, at 4800 only the
// quadrant phases are used.

const v29CarrierHz = 1700.0

// v29Points[octant][amplitude]
var v29Points = [8][2]complex128{
	{3 + 0i, 5 + 0i},
	{1 + 1i, 3 + 3i},
	{0 + 3i, 0 + 5i},
	{-1 + 1i, -3 + 3i},
	{-3 + 0i, -5 + 0i},
	{-1 - 1i, -3 - 3i},
	{0 - 3i, 0 - 5i},
	{1 - 1i, 3 - 3i},
}

// Gray maps between the phase change bits and the octant step. The 4800
// rate steps by quadrants, with its own two bit code.
var (
	v29BitsToDelta [8]int
	v29DeltaToBits [8]int
	v29Quad        = [4]int{0, 1, 3, 2}
	v29QuadInv     [4]int
)

func init() {
	// Neighbouring phase changes carry codes one bit apart, so a single
	// octant slicing error costs a single bit error.
	for d := 0; d < 8; d++ {
		b := d ^ (d >> 1)
		v29DeltaToBits[d] = b
		v29BitsToDelta[b] = d
	}
	for b, d := range v29Quad {
		v29QuadInv[d] = b
	}
}

func v29BitsPerSymbol(bitRate int) int {
	switch bitRate {
	case 4800:
		return 2
	case 7200:
		return 3
	case 9600:
		return 4
	}
	return 0
}

// v29PointFor returns the constellation point for an absolute octant and
// amplitude bit at the given bits-per-symbol.
func v29PointFor(bps, octant, amp int) complex128 {
	switch bps {
	case 4:
		return v29Points[octant][amp]
	case 3:
		return v29Points[octant][octant&1]
	default:
		return v29Points[octant&6][0]
	}
}

// v29ActivePoints lists the subset of the constellation in use at a rate,
// with the octant and amplitude each point decodes to.
type v29Point struct {
	point  complex128
	octant int
	amp    int
}

func v29ActivePoints(bps int) []v29Point {
	var out []v29Point
	switch bps {
	case 4:
		for o := 0; o < 8; o++ {
			for a := 0; a < 2; a++ {
				out = append(out, v29Point{v29Points[o][a], o, a})
			}
		}
	case 3:
		for o := 0; o < 8; o++ {
			out = append(out, v29Point{v29Points[o][o&1], o, o & 1})
		}
	default:
		for o := 0; o < 8; o += 2 {
			out = append(out, v29Point{v29Points[o][0], o, 0})
		}
	}
	return out
}

func v29ConstellationPower(bps int) float64 {
	pts := v29ActivePoints(bps)
	var sum float64
	for _, p := range pts {
		sum += real(p.point)*real(p.point) + imag(p.point)*imag(p.point)
	}
	return sum / float64(len(pts))
}
