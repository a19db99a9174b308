package modem

// The trellis decoder needs, for every received point, the nearest
// constellation point in each of the 8 cosets. Searching the full 128 point
// constellation per state would dominate the symbol budget, so the complex
// plane is quantized into a coarse grid of 90 regions and the per-region,
// per-coset answers are precomputed from the region centres.

const (
	spaceMapCols   = 9  // real axis bins across [-9, +9)
	spaceMapRows   = 10 // imaginary axis bins across [-10, +10)
	spaceMapBinDiv = 2.0
)

type spaceMap [spaceMapCols * spaceMapRows][8]uint8

var (
	v17Map7200  spaceMap
	v17Map9600  spaceMap
	v17Map12000 spaceMap
	v17Map14400 spaceMap
)

func init() {
	buildSpaceMap(&v17Map7200, v17Constel7200[:])
	buildSpaceMap(&v17Map9600, v17Constel9600[:])
	buildSpaceMap(&v17Map12000, v17Constel12000[:])
	buildSpaceMap(&v17Map14400, v17Constel14400[:])
}

func buildSpaceMap(m *spaceMap, constel []complex128) {
	for col := 0; col < spaceMapCols; col++ {
		for row := 0; row < spaceMapRows; row++ {
			centre := complex(
				(float64(col)+0.5)*spaceMapBinDiv-float64(spaceMapCols),
				(float64(row)+0.5)*spaceMapBinDiv-float64(spaceMapRows),
			)
			for coset := 0; coset < 8; coset++ {
				best := -1
				bestDist := 0.0
				for label := coset; label < len(constel); label += 8 {
					d := sqDistance(centre, constel[label])
					if best < 0 || d < bestDist {
						best = label
						bestDist = d
					}
				}
				m[col*spaceMapRows+row][coset] = uint8(best)
			}
		}
	}
}

func sqDistance(a, b complex128) float64 {
	dr := real(a) - real(b)
	di := imag(a) - imag(b)
	return dr*dr + di*di
}

// region returns the grid cell for a received point, clamped at the edges.
func (m *spaceMap) region(z complex128) int {
	col := int((real(z) + float64(spaceMapCols)) / spaceMapBinDiv)
	if col < 0 {
		col = 0
	} else if col >= spaceMapCols {
		col = spaceMapCols - 1
	}
	row := int((imag(z) + float64(spaceMapRows)) / spaceMapBinDiv)
	if row < 0 {
		row = 0
	} else if row >= spaceMapRows {
		row = spaceMapRows - 1
	}
	return col*spaceMapRows + row
}

// sliceCosets fills the per-coset candidate labels for z and the squared
// distances to them, and returns the label of the overall nearest candidate.
func sliceCosets(z complex128, constel []complex128, m *spaceMap, dist *[8]float64, label *[8]int) int {
	cell := &m[m.region(z)]
	best := 0
	for coset := 0; coset < 8; coset++ {
		l := int(cell[coset])
		label[coset] = l
		dist[coset] = sqDistance(z, constel[l])
		if dist[coset] < dist[best] {
			best = coset
		}
	}
	return label[best]
}
