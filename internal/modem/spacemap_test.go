package modem

import (
	"math/rand"
	"testing"
)

func TestSpaceMapExactAtConstellationPoints(t *testing.T) {
	// Received samples landing dead on a constellation point must slice to
	// that point, at every rate.
	for _, rate := range []int{7200, 9600, 12000, 14400} {
		constel := v17Constellation(rate)
		smap := v17SpaceMap(rate)
		for want, p := range constel {
			var dist [8]float64
			var label [8]int
			got := sliceCosets(p, constel, smap, &dist, &label)
			if got != want {
				t.Errorf("rate %d: point %d sliced to %d", rate, want, got)
			}
			if dist[want&7] != 0 {
				t.Errorf("rate %d: point %d has own-coset distance %v", rate, want, dist[want&7])
			}
		}
	}
}

func TestSpaceMapCandidatesStayInCoset(t *testing.T) {
	constel := v17Constellation(14400)
	smap := v17SpaceMap(14400)
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 2000; i++ {
		z := complex(rng.Float64()*30.0-15.0, rng.Float64()*30.0-15.0)
		var dist [8]float64
		var label [8]int
		sliceCosets(z, constel, smap, &dist, &label)
		for coset := 0; coset < 8; coset++ {
			if label[coset] < 0 || label[coset] >= len(constel) {
				t.Fatalf("point %v: coset %d label %d out of range", z, coset, label[coset])
			}
			if label[coset]&7 != coset {
				t.Fatalf("point %v: coset %d candidate has label %d", z, coset, label[coset])
			}
			if want := sqDistance(z, constel[label[coset]]); dist[coset] != want {
				t.Fatalf("point %v: coset %d distance %v, expected %v", z, coset, dist[coset], want)
			}
		}
	}
}

func TestSpaceMapRegionClamps(t *testing.T) {
	smap := v17SpaceMap(14400)
	for _, z := range []complex128{-100 - 100i, 100 + 100i, 0, -100 + 100i} {
		r := smap.region(z)
		if r < 0 || r >= spaceMapCols*spaceMapRows {
			t.Errorf("region(%v) = %d out of range", z, r)
		}
	}
}

func TestConstellationSizes(t *testing.T) {
	tests := []struct {
		rate   int
		points int
		bps    int
	}{
		{7200, 16, 3},
		{9600, 32, 4},
		{12000, 64, 5},
		{14400, 128, 6},
	}
	for _, tt := range tests {
		if got := len(v17Constellation(tt.rate)); got != tt.points {
			t.Errorf("rate %d: %d points, expected %d", tt.rate, got, tt.points)
		}
		if got := v17BitsPerSymbol(tt.rate); got != tt.bps {
			t.Errorf("rate %d: %d bits/symbol, expected %d", tt.rate, got, tt.bps)
		}
	}
	if v17BitsPerSymbol(4800) != 0 || v17Constellation(4800) != nil {
		t.Error("unsupported rate did not come back empty")
	}
}

func TestConstellationNesting(t *testing.T) {
	// Each rate's constellation extends the previous one: the lower-rate
	// points appear unchanged as the leading entries.
	rates := []int{7200, 9600, 12000, 14400}
	for i := 1; i < len(rates); i++ {
		small := v17Constellation(rates[i-1])
		big := v17Constellation(rates[i])
		for j, p := range small {
			if big[j] != p {
				t.Errorf("rate %d point %d differs from rate %d", rates[i], j, rates[i-1])
			}
		}
	}
}
