package modem

import (
	"math/rand"
	"testing"

	"pgregory.net/rapid"
)

func TestTrellisTables(t *testing.T) {
	// Every state must have exactly four predecessors, in ascending order,
	// and every transition must be reachable from the encoder.
	for s := 0; s < 8; s++ {
		for k := 1; k < 4; k++ {
			if trellisPrev[s][k] <= trellisPrev[s][k-1] {
				t.Errorf("state %d: predecessors not ascending: %v", s, trellisPrev[s])
			}
		}
		for k := 0; k < 4; k++ {
			p := trellisPrev[s][k]
			coset := trellisCoset[s][k]
			e := trellisEncoder{state: p}
			got := e.encode(coset>>1&1, coset&1)
			if got != coset || e.state != s {
				t.Errorf("state %d pred %d: encoder disagrees (coset %d -> %d, state %d)",
					s, p, coset, got, e.state)
			}
		}
	}
}

func TestTrellisEncoderRedundantBit(t *testing.T) {
	// The redundant bit is a function of the state alone, so the encoder
	// output for a fixed state must only depend on the inputs in bits 1..2.
	for state := 0; state < 8; state++ {
		for y1 := 0; y1 < 2; y1++ {
			for y2 := 0; y2 < 2; y2++ {
				e := trellisEncoder{state: state}
				coset := e.encode(y1, y2)
				if coset>>1&1 != y1 || coset&1 != y2 {
					t.Errorf("state %d: inputs %d%d came back as coset %03b", state, y1, y2, coset)
				}
				if coset>>2 != state&1 {
					t.Errorf("state %d: redundant bit %d", state, coset>>2)
				}
			}
		}
	}
}

// runViterbi feeds a coset sequence through the decoder with the given noise
// added to the branch distances and returns the decoded cosets.
func runViterbi(t *testing.T, cosets []int, noise float64, seed int64) []int {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	var v viterbi
	v.reset()
	var decoded []int
	for _, c := range cosets {
		var dist [8]float64
		var label [8]int
		for i := 0; i < 8; i++ {
			dist[i] = 1.0 + noise*rng.Float64()
			if i == c {
				dist[i] = noise * rng.Float64()
			}
			label[i] = i
		}
		if out, ok := v.update(&dist, &label); ok {
			decoded = append(decoded, out)
		}
	}
	return decoded
}

func TestViterbiDecodesCleanSequence(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	var e trellisEncoder
	e.reset()
	cosets := make([]int, 400)
	for i := range cosets {
		cosets[i] = e.encode(rng.Intn(2), rng.Intn(2))
	}
	decoded := runViterbi(t, cosets, 0, 1)
	if len(decoded) != len(cosets)-(trellisDepth-1) {
		t.Fatalf("decoded %d symbols from %d", len(decoded), len(cosets))
	}
	for i, d := range decoded {
		if d != cosets[i] {
			t.Fatalf("symbol %d: decoded %d, sent %d", i, d, cosets[i])
		}
	}
}

func TestViterbiDecodesNoisySequence(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	var e trellisEncoder
	e.reset()
	cosets := make([]int, 2000)
	for i := range cosets {
		cosets[i] = e.encode(rng.Intn(2), rng.Intn(2))
	}
	decoded := runViterbi(t, cosets, 0.4, 2)
	errors := 0
	for i, d := range decoded {
		if d != cosets[i] {
			errors++
		}
	}
	t.Logf("%d errors in %d noisy symbols", errors, len(decoded))
	if errors != 0 {
		t.Errorf("%d decode errors with sub-margin noise", errors)
	}
}

func TestViterbiDistancesBounded(t *testing.T) {
	// The decayed totals must stay finite and their minimum bounded by the
	// decay's fixed point, whatever the branch distances do.
	rapid.Check(t, func(t *rapid.T) {
		var v viterbi
		v.reset()
		steps := rapid.IntRange(17, 400).Draw(t, "steps")
		maxBranch := 0.0
		for i := 0; i < steps; i++ {
			var dist [8]float64
			var label [8]int
			for j := 0; j < 8; j++ {
				dist[j] = rapid.Float64Range(0, 1).Draw(t, "dist")
				if dist[j] > maxBranch {
					maxBranch = dist[j]
				}
				label[j] = j
			}
			v.update(&dist, &label)
		}
		bound := maxBranch * trellisDistanceDecay / (1.0 - trellisDistanceDecay)
		min := v.distances[0]
		for _, d := range v.distances {
			if d != d || d < 0 {
				t.Fatalf("distance not finite and non-negative: %v", d)
			}
			if d < min {
				min = d
			}
		}
		if min > bound+1e-9 {
			t.Fatalf("minimum total %v exceeds decay bound %v", min, bound)
		}
	})
}

func TestViterbiTieBreakDeterministic(t *testing.T) {
	// Identical distances everywhere: two runs must agree bit for bit.
	run := func() []int {
		var v viterbi
		v.reset()
		var out []int
		for i := 0; i < 100; i++ {
			var dist [8]float64
			var label [8]int
			for j := range label {
				label[j] = j
			}
			if d, ok := v.update(&dist, &label); ok {
				out = append(out, d)
			}
		}
		return out
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("tie-break differs at symbol %d", i)
		}
	}
}
