package line

import (
	"math"
	"testing"
)

func sine(n int, amp float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * math.Sin(2.0*math.Pi*1000.0*float64(i)/8000.0))
	}
	return out
}

func TestCleanProfilePassesThrough(t *testing.T) {
	sim := New(Profile{})
	in := sine(1600, 10000)
	out := sim.Run(in)
	if len(out) != len(in) {
		t.Fatalf("output length %d, expected %d", len(out), len(in))
	}
	// The unit-ratio resampler delays by one sample.
	for i := 1; i < len(out); i++ {
		if out[i] != in[i-1] {
			t.Fatalf("sample %d: %d != %d", i, out[i], in[i-1])
		}
	}
}

func TestGain(t *testing.T) {
	sim := New(Profile{GainDB: -6})
	in := sine(8000, 10000)
	out := sim.Run(in)
	var pin, pout float64
	for _, v := range in {
		pin += float64(v) * float64(v)
	}
	for _, v := range out {
		pout += float64(v) * float64(v)
	}
	ratio := 10.0 * math.Log10(pout/pin)
	t.Logf("gain applied: %.2f dB", ratio)
	if math.Abs(ratio-(-6.0)) > 0.2 {
		t.Errorf("gain %v dB, expected -6", ratio)
	}
}

func TestClockOffsetDrift(t *testing.T) {
	const ppm = 1000.0
	sim := New(Profile{ClockOffsetPPM: ppm})
	total := 0
	const blocks = 100
	const blockLen = 160
	in := sine(blockLen, 10000)
	for i := 0; i < blocks; i++ {
		total += len(sim.Run(in))
	}
	// The receiver clock runs 1000 ppm slow, so it sees proportionally
	// fewer samples.
	expected := float64(blocks*blockLen) / (1.0 + ppm*1e-6)
	t.Logf("resampled %d samples from %d", total, blocks*blockLen)
	if math.Abs(float64(total)-expected) > 3 {
		t.Errorf("output length %d, expected about %.0f", total, expected)
	}
}

func TestSNR(t *testing.T) {
	const snr = 20.0
	sim := New(Profile{SNRdB: snr, Seed: 7})
	in := sine(8000, 10000)
	out := sim.Run(in)
	var signal, noise float64
	for i := 1; i < len(out); i++ {
		s := float64(in[i-1])
		n := float64(out[i]) - s
		signal += s * s
		noise += n * n
	}
	got := 10.0 * math.Log10(signal/noise)
	t.Logf("measured SNR: %.2f dB", got)
	if math.Abs(got-snr) > 1.5 {
		t.Errorf("SNR %v dB, expected about %v", got, snr)
	}
}

func TestEmptyBlock(t *testing.T) {
	sim := New(Profile{SNRdB: 10})
	if out := sim.Run(nil); out != nil {
		t.Errorf("empty block produced %d samples", len(out))
	}
}
