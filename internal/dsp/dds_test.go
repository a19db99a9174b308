package dsp

import (
	"math"
	"testing"
)

func TestPhaseRateRoundTrip(t *testing.T) {
	for _, freq := range []float64{1700, 1800, 1805, 2400, -5} {
		rate := PhaseRate(freq, 8000)
		back := RateToFrequency(rate, 8000)
		if math.Abs(back-freq) > 1e-3 {
			t.Errorf("freq %v: round trip gave %v", freq, back)
		}
	}
}

func TestPhaseRate1800(t *testing.T) {
	// 1800/8000 * 2^32, the V.17 carrier.
	rate := PhaseRate(1800, 8000)
	if rate != 966367642 {
		t.Errorf("PhaseRate(1800, 8000) = %d, expected 966367642", rate)
	}
}

func TestPhasorMatchesExp(t *testing.T) {
	var maxErr float64
	for i := 0; i < 4096; i++ {
		phase := uint32(i) << 20
		p := Phasor(phase)
		angle := PhaseToRadians(phase)
		dr := real(p) - math.Cos(angle)
		di := imag(p) - math.Sin(angle)
		if e := math.Hypot(dr, di); e > maxErr {
			maxErr = e
		}
	}
	t.Logf("max phasor error: %.5f", maxErr)
	// The table has 1024 entries, so the phase quantization alone allows
	// about 2*pi/1024 of error.
	if maxErr > 0.01 {
		t.Errorf("phasor error %v too large", maxErr)
	}
}

func TestPhasorUnitMagnitude(t *testing.T) {
	for i := 0; i < 1024; i++ {
		p := Phasor(uint32(i) << 22)
		mag := math.Hypot(real(p), imag(p))
		if math.Abs(mag-1.0) > 1e-9 {
			t.Fatalf("phase index %d: |phasor| = %v", i, mag)
		}
	}
}

func TestRadiansPhaseRoundTrip(t *testing.T) {
	for _, angle := range []float64{0, 0.5, -0.5, 3.0, -3.0} {
		back := PhaseToRadians(RadiansToPhase(angle))
		if math.Abs(back-angle) > 1e-6 {
			t.Errorf("angle %v: round trip gave %v", angle, back)
		}
	}
}
