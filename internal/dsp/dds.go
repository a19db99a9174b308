package dsp

import "math"

// Direct digital synthesis of a complex carrier. A 32-bit phase accumulator
// wraps freely; the top bits index a quarter-resolution sine table. The same
// phase/rate representation is shared by the modem transmitters and receivers,
// so carrier corrections are simple integer adjustments.

const ddsTableBits = 10

var ddsSineTable [1 << ddsTableBits]float64

func init() {
	for i := range ddsSineTable {
		ddsSineTable[i] = math.Sin(2.0 * math.Pi * float64(i) / float64(len(ddsSineTable)))
	}
}

// PhaseRate returns the per-sample phase increment for the given frequency at
// the given sample rate.
func PhaseRate(freqHz, sampleRate float64) int32 {
	return int32(math.Round(freqHz * 4294967296.0 / sampleRate))
}

// RateToFrequency converts a per-sample phase increment back to Hertz.
func RateToFrequency(rate int32, sampleRate float64) float64 {
	return float64(rate) * sampleRate / 4294967296.0
}

// Phasor returns the unit complex exponential e^(j*phase), with the full
// uint32 range representing one turn.
func Phasor(phase uint32) complex128 {
	idx := phase >> (32 - ddsTableBits)
	quarter := uint32(len(ddsSineTable) / 4)
	return complex(ddsSineTable[(idx+quarter)&uint32(len(ddsSineTable)-1)], ddsSineTable[idx])
}

// PhaseToRadians converts a uint32 angle to radians in [-pi, pi).
func PhaseToRadians(phase uint32) float64 {
	return float64(int32(phase)) * (math.Pi / 2147483648.0)
}

// RadiansToPhase converts radians to the wrapping uint32 angle representation.
func RadiansToPhase(angle float64) uint32 {
	return uint32(int64(angle * (2147483648.0 / math.Pi)))
}
