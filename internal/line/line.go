// Package line models telephone channel impairments for bench testing the
// modems: level change, symbol clock offset and additive white Gaussian
// noise. Carrier frequency offset is applied at the transmitter, which is
// where it physically originates on FDM trunks.
package line

import (
	"math"
	"math/rand"
)

// Profile describes one simulated channel, loadable from YAML.
type Profile struct {
	GainDB         float64 `yaml:"gain_db"`          // level change, dB
	SNRdB          float64 `yaml:"snr_db"`           // 0 disables noise
	ClockOffsetPPM float64 `yaml:"clock_offset_ppm"` // receive clock error
	CarrierHz      float64 `yaml:"carrier_hz"`       // tx carrier override, 0 = nominal
	Seed           int64   `yaml:"seed"`
}

// Simulator applies a Profile to a sample stream. Feed blocks in
// transmission order; state carries across blocks.
type Simulator struct {
	profile Profile
	gain    float64
	rng     *rand.Rand

	// fractional resampler state for the clock offset
	ratio float64
	pos   float64
	last  float64
}

// New creates a simulator for the profile.
func New(p Profile) *Simulator {
	seed := p.Seed
	if seed == 0 {
		seed = 1
	}
	return &Simulator{
		profile: p,
		gain:    math.Pow(10.0, p.GainDB/20.0),
		rng:     rand.New(rand.NewSource(seed)),
		ratio:   1.0 + p.ClockOffsetPPM*1e-6,
	}
}

// Run pushes a block through the channel and returns the impaired samples.
// The clock offset makes the output length drift from the input length over
// time.
func (s *Simulator) Run(in []int16) []int16 {
	if len(in) == 0 {
		return nil
	}

	// Level and noise first, in float.
	work := make([]float64, len(in))
	var power float64
	for i, v := range in {
		work[i] = float64(v) * s.gain
		power += work[i] * work[i]
	}
	power /= float64(len(in))
	if s.profile.SNRdB != 0 {
		sigma := math.Sqrt(power / math.Pow(10.0, s.profile.SNRdB/10.0))
		for i := range work {
			work[i] += s.rng.NormFloat64() * sigma
		}
	}

	// Fractional resampling for the clock offset: each receiver sample
	// advances s.ratio transmitter samples, so the receiver's clock ticks
	// 1/s.ratio times per transmitter sample.
	out := make([]int16, 0, len(in)+2)
	for _, v := range work {
		for s.pos < 1.0 {
			f := s.pos
			y := s.last*(1.0-f) + v*f
			out = append(out, clip16(y))
			s.pos += s.ratio
		}
		s.pos -= 1.0
		s.last = v
	}
	return out
}

func clip16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
