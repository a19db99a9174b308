package modem

import "math"

// Pulse shaping. Both directions use a root raised cosine with 50% excess
// bandwidth, 81 taps at the 24000 Hz rate that is the least common multiple
// of the 8000 Hz channel rate and the 2400 baud symbol rate.
//
// The receiver never actually runs at 24000 Hz: the 81 taps are split into
// three 27 tap polyphase branches, one per position of an 8 kHz sample within
// the conceptual zero-stuffed stream, and only the branch aligned with the
// current Gardner pick-off is evaluated. That turns "upsample by 3, filter,
// keep every 5th" into one 27 tap MAC per T/2 output.
//
// The transmitter uses the same kernel directly: symbols are impulses every
// 10 ticks of the 24 kHz grid and the output is sampled every 3 ticks.
const (
	rrcPhases       = 3  // 24000 / 8000
	rrcTapsPerPhase = 27 // taps per polyphase branch
	rrcSpan         = rrcPhases * rrcTapsPerPhase
	ticksPerSymbol  = 10 // 24000 / 2400
	rrcBeta         = 0.5
)

var (
	// rxPulseShape[b][j] applies to the j-th oldest of the 27 buffered
	// samples when the pick-off lands on sub-phase b. Stored time reversed
	// so the hot loop reads the ring buffer in natural order.
	rxPulseShape [rrcPhases][rrcTapsPerPhase]float64
	txPulseShape [rrcSpan]float64
	// txPulseEnergy is the tap energy of the transmit kernel, used to set
	// the output gain for a requested line level.
	txPulseEnergy float64
	// rrcAGCFactor converts the measured RMS line level into the receiver
	// front end scaling that puts a nominal training symbol at unit
	// amplitude after demodulation and pulse shaping.
	rrcAGCFactor float64
)

func init() {
	var kernel [rrcSpan]float64
	var sum float64
	for k := 0; k < rrcSpan; k++ {
		t := float64(k-rrcSpan/2) / float64(ticksPerSymbol)
		kernel[k] = rrcTap(t)
		sum += kernel[k]
	}

	// Receive side: unity DC gain per branch, i.e. 3x across the full
	// interpolating filter. Branch b serves a pick-off b ticks before the
	// newest sample, so the newest sample takes kernel tap rrcPhases-1-b and
	// every branch has the same overall delay.
	rxScale := float64(rrcPhases) / sum
	for b := 0; b < rrcPhases; b++ {
		for j := 0; j < rrcTapsPerPhase; j++ {
			rxPulseShape[b][j] = kernel[rrcPhases-1-b+rrcPhases*(rrcTapsPerPhase-1-j)] * rxScale
		}
	}

	// Transmit side: unity peak response.
	txScale := 1.0 / kernel[rrcSpan/2]
	for k := 0; k < rrcSpan; k++ {
		txPulseShape[k] = kernel[k] * txScale
		txPulseEnergy += txPulseShape[k] * txPulseShape[k]
	}

	// Cascade gain of the matched pair at the symbol instant. The receiver
	// evaluates a single polyphase branch, so only every third tap of the
	// full-rate kernel takes part.
	var cascade float64
	for k := rrcSpan / 2 % rrcPhases; k < rrcSpan; k += rrcPhases {
		cascade += txPulseShape[k] * kernel[k] * rxScale
	}

	// Mean square of the baseband envelope the alternating training segment
	// produces per unit symbol power, averaged over the ten tick offsets of
	// a symbol period. The AGC is set while that segment is on the line, so
	// this - not the white-data figure - is what relates the measured RMS to
	// the transmitted symbol magnitude. The factor of two in the numerator
	// undoes the halving from demodulating a real signal.
	var altPower float64
	for d := 0; d < ticksPerSymbol; d++ {
		var acc float64
		sign := 1.0
		for k := d; k < rrcSpan; k += ticksPerSymbol {
			acc += sign * txPulseShape[k]
			sign = -sign
		}
		altPower += acc * acc
	}
	altPower /= float64(ticksPerSymbol)
	rrcAGCFactor = math.Sqrt(2.0*altPower) / cascade
}

// rrcTap evaluates the root raised cosine impulse response at t symbol
// periods from the centre.
func rrcTap(t float64) float64 {
	const b = rrcBeta
	if t == 0 {
		return 1.0 - b + 4.0*b/math.Pi
	}
	if math.Abs(math.Abs(t)-1.0/(4.0*b)) < 1e-9 {
		return b / math.Sqrt2 * ((1.0+2.0/math.Pi)*math.Sin(math.Pi/(4.0*b)) +
			(1.0-2.0/math.Pi)*math.Cos(math.Pi/(4.0*b)))
	}
	den := math.Pi * t * (1.0 - 16.0*b*b*t*t)
	return (math.Sin(math.Pi*t*(1.0-b)) + 4.0*b*t*math.Cos(math.Pi*t*(1.0+b))) / den
}
