package modem

// Fractionally spaced adaptive equalizer. The input ring holds T/2 samples;
// the output is one symbol per two inputs. LMS adaptation runs against the
// known reference symbols during training and against the hard decisions
// afterwards.

const (
	eqLen  = 7  // taps each side of the centre
	eqMask = 15 // ring size - 1, power of 2 covering 2*eqLen+1
	eqTaps = 2*eqLen + 1
)

// LMS step sizes across the life of the equalizer. The base step is scaled
// down by the tap count so the total adaptation energy per symbol stays put
// as the filter length changes.
const (
	eqDeltaAcquire = 0.25 / eqTaps  // start of the training segment
	eqDeltaRefine  = 0.10 / eqTaps  // back half of the training segment
	eqDeltaTrack   = 0.015 / eqTaps // decision directed, in data mode
)

type equalizer struct {
	coeffs [eqTaps]complex128
	buf    [eqMask + 1]complex128
	pos    int
	delta  float64
}

// reset clears the ring and sets the classic cold start: everything zero but
// the centre tap, which carries the nominal gain from unit input to the
// training point magnitude.
func (e *equalizer) reset() {
	for i := range e.coeffs {
		e.coeffs[i] = 0
	}
	for i := range e.buf {
		e.buf[i] = 0
	}
	e.pos = 0
	e.coeffs[eqLen] = complex(3.0, 0.0)
	e.delta = eqDeltaAcquire
}

func (e *equalizer) push(z complex128) {
	e.buf[e.pos&eqMask] = z
	e.pos++
}

// at returns the sample k places behind the most recent input.
func (e *equalizer) at(k int) complex128 {
	return e.buf[(e.pos-1-k)&eqMask]
}

// output runs the FIR over the most recent 2*eqLen+1 samples.
func (e *equalizer) output() complex128 {
	var sum complex128
	for k := 0; k < eqTaps; k++ {
		sum += e.coeffs[k] * e.at(k)
	}
	return sum
}

// adapt applies one LMS update toward the given error (reference - output).
func (e *equalizer) adapt(err complex128) {
	scaled := complex(e.delta, 0) * err
	for k := 0; k < eqTaps; k++ {
		s := e.at(k)
		e.coeffs[k] += scaled * complex(real(s), -imag(s))
	}
}

// rotate spins every buffered sample in place, used when the coarse carrier
// estimate steps the demodulation phase so the equalizer sees no transient.
func (e *equalizer) rotate(r complex128) {
	for i := range e.buf {
		e.buf[i] *= r
	}
}

// snapshot copies out the current coefficients.
func (e *equalizer) snapshot() []complex128 {
	out := make([]complex128, eqTaps)
	copy(out, e.coeffs[:])
	return out
}

// save and restore support the short training sequence, which reuses the
// coefficients proven during the preceding long train.
func (e *equalizer) save(dst *[eqTaps]complex128) {
	*dst = e.coeffs
}

func (e *equalizer) restore(src *[eqTaps]complex128) {
	for i := range e.buf {
		e.buf[i] = 0
	}
	e.pos = 0
	e.coeffs = *src
	e.delta = eqDeltaAcquire
}
