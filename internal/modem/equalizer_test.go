package modem

import (
	"math"
	"math/cmplx"
	"testing"
)

// feedSymbol pushes one symbol period (mid-point then on-symbol sample)
// through the equalizer and returns the equalized output.
func feedSymbol(e *equalizer, prev, cur, channel complex128) complex128 {
	scale := channel / 3.0
	e.push((prev + cur) / 2.0 * scale)
	e.push(cur * scale)
	return e.output()
}

func TestEqualizerConvergesOnRotatedChannel(t *testing.T) {
	// A flat channel with gain and phase error: training against the known
	// reference sequence must drive the error down, with the centre tap
	// absorbing the inverse of the channel.
	channel := 0.6 * cmplx.Exp(complex(0, 0.4))
	var e equalizer
	e.reset()
	var seq trainingSequence
	seq.reset()

	prev := trainingPointA
	var tail float64
	const symbols = 800
	for n := 0; n < symbols; n++ {
		target := trainingTargetAt(n, &seq)
		y := feedSymbol(&e, prev, target, channel)
		err := target - y
		e.adapt(err)
		prev = target
		if n >= symbols-100 {
			tail += real(err)*real(err) + imag(err)*imag(err)
		}
	}
	tail /= 100.0
	t.Logf("mean squared error over final 100 symbols: %.5f", tail)
	if tail > 0.05 {
		t.Errorf("equalizer did not converge: tail error %v", tail)
	}
}

func TestEqualizerColdStartGain(t *testing.T) {
	// Cold start: centre tap (3, 0), everything else zero, so a nominal
	// unit-amplitude input symbol comes out at the training magnitude.
	var e equalizer
	e.reset()
	for i := 0; i < eqTaps+4; i++ {
		e.push(0)
	}
	e.push(complex(1, 0))
	for i := 0; i < eqLen; i++ {
		e.push(0)
	}
	y := e.output()
	if math.Abs(real(y)-3.0) > 1e-12 || math.Abs(imag(y)) > 1e-12 {
		t.Errorf("cold start response %v, expected (3, 0)", y)
	}
}

func TestEqualizerRotate(t *testing.T) {
	var e equalizer
	e.reset()
	for i := 0; i < eqTaps; i++ {
		e.push(complex(float64(i), 1))
	}
	before := e.output()
	rot := cmplx.Exp(complex(0, 0.7))
	e.rotate(rot)
	after := e.output()
	want := before * rot
	if cmplx.Abs(after-want) > 1e-9 {
		t.Errorf("rotated output %v, expected %v", after, want)
	}
}

func TestEqualizerSaveRestore(t *testing.T) {
	var e equalizer
	e.reset()
	for i := 0; i < 50; i++ {
		e.push(complex(1, -1))
		e.adapt(complex(0.1, 0.2))
	}
	var saved [eqTaps]complex128
	e.save(&saved)
	snap := e.snapshot()

	var f equalizer
	f.reset()
	f.restore(&saved)
	got := f.snapshot()
	for i := range snap {
		if snap[i] != got[i] {
			t.Fatalf("tap %d: %v != %v after restore", i, got[i], snap[i])
		}
	}
	// The snapshot is a copy; mutating it must not reach the equalizer.
	snap[0] = complex(99, 99)
	if e.snapshot()[0] == snap[0] {
		t.Error("snapshot aliases the live coefficients")
	}
}
