package dsp

import (
	"math"
	"math/cmplx"
)

// Radix-2 FFT used by the monitor's spectrum view. The modem data path never
// touches this; it works sample by sample in the time domain.

// FFT computes the in-order DFT of x. The length must be a power of 2.
func FFT(x []complex128) []complex128 {
	n := len(x)
	if n&(n-1) != 0 {
		panic("dsp: FFT length must be a power of 2")
	}
	out := make([]complex128, n)
	copy(out, x)
	if n <= 1 {
		return out
	}
	bitReverse(out)
	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		wn := cmplx.Exp(complex(0, -2.0*math.Pi/float64(size)))
		for start := 0; start < n; start += size {
			w := complex(1, 0)
			for j := 0; j < half; j++ {
				u := out[start+j]
				v := w * out[start+j+half]
				out[start+j] = u + v
				out[start+j+half] = u - v
				w *= wn
			}
		}
	}
	return out
}

func bitReverse(x []complex128) {
	n := len(x)
	bits := 0
	for tmp := n; tmp > 1; tmp >>= 1 {
		bits++
	}
	for i := 0; i < n; i++ {
		j := 0
		for b, v := 0, i; b < bits; b++ {
			j = (j << 1) | (v & 1)
			v >>= 1
		}
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}
}

// PowerSpectrumDB returns the Hann-windowed power spectrum of the first
// fftSize samples, in dB relative to full scale, one value per bin up to
// Nyquist. Returns nil when fewer than fftSize samples are supplied.
func PowerSpectrumDB(samples []float64, fftSize int) []float64 {
	if len(samples) < fftSize {
		return nil
	}
	buf := make([]complex128, fftSize)
	for i := 0; i < fftSize; i++ {
		w := 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(fftSize-1)))
		buf[i] = complex(samples[i]*w/32768.0, 0)
	}
	spec := FFT(buf)
	out := make([]float64, fftSize/2)
	for i := range out {
		p := real(spec[i])*real(spec[i]) + imag(spec[i])*imag(spec[i])
		p /= float64(fftSize) * float64(fftSize)
		if p < 1e-12 {
			p = 1e-12
		}
		out[i] = 10.0 * math.Log10(p)
	}
	return out
}
